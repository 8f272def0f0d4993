package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-risk/internal/api"
	"github.com/miradorstack/mirador-risk/internal/cache"
	"github.com/miradorstack/mirador-risk/internal/config"
	"github.com/miradorstack/mirador-risk/internal/engine"
	"github.com/miradorstack/mirador-risk/internal/gateway"
	"github.com/miradorstack/mirador-risk/internal/metrics"
	"github.com/miradorstack/mirador-risk/internal/repo"
	"github.com/miradorstack/mirador-risk/internal/services"
	"github.com/miradorstack/mirador-risk/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-risk",
		slog.String("grpc_address", cfg.Server.Address),
		slog.String("http_address", cfg.Gateway.Address),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	riskEngine, err := engine.NewFromFiles(cfg.Engine.Path, cfg.Rules.Path, logger)
	if err != nil {
		var cfgErr *engine.ConfigError
		if errors.As(err, &cfgErr) {
			for _, problem := range cfgErr.Problems {
				logger.Error("invalid engine configuration", slog.String("problem", problem))
			}
		}
		logger.Error("failed to build risk engine", slog.String("path", cfg.Engine.Path), slog.Any("error", err))
		os.Exit(1)
	}

	cacheProvider := cache.NewProvider(cfg.Cache, logger)
	defer cacheProvider.Close()

	fetcher := repo.NewSnapshotClient(logger, cfg.Remote.Timeout, cacheProvider, cfg.Remote.CacheTTL, cfg.Remote.MaxBodyBytes)
	riskService := services.NewRiskService(logger, riskEngine, fetcher)

	server, err := api.NewServer(cfg.Server, riskService, logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}
	httpGateway := gateway.New(cfg.Gateway, riskService, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("gRPC server listening", slog.String("address", server.Address()))
		return server.Start()
	})
	if cfg.Gateway.Address != "" {
		group.Go(httpGateway.Start)
	}
	if metricsServer != nil {
		group.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		if err := httpGateway.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http gateway shutdown", slog.Any("error", err))
		}
		server.Shutdown(shutdownCtx)
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server shutdown", slog.Any("error", err))
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		cacheProvider.Close()
		os.Exit(1)
	}
	logger.Info("mirador-risk stopped")
}
