package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-risk/internal/config"
	"github.com/miradorstack/mirador-risk/internal/models"
)

// Service is the domain surface served over HTTP.
type Service interface {
	Analyze(ctx context.Context, snapshot models.MetricsSnapshot) (models.RiskAssessment, error)
	AnalyzeURL(ctx context.Context, rawURL string) (models.RiskAssessment, error)
	Ready() bool
}

// Gateway serves the HTTP/JSON prediction API.
type Gateway struct {
	cfg    config.GatewayConfig
	echo   *echo.Echo
	server *http.Server
	svc    Service
	logger *slog.Logger
}

// New builds the gateway and registers its routes. It does not start listening.
func New(cfg config.GatewayConfig, svc Service, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	g := &Gateway{cfg: cfg, echo: e, svc: svc, logger: logger}
	g.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      e,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e.Use(requestIDMiddleware())
	e.Use(loggerMiddleware(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, headerRequestID},
	}))
	e.Use(rateLimitMiddleware(limiter, rate.Limit(cfg.RateLimit), cfg.RateLimitBurst))

	e.GET("/healthz", g.health)
	e.GET("/readyz", g.ready)

	for _, prefix := range []string{"", "/v1"} {
		e.POST(prefix+"/predict", g.predict)
		e.POST(prefix+"/predict-from-url", g.predictFromURL)
	}

	return g
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.echo
}

// Start listens on the configured address until Shutdown is called. It returns nil at once if
// Shutdown already ran.
func (g *Gateway) Start() error {
	if g.cfg.Address == "" {
		return fmt.Errorf("gateway address not configured")
	}
	g.logger.Info("http gateway listening", slog.String("address", g.cfg.Address))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}
