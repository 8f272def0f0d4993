package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-risk/internal/engine"
	"github.com/miradorstack/mirador-risk/internal/metrics"
	"github.com/miradorstack/mirador-risk/internal/models"
	"github.com/miradorstack/mirador-risk/internal/utils"
)

// ErrNoFetcher is returned by AnalyzeURL when no snapshot fetcher is configured.
var ErrNoFetcher = errors.New("remote snapshot fetching not configured")

// SnapshotFetcher retrieves a metrics snapshot from a remote endpoint.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, rawURL string) (models.MetricsSnapshot, error)
}

// RiskService wires the risk engine to snapshot sources and records analysis telemetry.
type RiskService struct {
	logger    *slog.Logger
	engine    *engine.Engine
	fetcher   SnapshotFetcher
	latencies *utils.LatencyTracker
}

// NewRiskService constructs the service facade. fetcher may be nil when URL analysis is disabled.
func NewRiskService(logger *slog.Logger, eng *engine.Engine, fetcher SnapshotFetcher) *RiskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiskService{
		logger:    logger,
		engine:    eng,
		fetcher:   fetcher,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Analyze assesses a snapshot supplied directly by the caller.
func (s *RiskService) Analyze(ctx context.Context, snapshot models.MetricsSnapshot) (models.RiskAssessment, error) {
	if s.engine == nil {
		return models.RiskAssessment{}, utils.NotConfigured("analyze", "risk engine")
	}
	start := time.Now()
	assessment := s.evaluate(ctx, snapshot, metrics.SourceDirect)
	s.observe(metrics.SourceDirect, time.Since(start), metrics.OutcomeSuccess)
	return assessment, nil
}

// AnalyzeURL fetches a snapshot from rawURL and assesses it. Fetch failures are returned
// unchanged so callers can distinguish bad URLs from upstream errors.
func (s *RiskService) AnalyzeURL(ctx context.Context, rawURL string) (models.RiskAssessment, error) {
	if s.engine == nil {
		return models.RiskAssessment{}, utils.NotConfigured("analyze url", "risk engine")
	}
	if s.fetcher == nil {
		return models.RiskAssessment{}, ErrNoFetcher
	}

	start := time.Now()
	snapshot, err := s.fetcher.FetchSnapshot(ctx, rawURL)
	if err != nil {
		s.observe(metrics.SourceRemote, time.Since(start), metrics.OutcomeError)
		s.logger.Warn("snapshot fetch failed", slog.String("url", rawURL), slog.Any("error", err))
		return models.RiskAssessment{}, err
	}

	assessment := s.evaluate(ctx, snapshot, metrics.SourceRemote)
	s.observe(metrics.SourceRemote, time.Since(start), metrics.OutcomeSuccess)
	return assessment, nil
}

// Explain returns the assessment together with the intermediate values that produced it.
func (s *RiskService) Explain(snapshot models.MetricsSnapshot) (engine.Evaluation, []engine.Feature, error) {
	if s.engine == nil {
		return engine.Evaluation{}, nil, utils.NotConfigured("explain", "risk engine")
	}
	return s.engine.Evaluate(snapshot), s.engine.Clamped(snapshot), nil
}

// Ready reports whether the service can answer analysis requests.
func (s *RiskService) Ready() bool {
	return s != nil && s.engine != nil
}

// LatencyP95 returns the current p95 analysis latency.
func (s *RiskService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *RiskService) evaluate(ctx context.Context, snapshot models.MetricsSnapshot, source string) models.RiskAssessment {
	eval := s.engine.Evaluate(snapshot)
	metrics.ObserveRiskLevel(string(eval.Assessment.RiskLevel))

	if s.logger.Enabled(ctx, slog.LevelDebug) {
		attrs := []any{
			slog.String("source", source),
			slog.Float64("score", eval.Score),
			slog.String("dominant", eval.Dominant.String()),
			slog.String("risk_level", string(eval.Assessment.RiskLevel)),
		}
		if clamped := s.engine.Clamped(snapshot); len(clamped) > 0 {
			names := make([]string, 0, len(clamped))
			for _, f := range clamped {
				names = append(names, f.String())
			}
			attrs = append(attrs, slog.Any("clamped", names))
		}
		s.logger.Debug("risk analysis", attrs...)
	}
	return eval.Assessment
}

const summaryEvery = 20

func (s *RiskService) observe(source string, duration time.Duration, outcome string) {
	metrics.ObserveAnalysis(source, duration, outcome)
	if outcome != metrics.OutcomeSuccess {
		return
	}
	s.latencies.Observe(duration)
	if total := s.latencies.Total(); total%summaryEvery == 0 {
		summary := s.latencies.Summary()
		s.logger.Info("analysis latency",
			slog.Duration("p50", summary.P50),
			slog.Duration("p95", summary.P95),
			slog.Duration("p99", summary.P99),
			slog.Int("samples", summary.Count),
		)
	}
}
