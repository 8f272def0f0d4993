package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful analyses and fetches.
	OutcomeSuccess = "success"
	// OutcomeError labels failed analyses (invalid input or dependency issues).
	OutcomeError = "error"
	// OutcomeCacheHit labels remote fetches answered from cache.
	OutcomeCacheHit = "cache_hit"

	// SourceDirect labels snapshots supplied in the request body.
	SourceDirect = "direct"
	// SourceRemote labels snapshots fetched from a remote URL.
	SourceRemote = "remote"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_risk",
			Name:      "analyses_total",
			Help:      "Total number of risk analyses handled, partitioned by snapshot source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_risk",
			Name:      "analysis_seconds",
			Help:      "End-to-end analysis latency in seconds, including remote fetches.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	riskLevelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_risk",
			Name:      "risk_levels_total",
			Help:      "Assessments produced, partitioned by risk level.",
		},
		[]string{"level"},
	)

	remoteFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_risk",
			Name:      "remote_fetch_total",
			Help:      "Remote snapshot fetches, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	gatewayRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_risk",
			Name:      "gateway_rate_limited_total",
			Help:      "HTTP requests rejected by the gateway rate limiter.",
		},
	)
)

// Register attaches mirador-risk collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		riskLevelsTotal,
		remoteFetchTotal,
		gatewayRateLimited,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome for the given snapshot source.
func ObserveAnalysis(source string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	if source != SourceRemote {
		source = SourceDirect
	}
	analysesTotal.WithLabelValues(source, label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRiskLevel counts an assessment at level.
func ObserveRiskLevel(level string) {
	riskLevelsTotal.WithLabelValues(level).Inc()
}

// ObserveRemoteFetch counts a remote snapshot fetch by outcome.
func ObserveRemoteFetch(outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeError, OutcomeCacheHit:
	default:
		outcome = OutcomeError
	}
	remoteFetchTotal.WithLabelValues(outcome).Inc()
}

// IncRateLimited counts a request rejected by the gateway rate limiter.
func IncRateLimited() {
	gatewayRateLimited.Inc()
}
