package engine

import (
	"log/slog"

	"github.com/miradorstack/mirador-risk/internal/models"
)

// Engine turns metrics snapshots into risk assessments. It holds only validated, read-only
// configuration and is safe for concurrent use.
type Engine struct {
	settings    settings
	recommender *Recommender
}

// Option customises engine construction.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	extraRule []Rule
}

// WithLogger sets the logger used for construction-time reports.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRules appends recommendation rules, typically from a rule pack. They take precedence over
// the rules embedded in Config.
func WithRules(rules ...Rule) Option {
	return func(o *options) { o.extraRule = append(o.extraRule, rules...) }
}

// Evaluation exposes the intermediate values behind an assessment.
type Evaluation struct {
	Features   Features
	Score      float64
	Dominant   Feature
	Assessment models.RiskAssessment
}

// New validates cfg and builds an engine. Malformed configuration yields a *ConfigError.
func New(cfg Config, opts ...Option) (*Engine, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	s, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	recommender, err := NewRecommender(append(append([]Rule(nil), s.rules...), o.extraRule...)...)
	if err != nil {
		return nil, err
	}
	for _, warning := range s.warnings {
		o.logger.Warn("engine config", slog.String("warning", warning))
	}

	return &Engine{settings: s, recommender: recommender}, nil
}

// Analyze produces the risk assessment for s. It never fails; out-of-range metrics are clamped.
func (e *Engine) Analyze(s models.MetricsSnapshot) models.RiskAssessment {
	return e.Evaluate(s).Assessment
}

// Evaluate runs the full pipeline and returns the assessment with its intermediate values.
func (e *Engine) Evaluate(s models.MetricsSnapshot) Evaluation {
	fs := Normalize(s, e.settings.bounds)
	// Weights were validated by New, so Score cannot fail here.
	score, _ := Score(fs, e.settings.weights)
	level, impact := Classify(score, e.settings.thresholds)
	flag, confidence := PredictError(score, e.settings.errThreshold, e.settings.steepness)

	return Evaluation{
		Features: fs,
		Score:    score,
		Dominant: fs.Dominant(),
		Assessment: models.RiskAssessment{
			PredictedResponseTime:    PredictResponseTime(fs, e.settings.coefficients, e.settings.baseLatency),
			PredictedErrorOccurrence: models.ErrorFlag(flag),
			ErrorConfidence:          confidence,
			RiskLevel:                level,
			TimeToImpact:             impact,
			Recommendation:           e.recommender.Recommend(level, fs),
		},
	}
}

// Clamped lists the metrics of s that fall outside the configured bounds.
func (e *Engine) Clamped(s models.MetricsSnapshot) []Feature {
	return Clamped(s, e.settings.bounds)
}

// Warnings returns non-fatal configuration reports such as zero-width bounds.
func (e *Engine) Warnings() []string {
	return append([]string(nil), e.settings.warnings...)
}

// Thresholds returns the configured risk cut points.
func (e *Engine) Thresholds() Thresholds {
	return e.settings.thresholds
}

// NewFromFiles loads the engine configuration at configPath (defaults when empty) and the rule
// pack at rulesPath, then builds the engine.
func NewFromFiles(configPath, rulesPath string, logger *slog.Logger) (*Engine, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	rules, err := LoadRulePack(rulesPath, logger)
	if err != nil {
		return nil, err
	}
	return New(cfg, WithLogger(logger), WithRules(rules...))
}
