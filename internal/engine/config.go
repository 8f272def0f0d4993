package engine

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-risk/internal/models"
)

// Config is the engine's scoring configuration. It is built once at startup, validated by New,
// and never mutated afterwards.
type Config struct {
	FeatureBounds       map[string]Range   `yaml:"feature_bounds" json:"feature_bounds"`
	FeatureWeights      map[string]float64 `yaml:"feature_weights" json:"feature_weights"`
	RiskThresholds      Thresholds         `yaml:"risk_thresholds" json:"risk_thresholds"`
	ErrorThreshold      float64            `yaml:"error_threshold" json:"error_threshold"`
	ErrorSteepness      float64            `yaml:"error_steepness" json:"error_steepness"`
	LatencyCoefficients map[string]float64 `yaml:"latency_coefficients" json:"latency_coefficients"`
	BaseLatency         float64            `yaml:"base_latency" json:"base_latency"`
	Recommendations     []Rule             `yaml:"recommendations" json:"recommendations,omitempty"`
}

// Range is the raw-value domain used to normalize a feature.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Width returns Max-Min.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// Thresholds are the four ascending cut points of the risk levels. Each cut point is the
// inclusive lower edge of the level it names.
type Thresholds struct {
	Low      float64 `yaml:"low" json:"low"`
	Medium   float64 `yaml:"medium" json:"medium"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// FeatureBounds maps features to their normalization ranges.
type FeatureBounds map[Feature]Range

// Weights maps features to their relative scoring weight.
type Weights map[Feature]float64

// Coefficients maps features to their latency contribution at full saturation.
type Coefficients map[Feature]float64

// ConfigError reports malformed engine configuration. It is a startup fault.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid engine config: " + strings.Join(e.Problems, "; ")
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// DefaultConfig returns the built-in scoring configuration. Bounds run from a healthy floor to
// saturation; error rate and CPU dominate the score.
func DefaultConfig() Config {
	return Config{
		FeatureBounds: map[string]Range{
			"traffic_count":    {Min: 0, Max: 50000},
			"error_rate":       {Min: 0, Max: 50},
			"uptime":           {Min: 90, Max: 100},
			"cpu_usage":        {Min: 30, Max: 95},
			"memory_usage":     {Min: 40, Max: 95},
			"disk_io":          {Min: 0, Max: 200},
			"concurrent_users": {Min: 0, Max: 5000},
		},
		FeatureWeights: map[string]float64{
			"traffic_count":    0.25,
			"error_rate":       4,
			"uptime":           1,
			"cpu_usage":        4,
			"memory_usage":     0.5,
			"disk_io":          0.5,
			"concurrent_users": 0.5,
		},
		RiskThresholds: Thresholds{Low: 0.25, Medium: 0.5, High: 0.75, Critical: 0.9},
		ErrorThreshold: 0.5,
		ErrorSteepness: 10,
		LatencyCoefficients: map[string]float64{
			"concurrent_users": 400,
			"cpu_usage":        300,
			"disk_io":          250,
			"error_rate":       150,
			"memory_usage":     100,
			"traffic_count":    100,
		},
		BaseLatency: 50,
	}
}

// LoadConfig reads a YAML engine configuration layered over DefaultConfig. An empty path returns
// the defaults. Scalar sections left out of the file keep their defaults; a map section present
// in the file (feature_bounds, feature_weights, latency_coefficients) replaces the default map
// whole, so it must list every feature.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read engine config: %w", err)
	}
	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return Config{}, fmt.Errorf("parse engine config: %w", err)
	}
	if _, ok := sections["feature_bounds"]; ok {
		cfg.FeatureBounds = nil
	}
	if _, ok := sections["feature_weights"]; ok {
		cfg.FeatureWeights = nil
	}
	if _, ok := sections["latency_coefficients"]; ok {
		cfg.LatencyCoefficients = nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse engine config: %w", err)
	}
	return cfg, nil
}

// settings is the validated, typed form of Config.
type settings struct {
	bounds       FeatureBounds
	weights      Weights
	thresholds   Thresholds
	errThreshold float64
	steepness    float64
	coefficients Coefficients
	baseLatency  float64
	rules        []Rule
	warnings     []string
}

// Validate checks the configuration without building an engine.
func (c Config) Validate() error {
	_, err := c.compile()
	return err
}

func (c Config) compile() (settings, error) {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	s := settings{
		bounds:       make(FeatureBounds, numFeatures),
		weights:      make(Weights, numFeatures),
		coefficients: make(Coefficients, len(c.LatencyCoefficients)),
		thresholds:   c.RiskThresholds,
		errThreshold: c.ErrorThreshold,
		steepness:    c.ErrorSteepness,
		baseLatency:  c.BaseLatency,
	}

	for _, name := range sortedKeys(c.FeatureBounds) {
		f, err := ParseFeature(name)
		if err != nil {
			addf("feature_bounds: %v", err)
			continue
		}
		r := c.FeatureBounds[name]
		if !finite(r.Min) || !finite(r.Max) {
			addf("feature_bounds.%s: bounds must be finite", name)
			continue
		}
		if r.Min > r.Max {
			addf("feature_bounds.%s: inverted range min=%g > max=%g", name, r.Min, r.Max)
			continue
		}
		if r.Min == r.Max {
			s.warnings = append(s.warnings, fmt.Sprintf("feature_bounds.%s: zero-width range, feature fixed at 0.5", name))
		}
		s.bounds[f] = r
	}

	weightSum := 0.0
	for _, name := range sortedKeys(c.FeatureWeights) {
		f, err := ParseFeature(name)
		if err != nil {
			addf("feature_weights: %v", err)
			continue
		}
		w := c.FeatureWeights[name]
		if !finite(w) || w < 0 {
			addf("feature_weights.%s: weight must be a finite non-negative number, got %g", name, w)
			continue
		}
		s.weights[f] = w
		weightSum += w
	}

	for _, f := range AllFeatures() {
		if _, ok := c.FeatureBounds[f.String()]; !ok {
			addf("feature_bounds: missing range for %s", f)
		}
		if _, ok := c.FeatureWeights[f.String()]; !ok {
			addf("feature_weights: missing weight for %s", f)
		}
	}
	if len(c.FeatureWeights) > 0 && weightSum <= 0 {
		addf("feature_weights: weights must not all be zero")
	}

	t := c.RiskThresholds
	cuts := []float64{t.Low, t.Medium, t.High, t.Critical}
	for i, cut := range cuts {
		if !finite(cut) || cut < 0 || cut > 1 {
			addf("risk_thresholds: cut point %g outside [0,1]", cut)
			break
		}
		if i > 0 && cut <= cuts[i-1] {
			addf("risk_thresholds: cut points must be strictly ascending, got %v", cuts)
			break
		}
	}

	if !finite(c.ErrorThreshold) || c.ErrorThreshold < 0 || c.ErrorThreshold > 1 {
		addf("error_threshold: %g outside [0,1]", c.ErrorThreshold)
	}
	if !finite(c.ErrorSteepness) || c.ErrorSteepness <= 0 {
		addf("error_steepness: must be positive, got %g", c.ErrorSteepness)
	}
	if !finite(c.BaseLatency) || c.BaseLatency < 0 {
		addf("base_latency: must be a finite non-negative number, got %g", c.BaseLatency)
	}

	for _, name := range sortedKeys(c.LatencyCoefficients) {
		f, err := ParseFeature(name)
		if err != nil {
			addf("latency_coefficients: %v", err)
			continue
		}
		coef := c.LatencyCoefficients[name]
		if !finite(coef) {
			addf("latency_coefficients.%s: coefficient must be finite", name)
			continue
		}
		s.coefficients[f] = coef
	}

	for i, rule := range c.Recommendations {
		if err := rule.validate(); err != nil {
			addf("recommendations[%d]: %v", i, err)
			continue
		}
		s.rules = append(s.rules, rule)
	}

	if len(problems) > 0 {
		return settings{}, &ConfigError{Problems: problems}
	}
	return s, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// riskLevelOrAny parses an optional risk level; empty means every level.
func riskLevelOrAny(value string) ([]models.RiskLevel, error) {
	if value == "" {
		return models.RiskLevels, nil
	}
	level, err := models.ParseRiskLevel(strings.ToLower(value))
	if err != nil {
		return nil, err
	}
	return []models.RiskLevel{level}, nil
}
