package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-risk/internal/models"
)

func featuresDominatedBy(f Feature) Features {
	var fs Features
	for _, other := range AllFeatures() {
		fs[other] = 0.1
	}
	fs[f] = 0.9
	return fs
}

func TestRecommendByDominantFeature(t *testing.T) {
	rec, err := NewRecommender()
	if err != nil {
		t.Fatalf("new recommender: %v", err)
	}

	got := rec.Recommend(models.RiskHigh, featuresDominatedBy(FeatureCPUUsage))
	if got != "Scale compute capacity or optimize CPU-bound code paths." {
		t.Fatalf("unexpected recommendation: %q", got)
	}
	if rec.Recommend(models.RiskHigh, featuresDominatedBy(FeatureErrorRate)) == got {
		t.Fatalf("expected error-rate specific recommendation")
	}
}

func TestRecommendFallsBackToLevel(t *testing.T) {
	rec, err := NewRecommender()
	if err != nil {
		t.Fatalf("new recommender: %v", err)
	}
	for _, level := range models.RiskLevels {
		for _, f := range AllFeatures() {
			if rec.Recommend(level, featuresDominatedBy(f)) == "" {
				t.Fatalf("empty recommendation for %s/%s", level, f)
			}
		}
	}
	if got := rec.Recommend(models.RiskLow, featuresDominatedBy(FeatureDiskIO)); got != genericRecommendations[models.RiskLow] {
		t.Fatalf("expected generic low recommendation, got %q", got)
	}
	if got := rec.Recommend(models.RiskLevel("unknown"), Features{}); got == "" {
		t.Fatalf("expected safe default for unknown level")
	}
}

func TestDominantTieUsesCanonicalOrder(t *testing.T) {
	var fs Features
	fs[FeatureMemoryUsage] = 0.7
	fs[FeatureErrorRate] = 0.7
	if got := fs.Dominant(); got != FeatureErrorRate {
		t.Fatalf("expected error_rate, got %s", got)
	}
}

func TestRuleOverrides(t *testing.T) {
	rec, err := NewRecommender(
		Rule{ID: "cpu", Match: RuleMatch{RiskLevel: "high", DominantFeature: "cpu_usage"}, Recommendation: "Add nodes"},
		Rule{ID: "disk-any", Match: RuleMatch{DominantFeature: "disk_io"}, Recommendation: "Tune storage"},
		Rule{ID: "low", Match: RuleMatch{RiskLevel: "low"}, Recommendation: "All good"},
	)
	if err != nil {
		t.Fatalf("new recommender: %v", err)
	}
	if got := rec.Recommend(models.RiskHigh, featuresDominatedBy(FeatureCPUUsage)); got != "Add nodes" {
		t.Fatalf("expected override, got %q", got)
	}
	for _, level := range models.RiskLevels {
		if got := rec.Recommend(level, featuresDominatedBy(FeatureDiskIO)); got != "Tune storage" {
			t.Fatalf("%s: expected wildcard level rule, got %q", level, got)
		}
	}
	if got := rec.Recommend(models.RiskLow, featuresDominatedBy(FeatureUptime)); got != "All good" {
		t.Fatalf("expected generic override, got %q", got)
	}
}

func TestLoadRulePack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(`rules:
  - id: errors
    match:
      risk_level: "critical"
      dominant_feature: "error_rate"
    recommendation: "Roll back"
`), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRulePack(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("load rule pack: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected one rule, got %d", len(rules))
	}

	eng, err := New(DefaultConfig(), WithRules(rules...))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	snap := nominalSnapshot()
	snap.CPUUsage = 100
	snap.ErrorRate = 50
	snap.Uptime = 90
	snap.MemoryUsage = 95
	snap.DiskIO = 200
	snap.ConcurrentUsers = 5000
	got := eng.Analyze(snap)
	if got.RiskLevel != models.RiskCritical || got.Recommendation != "Roll back" {
		t.Fatalf("expected critical with rule pack recommendation, got %s / %q", got.RiskLevel, got.Recommendation)
	}
}

func TestLoadRulePackNoFile(t *testing.T) {
	rules, err := LoadRulePack("non-existent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rules != nil {
		t.Fatalf("expected no rules when file missing")
	}
}

func TestLoadRulePackInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - id: bad\n    match:\n      dominant_feature: gpu\n    recommendation: x\n"), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, err := LoadRulePack(path, nil); !IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte(`risk_thresholds:
  low: 0.2
  medium: 0.4
  high: 0.6
  critical: 0.8
recommendations:
  - id: mem
    match:
      dominant_feature: memory_usage
    recommendation: "Check heap"
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !reflect.DeepEqual(cfg.FeatureWeights, DefaultConfig().FeatureWeights) {
		t.Fatalf("expected default weights when section is omitted, got %v", cfg.FeatureWeights)
	}
	if cfg.RiskThresholds.High != 0.6 {
		t.Fatalf("expected overridden thresholds, got %+v", cfg.RiskThresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.Recommendations) != 1 {
		t.Fatalf("expected inline rule")
	}
}

func TestLoadConfigMapSectionReplacesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte("feature_weights:\n  cpu_usage: 6\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.FeatureWeights) != 1 || cfg.FeatureWeights["cpu_usage"] != 6 {
		t.Fatalf("expected only the file's weights, got %v", cfg.FeatureWeights)
	}
	err = cfg.Validate()
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError for unweighted features, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing weight for error_rate") {
		t.Fatalf("expected missing error_rate weight to be reported, got %v", err)
	}
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(cfgPath, []byte("risk_thresholds:\n  low: 0.1\n  medium: 0.2\n  high: 0.3\n  critical: 0.4\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	eng, err := NewFromFiles(cfgPath, filepath.Join(dir, "missing-rules.yaml"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new from files: %v", err)
	}
	if got := eng.Thresholds().Critical; got != 0.4 {
		t.Fatalf("expected overlaid critical threshold, got %v", got)
	}

	if err := os.WriteFile(cfgPath, []byte("error_threshold: 2\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewFromFiles(cfgPath, "", slog.New(slog.DiscardHandler)); !IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestShippedConfigsMatchDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "engine", "default.yaml"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("shipped engine config drifted from defaults:\n%+v\n%+v", cfg, DefaultConfig())
	}

	rules, err := LoadRulePack(filepath.Join("..", "..", "configs", "rules", "default.yaml"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("load shipped rules: %v", err)
	}
	if _, err := New(cfg, WithRules(rules...), WithLogger(slog.New(slog.DiscardHandler))); err != nil {
		t.Fatalf("shipped rules rejected: %v", err)
	}
}
