package engine

import (
	"math"
	"testing"

	"github.com/miradorstack/mirador-risk/internal/models"
)

func percentBounds() FeatureBounds {
	bounds := make(FeatureBounds)
	for _, f := range AllFeatures() {
		bounds[f] = Range{Min: 0, Max: 100}
	}
	return bounds
}

func TestNormalizeClampsOutOfRange(t *testing.T) {
	bounds := percentBounds()
	over := Normalize(models.MetricsSnapshot{CPUUsage: 150, Uptime: 100}, bounds)
	full := Normalize(models.MetricsSnapshot{CPUUsage: 100, Uptime: 100}, bounds)
	if over.Get(FeatureCPUUsage) != full.Get(FeatureCPUUsage) || full.Get(FeatureCPUUsage) != 1 {
		t.Fatalf("expected clamped cpu 1.0, got %f and %f", over.Get(FeatureCPUUsage), full.Get(FeatureCPUUsage))
	}

	under := Normalize(models.MetricsSnapshot{MemoryUsage: -20, Uptime: 100}, bounds)
	if under.Get(FeatureMemoryUsage) != 0 {
		t.Fatalf("expected clamped memory 0, got %f", under.Get(FeatureMemoryUsage))
	}
}

func TestNormalizeHigherMeansWorse(t *testing.T) {
	bounds := percentBounds()
	healthy := models.MetricsSnapshot{Uptime: 100}
	unhealthy := models.MetricsSnapshot{
		TrafficCount:    100,
		ErrorRate:       100,
		Uptime:          0,
		CPUUsage:        100,
		MemoryUsage:     100,
		DiskIO:          100,
		ConcurrentUsers: 100,
	}

	good := Normalize(healthy, bounds)
	bad := Normalize(unhealthy, bounds)
	for _, f := range AllFeatures() {
		if good.Get(f) != 0 {
			t.Fatalf("%s: healthy snapshot should normalize to 0, got %f", f, good.Get(f))
		}
		if bad.Get(f) != 1 {
			t.Fatalf("%s: unhealthy snapshot should normalize to 1, got %f", f, bad.Get(f))
		}
	}
	if FeatureUptime.HigherIsWorse() {
		t.Fatalf("uptime must be inverted")
	}
}

func TestNormalizeNeutralCases(t *testing.T) {
	bounds := percentBounds()
	bounds[FeatureDiskIO] = Range{Min: 5, Max: 5}
	fs := Normalize(models.MetricsSnapshot{DiskIO: 7, CPUUsage: math.NaN(), Uptime: 100}, bounds)
	if fs.Get(FeatureDiskIO) != 0.5 {
		t.Fatalf("zero-width range should be neutral, got %f", fs.Get(FeatureDiskIO))
	}
	if fs.Get(FeatureCPUUsage) != 0.5 {
		t.Fatalf("NaN should be neutral, got %f", fs.Get(FeatureCPUUsage))
	}
}

func TestScoreWeightedMean(t *testing.T) {
	var fs Features
	fs[FeatureErrorRate] = 1
	fs[FeatureCPUUsage] = 0.5

	weights := Weights{}
	for _, f := range AllFeatures() {
		weights[f] = 0
	}
	weights[FeatureErrorRate] = 3
	weights[FeatureCPUUsage] = 1

	score, err := Score(fs, weights)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if want := (3*1 + 1*0.5) / 4.0; math.Abs(score-want) > 1e-12 {
		t.Fatalf("expected %f, got %f", want, score)
	}
}

func TestScoreMissingWeight(t *testing.T) {
	weights := Weights{FeatureCPUUsage: 1}
	if _, err := Score(Features{}, weights); !IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	th := Thresholds{Low: 0.25, Medium: 0.5, High: 0.75, Critical: 0.9}
	tests := []struct {
		score  float64
		level  models.RiskLevel
		impact models.TimeToImpact
	}{
		{0, models.RiskLow, models.ImpactNone},
		{0.25, models.RiskLow, models.ImpactNone},
		{math.Nextafter(0.5, 0), models.RiskLow, models.ImpactNone},
		{0.5, models.RiskMedium, models.ImpactHours},
		{math.Nextafter(0.75, 0), models.RiskMedium, models.ImpactHours},
		{0.75, models.RiskHigh, models.ImpactMinutes},
		{0.9, models.RiskCritical, models.ImpactImmediate},
		{1, models.RiskCritical, models.ImpactImmediate},
	}
	for _, tt := range tests {
		level, impact := Classify(tt.score, th)
		if level != tt.level || impact != tt.impact {
			t.Fatalf("score %v: expected %s/%s, got %s/%s", tt.score, tt.level, tt.impact, level, impact)
		}
	}
}

func TestPredictErrorConfidenceCurve(t *testing.T) {
	const threshold, steepness = 0.6, 10.0

	flag, confidence := PredictError(threshold, threshold, steepness)
	if !flag || confidence != 0.5 {
		t.Fatalf("expected flag and 0.5 at threshold, got %v %f", flag, confidence)
	}

	prev := -1.0
	for score := 0.0; score <= 1.0; score += 0.01 {
		flag, confidence := PredictError(score, threshold, steepness)
		if confidence <= prev {
			t.Fatalf("confidence not strictly increasing at %f", score)
		}
		if flag != (score >= threshold) {
			t.Fatalf("unexpected flag %v at %f", flag, score)
		}
		prev = confidence
	}

	if _, low := PredictError(0, threshold, steepness); low >= 0.01 {
		t.Fatalf("expected confidence near 0 far below threshold, got %f", low)
	}
}

func TestPredictResponseTime(t *testing.T) {
	var fs Features
	fs[FeatureConcurrentUsers] = 0.5
	fs[FeatureCPUUsage] = 1
	fs[FeatureUptime] = 1

	coefficients := Coefficients{FeatureConcurrentUsers: 400, FeatureCPUUsage: 300}
	if got := PredictResponseTime(fs, coefficients, 50); got != 50+200+300 {
		t.Fatalf("unexpected latency %f", got)
	}
}
