package engine

import (
	"math"

	"github.com/miradorstack/mirador-risk/internal/models"
)

// neutralValue is used when a feature cannot be placed on its range.
const neutralValue = 0.5

// Normalize maps every snapshot metric onto [0,1] using bounds, inverting features where a
// higher raw value is healthier so that 1.0 always means worse. Raw values outside the bounds
// are clamped. A zero-width or missing range yields 0.5.
func Normalize(s models.MetricsSnapshot, bounds FeatureBounds) Features {
	var fs Features
	for _, f := range AllFeatures() {
		fs[f] = normalizeValue(f, f.Raw(s), bounds[f])
	}
	return fs
}

func normalizeValue(f Feature, raw float64, r Range) float64 {
	width := r.Width()
	if width <= 0 || math.IsNaN(raw) {
		return neutralValue
	}
	v := clamp01((raw - r.Min) / width)
	if !f.HigherIsWorse() {
		v = 1 - v
	}
	return v
}

// Clamped lists the features whose raw value in s lies outside its configured range.
func Clamped(s models.MetricsSnapshot, bounds FeatureBounds) []Feature {
	var out []Feature
	for _, f := range AllFeatures() {
		r, ok := bounds[f]
		if !ok {
			continue
		}
		raw := f.Raw(s)
		if raw < r.Min || raw > r.Max {
			out = append(out, f)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return neutralValue
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
