package engine

import (
	"fmt"

	"github.com/miradorstack/mirador-risk/internal/models"
)

// Feature identifies one metric of a MetricsSnapshot.
type Feature int

const (
	FeatureTrafficCount Feature = iota
	FeatureErrorRate
	FeatureUptime
	FeatureCPUUsage
	FeatureMemoryUsage
	FeatureDiskIO
	FeatureConcurrentUsers

	numFeatures
)

var featureNames = [numFeatures]string{
	FeatureTrafficCount:    "traffic_count",
	FeatureErrorRate:       "error_rate",
	FeatureUptime:          "uptime",
	FeatureCPUUsage:        "cpu_usage",
	FeatureMemoryUsage:     "memory_usage",
	FeatureDiskIO:          "disk_io",
	FeatureConcurrentUsers: "concurrent_users",
}

// AllFeatures returns every feature in canonical order.
func AllFeatures() []Feature {
	out := make([]Feature, 0, numFeatures)
	for f := Feature(0); f < numFeatures; f++ {
		out = append(out, f)
	}
	return out
}

// String returns the snapshot field name of the feature.
func (f Feature) String() string {
	if f < 0 || f >= numFeatures {
		return fmt.Sprintf("feature(%d)", int(f))
	}
	return featureNames[f]
}

// HigherIsWorse reports whether a larger raw value means a less healthy service. Features for
// which it is false are inverted during normalization so that 1.0 always means worse.
func (f Feature) HigherIsWorse() bool {
	return f != FeatureUptime
}

// Raw extracts the feature's raw value from a snapshot.
func (f Feature) Raw(s models.MetricsSnapshot) float64 {
	switch f {
	case FeatureTrafficCount:
		return float64(s.TrafficCount)
	case FeatureErrorRate:
		return float64(s.ErrorRate)
	case FeatureUptime:
		return float64(s.Uptime)
	case FeatureCPUUsage:
		return s.CPUUsage
	case FeatureMemoryUsage:
		return s.MemoryUsage
	case FeatureDiskIO:
		return s.DiskIO
	case FeatureConcurrentUsers:
		return float64(s.ConcurrentUsers)
	default:
		return 0
	}
}

// ParseFeature resolves a snapshot field name.
func ParseFeature(name string) (Feature, error) {
	for f, n := range featureNames {
		if n == name {
			return Feature(f), nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// Features holds one normalized value in [0,1] per feature, indexed by Feature.
type Features [numFeatures]float64

// Get returns the normalized value of f.
func (fs Features) Get(f Feature) float64 {
	if f < 0 || f >= numFeatures {
		return 0
	}
	return fs[f]
}

// Dominant returns the feature with the greatest normalized value; ties go to the earlier
// feature in canonical order.
func (fs Features) Dominant() Feature {
	best := Feature(0)
	for f := Feature(1); f < numFeatures; f++ {
		if fs[f] > fs[best] {
			best = f
		}
	}
	return best
}

// Map returns the features keyed by name.
func (fs Features) Map() map[string]float64 {
	out := make(map[string]float64, numFeatures)
	for f := Feature(0); f < numFeatures; f++ {
		out[f.String()] = fs[f]
	}
	return out
}
