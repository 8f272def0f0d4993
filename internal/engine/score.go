package engine

import "fmt"

// Score computes the composite risk score as the weighted arithmetic mean of the normalized
// features. Every feature must carry a weight.
func Score(fs Features, weights Weights) (float64, error) {
	var missing []string
	total, sum := 0.0, 0.0
	for _, f := range AllFeatures() {
		w, ok := weights[f]
		if !ok {
			missing = append(missing, fmt.Sprintf("feature_weights: missing weight for %s", f))
			continue
		}
		total += w
		sum += w * clamp01(fs[f])
	}
	if len(missing) > 0 {
		return 0, &ConfigError{Problems: missing}
	}
	if total <= 0 {
		return 0, &ConfigError{Problems: []string{"feature_weights: weights must not all be zero"}}
	}
	return clamp01(sum / total), nil
}
