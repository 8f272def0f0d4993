package engine

import "math"

// PredictResponseTime estimates latency as base plus each feature scaled by its coefficient.
// Features without a coefficient do not contribute.
func PredictResponseTime(fs Features, coefficients Coefficients, base float64) float64 {
	latency := base
	for _, f := range AllFeatures() {
		latency += clamp01(fs[f]) * coefficients[f]
	}
	return latency
}

// PredictError flags an error when score reaches threshold. Confidence is a logistic curve over
// the signed distance to the threshold: 0.5 at the threshold, tending to 1 above and 0 below.
func PredictError(score, threshold, steepness float64) (bool, float64) {
	confidence := 1 / (1 + math.Exp(-steepness*(score-threshold)))
	return score >= threshold, confidence
}
