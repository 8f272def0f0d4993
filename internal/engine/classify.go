package engine

import "github.com/miradorstack/mirador-risk/internal/models"

var impactByLevel = map[models.RiskLevel]models.TimeToImpact{
	models.RiskLow:      models.ImpactNone,
	models.RiskMedium:   models.ImpactHours,
	models.RiskHigh:     models.ImpactMinutes,
	models.RiskCritical: models.ImpactImmediate,
}

// Classify maps a composite score onto a risk level and its time to impact. A score equal to a
// cut point belongs to the more severe level.
func Classify(score float64, t Thresholds) (models.RiskLevel, models.TimeToImpact) {
	level := levelFor(score, t)
	return level, TimeToImpactFor(level)
}

func levelFor(score float64, t Thresholds) models.RiskLevel {
	switch {
	case score >= t.Critical:
		return models.RiskCritical
	case score >= t.High:
		return models.RiskHigh
	case score >= t.Medium:
		return models.RiskMedium
	default:
		// Scores below Low are still low.
		return models.RiskLow
	}
}

// TimeToImpactFor is the fixed lookup from risk level to urgency.
func TimeToImpactFor(level models.RiskLevel) models.TimeToImpact {
	if impact, ok := impactByLevel[level]; ok {
		return impact
	}
	return models.ImpactNone
}
