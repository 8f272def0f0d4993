package models

import (
	"bytes"
	"fmt"
)

// RiskAssessment is the result of analysing a single MetricsSnapshot.
type RiskAssessment struct {
	PredictedResponseTime    float64      `json:"predicted_response_time"`
	PredictedErrorOccurrence ErrorFlag    `json:"predicted_error_occurrence"`
	ErrorConfidence          float64      `json:"error_confidence"`
	RiskLevel                RiskLevel    `json:"risk_level"`
	TimeToImpact             TimeToImpact `json:"time_to_impact"`
	Recommendation           string       `json:"recommendation"`
}

// RiskLevel is the categorical outcome of classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists every level from least to most severe.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Severity orders risk levels; unknown levels rank below low.
func (l RiskLevel) Severity() int {
	for i, level := range RiskLevels {
		if l == level {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the enumerated levels.
func (l RiskLevel) Valid() bool {
	return l.Severity() >= 0
}

// ParseRiskLevel accepts a level name.
func ParseRiskLevel(value string) (RiskLevel, error) {
	level := RiskLevel(value)
	if !level.Valid() {
		return "", fmt.Errorf("unknown risk level %q", value)
	}
	return level, nil
}

// TimeToImpact is a categorical urgency estimate derived from the risk level.
type TimeToImpact string

const (
	ImpactNone      TimeToImpact = "none"
	ImpactHours     TimeToImpact = "hours"
	ImpactMinutes   TimeToImpact = "minutes"
	ImpactImmediate TimeToImpact = "immediate"
)

// ErrorFlag reports whether an error is likely. It is encoded as 0/1 on the wire and accepts
// either numbers or booleans when decoding.
type ErrorFlag bool

// MarshalJSON encodes the flag as 0 or 1.
func (f ErrorFlag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON decodes 0, 1, true or false.
func (f *ErrorFlag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "1", "true":
		*f = true
	case "0", "false", "null":
		*f = false
	default:
		return fmt.Errorf("invalid error flag %s", data)
	}
	return nil
}

// Int returns the flag as 0 or 1.
func (f ErrorFlag) Int() int {
	if f {
		return 1
	}
	return 0
}
