package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MetricsSnapshot is one point-in-time reading of a monitored API service.
type MetricsSnapshot struct {
	TrafficCount    int     `json:"traffic_count" yaml:"traffic_count"`
	ErrorRate       int     `json:"error_rate" yaml:"error_rate"`
	Uptime          int     `json:"uptime" yaml:"uptime"`
	CPUUsage        float64 `json:"cpu_usage" yaml:"cpu_usage"`
	MemoryUsage     float64 `json:"memory_usage" yaml:"memory_usage"`
	DiskIO          float64 `json:"disk_io" yaml:"disk_io"`
	ConcurrentUsers int     `json:"concurrent_users" yaml:"concurrent_users"`
}

// ValidationError reports a structurally invalid snapshot payload.
type ValidationError struct {
	Missing []string
	Err     error
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Missing) > 0 && e.Err != nil:
		return fmt.Sprintf("invalid metrics snapshot: missing %s: %v", strings.Join(e.Missing, ", "), e.Err)
	case len(e.Missing) > 0:
		return fmt.Sprintf("invalid metrics snapshot: missing %s", strings.Join(e.Missing, ", "))
	case e.Err != nil:
		return fmt.Sprintf("invalid metrics snapshot: %v", e.Err)
	default:
		return "invalid metrics snapshot"
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// snapshotPayload mirrors MetricsSnapshot with pointer fields so absent keys can be told apart
// from zero values.
type snapshotPayload struct {
	TrafficCount    *int     `json:"traffic_count"`
	ErrorRate       *int     `json:"error_rate"`
	Uptime          *int     `json:"uptime"`
	CPUUsage        *float64 `json:"cpu_usage"`
	MemoryUsage     *float64 `json:"memory_usage"`
	DiskIO          *float64 `json:"disk_io"`
	ConcurrentUsers *int     `json:"concurrent_users"`
}

// DecodeSnapshot parses a JSON object into a MetricsSnapshot. Every metric must be present;
// magnitudes are not checked because the engine clamps them.
func DecodeSnapshot(data []byte) (MetricsSnapshot, error) {
	var payload snapshotPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&payload); err != nil {
		return MetricsSnapshot{}, &ValidationError{Err: err}
	}
	return payload.snapshot()
}

func (p snapshotPayload) snapshot() (MetricsSnapshot, error) {
	missing := make([]string, 0)
	if p.TrafficCount == nil {
		missing = append(missing, "traffic_count")
	}
	if p.ErrorRate == nil {
		missing = append(missing, "error_rate")
	}
	if p.Uptime == nil {
		missing = append(missing, "uptime")
	}
	if p.CPUUsage == nil {
		missing = append(missing, "cpu_usage")
	}
	if p.MemoryUsage == nil {
		missing = append(missing, "memory_usage")
	}
	if p.DiskIO == nil {
		missing = append(missing, "disk_io")
	}
	if p.ConcurrentUsers == nil {
		missing = append(missing, "concurrent_users")
	}
	if len(missing) > 0 {
		return MetricsSnapshot{}, &ValidationError{Missing: missing}
	}

	return MetricsSnapshot{
		TrafficCount:    *p.TrafficCount,
		ErrorRate:       *p.ErrorRate,
		Uptime:          *p.Uptime,
		CPUUsage:        *p.CPUUsage,
		MemoryUsage:     *p.MemoryUsage,
		DiskIO:          *p.DiskIO,
		ConcurrentUsers: *p.ConcurrentUsers,
	}, nil
}
