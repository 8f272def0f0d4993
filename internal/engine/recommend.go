package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-risk/internal/models"
)

// Rule overrides the recommendation for a risk level and dominant feature. An empty risk level
// matches every level; an empty dominant feature replaces the level's generic message.
type Rule struct {
	ID             string    `yaml:"id" json:"id"`
	Match          RuleMatch `yaml:"match" json:"match"`
	Recommendation string    `yaml:"recommendation" json:"recommendation"`
}

// RuleMatch selects where a rule applies.
type RuleMatch struct {
	RiskLevel       string `yaml:"risk_level" json:"risk_level,omitempty"`
	DominantFeature string `yaml:"dominant_feature" json:"dominant_feature,omitempty"`
}

// RuleConfigFile is the YAML root structure of a rule pack.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.Recommendation) == "" {
		return fmt.Errorf("rule %q has an empty recommendation", r.ID)
	}
	if _, err := riskLevelOrAny(r.Match.RiskLevel); err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}
	if r.Match.DominantFeature != "" {
		if _, err := ParseFeature(r.Match.DominantFeature); err != nil {
			return fmt.Errorf("rule %q: %w", r.ID, err)
		}
	}
	return nil
}

// LoadRulePack reads recommendation rules from path. An empty path or a missing file yields no
// rules and no error.
func LoadRulePack(path string, logger *slog.Logger) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("rule pack not found, using built-in recommendations", slog.String("path", path))
			return nil, nil
		}
		return nil, err
	}
	var file RuleConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule pack %s: %w", path, err)
	}
	var problems []string
	for i, rule := range file.Rules {
		if err := rule.validate(); err != nil {
			problems = append(problems, fmt.Sprintf("rules[%d]: %v", i, err))
		}
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	logger.Info("loaded rule pack", slog.String("path", path), slog.Int("rules", len(file.Rules)))
	return file.Rules, nil
}

type recKey struct {
	level    models.RiskLevel
	dominant Feature
}

// Recommender picks a remediation message from the risk level and the dominant feature.
type Recommender struct {
	table   map[recKey]string
	generic map[models.RiskLevel]string
}

var genericRecommendations = map[models.RiskLevel]string{
	models.RiskLow:      "No action required; the service is operating within normal parameters.",
	models.RiskMedium:   "Monitor the service closely and review recent changes for emerging issues.",
	models.RiskHigh:     "Investigate degraded metrics now and prepare to scale or roll back.",
	models.RiskCritical: "Page the on-call engineer and apply mitigation immediately to avoid an outage.",
}

var defaultRecommendations = map[recKey]string{
	{models.RiskMedium, FeatureErrorRate}:       "Error rate is rising; inspect recent deployments and upstream dependencies.",
	{models.RiskMedium, FeatureCPUUsage}:        "CPU usage is trending up; profile hot code paths and review autoscaling targets.",
	{models.RiskMedium, FeatureMemoryUsage}:     "Memory usage is elevated; check for leaks and unbounded caches.",
	{models.RiskMedium, FeatureConcurrentUsers}: "Concurrency is climbing; verify connection pool and worker limits.",

	{models.RiskHigh, FeatureErrorRate}:       "Investigate failing requests, check dependency health, and consider rolling back the latest release.",
	{models.RiskHigh, FeatureCPUUsage}:        "Scale compute capacity or optimize CPU-bound code paths.",
	{models.RiskHigh, FeatureMemoryUsage}:     "Increase memory limits or reduce memory footprint; look for leaks before the service is OOM-killed.",
	{models.RiskHigh, FeatureDiskIO}:          "Reduce disk I/O pressure: add caching, batch writes, or move to faster storage.",
	{models.RiskHigh, FeatureConcurrentUsers}: "Scale out replicas and enforce rate limiting to absorb concurrent load.",
	{models.RiskHigh, FeatureTrafficCount}:    "Traffic is unusually high; enable rate limiting and scale horizontally.",
	{models.RiskHigh, FeatureUptime}:          "Availability is degraded; check restarts, health probes, and failing instances.",

	{models.RiskCritical, FeatureErrorRate}:       "Roll back the latest change immediately and fail over to a healthy region if available.",
	{models.RiskCritical, FeatureCPUUsage}:        "CPU is saturated; add capacity immediately and shed non-critical load.",
	{models.RiskCritical, FeatureMemoryUsage}:     "Memory is exhausted; restart leaking instances and raise limits before requests fail.",
	{models.RiskCritical, FeatureDiskIO}:          "Disk I/O is saturated; throttle background jobs and redirect writes immediately.",
	{models.RiskCritical, FeatureConcurrentUsers}: "Concurrency is beyond capacity; enable load shedding and scale out now.",
	{models.RiskCritical, FeatureTrafficCount}:    "Traffic surge beyond capacity; enable aggressive rate limiting and scale out now.",
	{models.RiskCritical, FeatureUptime}:          "Service availability is collapsing; fail over and restore healthy instances immediately.",
}

// NewRecommender builds the recommendation table from the built-in defaults followed by rules,
// later rules taking precedence.
func NewRecommender(rules ...Rule) (*Recommender, error) {
	r := &Recommender{
		table:   make(map[recKey]string, len(defaultRecommendations)+len(rules)),
		generic: make(map[models.RiskLevel]string, len(genericRecommendations)),
	}
	for k, v := range defaultRecommendations {
		r.table[k] = v
	}
	for k, v := range genericRecommendations {
		r.generic[k] = v
	}

	var problems []string
	for i, rule := range rules {
		if err := rule.validate(); err != nil {
			problems = append(problems, fmt.Sprintf("rules[%d]: %v", i, err))
			continue
		}
		levels, _ := riskLevelOrAny(rule.Match.RiskLevel)
		for _, level := range levels {
			if rule.Match.DominantFeature == "" {
				r.generic[level] = rule.Recommendation
				continue
			}
			f, _ := ParseFeature(rule.Match.DominantFeature)
			r.table[recKey{level: level, dominant: f}] = rule.Recommendation
		}
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return r, nil
}

// Recommend returns the message for level and the dominant feature of fs, falling back to a
// generic per-level message. The result is never empty.
func (r *Recommender) Recommend(level models.RiskLevel, fs Features) string {
	if r == nil {
		r = builtinRecommender
	}
	if msg, ok := r.table[recKey{level: level, dominant: fs.Dominant()}]; ok {
		return msg
	}
	if msg, ok := r.generic[level]; ok && msg != "" {
		return msg
	}
	return genericRecommendations[models.RiskMedium]
}

var builtinRecommender, _ = NewRecommender()
