package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the risk engine.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Remote  RemoteConfig  `yaml:"remote"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
	Rules   RulesConfig   `yaml:"rules"`
	Cache   CacheConfig   `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// GatewayConfig controls the HTTP/JSON gateway.
type GatewayConfig struct {
	Address        string        `yaml:"address"`
	RateLimit      float64       `yaml:"rateLimit"`
	RateLimitBurst int           `yaml:"rateLimitBurst"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
}

// RemoteConfig configures fetching snapshots from remote metrics endpoints.
type RemoteConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
}

// EngineConfig points at the scoring configuration (bounds, weights, thresholds).
type EngineConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// Cache modes.
const (
	CacheModeNone   = "none"
	CacheModeMemory = "memory"
	CacheModeValkey = "valkey"
)

// CacheConfig controls caching of remotely fetched snapshots.
type CacheConfig struct {
	Mode         string        `yaml:"mode"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// Load initialises Config from a YAML file, an optional .env file, and environment overrides.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(os.Getenv("MIRADOR_RISK_ENV_FILE")); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv("MIRADOR_RISK_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv populates the environment from a .env file without overriding variables that are
// already set. A missing default .env file is not an error.
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			Address:        ":8000",
			RateLimit:      100,
			RateLimitBurst: 200,
			AllowedOrigins: []string{"*"},
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Remote: RemoteConfig{
			Timeout:      5 * time.Second,
			CacheTTL:     15 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Mode:         CacheModeMemory,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func (c *Config) validate() error {
	switch c.Cache.Mode {
	case CacheModeNone, CacheModeMemory, CacheModeValkey:
	default:
		return fmt.Errorf("cache.mode must be one of none, memory, valkey; got %q", c.Cache.Mode)
	}
	if c.Cache.Mode == CacheModeValkey && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache.mode is valkey")
	}
	if c.Gateway.RateLimit < 0 || c.Gateway.RateLimitBurst < 0 {
		return fmt.Errorf("gateway rate limits must not be negative")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_RISK_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_RISK_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_RISK_GATEWAY_ADDRESS"); v != "" {
		cfg.Gateway.Address = v
	}
	if v := os.Getenv("MIRADOR_RISK_GATEWAY_RATE_LIMIT"); v != "" {
		if limit, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Gateway.RateLimit = limit
		}
	}
	if v := os.Getenv("MIRADOR_RISK_GATEWAY_RATE_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.RateLimitBurst = burst
		}
	}
	if v := os.Getenv("MIRADOR_RISK_ALLOWED_ORIGINS"); v != "" {
		cfg.Gateway.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("MIRADOR_RISK_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = d
		}
	}
	if v := os.Getenv("MIRADOR_RISK_REMOTE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.CacheTTL = d
		}
	}
	if v := os.Getenv("MIRADOR_RISK_ENGINE_CONFIG"); v != "" {
		cfg.Engine.Path = v
	}
	if v := os.Getenv("MIRADOR_RISK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_RISK_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_RISK_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("MIRADOR_RISK_CACHE_MODE"); v != "" {
		cfg.Cache.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_RISK_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_RISK_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_RISK_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_RISK_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_RISK_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_RISK_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
