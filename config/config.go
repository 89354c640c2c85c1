// Package config provides configuration management for the bridge. Values are
// read once at startup and passed into the core as immutable plain values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/vertex"
)

// Auth mode values.
const (
	AuthModeServiceAccount = "service_account"
	AuthModeExpress        = "express"
)

var defaultNameFilters = []string{"google/gemini-", "anthropic/claude-", "meta/llama"}

// Config holds the application configuration.
type Config struct {
	// AuthMode is service_account or express, chosen automatically: a
	// configured API key selects express mode.
	AuthMode string `yaml:"auth_mode"`

	// Service account mode
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`

	// Express mode
	APIKey string `yaml:"api_key"`

	// Region overrides in "pattern=region,pattern=region" form.
	RegionOverrides string `yaml:"region_overrides"`

	// Shared
	ProxyKey          string        `yaml:"proxy_key"`
	Bind              string        `yaml:"bind"`
	Port              int           `yaml:"port"`
	AutoRefresh       bool          `yaml:"auto_refresh"`
	TokenExpiryBuffer time.Duration `yaml:"token_expiry_buffer"`
	TokenCacheFile    string        `yaml:"token_cache_file"`
	FilterModelNames  bool          `yaml:"filter_model_names"`
	Publishers        []string      `yaml:"publishers"`
	ExtraModels       []string      `yaml:"extra_models"`
	NameFilters       []string      `yaml:"name_filters"`
	MetricsEnabled    bool          `yaml:"metrics"`
	MetricsEndpoint   string        `yaml:"metrics_endpoint"`
}

// Load reads configuration from an optional .env file, an optional YAML
// config file (SVBRIDGE_CONFIG, default ./svbridge.yaml) and the environment.
// Environment values override file values.
func Load() (*Config, error) {
	// Optional .env file; absence is fine.
	_ = godotenv.Load() //nolint:errcheck

	cfg := &Config{
		Location:          "us-central1",
		Bind:              "localhost",
		Port:              8086,
		AutoRefresh:       true,
		TokenExpiryBuffer: 10 * time.Minute,
		TokenCacheFile:    "svbridge-token.json",
		FilterModelNames:  true,
		Publishers:        []string{"google", "anthropic", "meta"},
		NameFilters:       defaultNameFilters,
		MetricsEndpoint:   "/metrics",
	}

	if err := loadFile(cfg); err != nil {
		return nil, err
	}
	loadEnv(cfg)

	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthModeServiceAccount
		if cfg.APIKey != "" {
			cfg.AuthMode = AuthModeExpress
		}
	}
	if cfg.AuthMode != AuthModeServiceAccount && cfg.AuthMode != AuthModeExpress {
		return nil, fmt.Errorf("invalid auth mode %q", cfg.AuthMode)
	}
	if cfg.AuthMode == AuthModeExpress && cfg.APIKey == "" {
		return nil, fmt.Errorf("express mode requires an API key")
	}

	// Extra models without a namespace are prefixed at configuration time,
	// never at request time.
	for i, m := range cfg.ExtraModels {
		cfg.ExtraModels[i] = vertex.NormalizeModel(m)
	}

	// Validate the override rules eagerly so a typo fails startup.
	if _, err := vertex.ParseRegionRules(cfg.RegionOverrides); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RegionRules parses the configured override rules. Load has already
// validated them.
func (c *Config) RegionRules() []vertex.RegionRule {
	rules, _ := vertex.ParseRegionRules(c.RegionOverrides)
	return rules
}

// loadFile merges an optional YAML config file beneath the environment.
func loadFile(cfg *Config) error {
	path := os.Getenv("SVBRIDGE_CONFIG")
	explicit := path != ""
	if path == "" {
		path = "svbridge.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if explicit {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	cfg.APIKey = getEnv("VERTEX_API_KEY", cfg.APIKey)
	cfg.Location = getEnv("VERTEX_LOCATION", cfg.Location)
	cfg.RegionOverrides = getEnv("VERTEX_REGION_OVERRIDES", cfg.RegionOverrides)
	cfg.ProjectID = getEnv("VERTEX_PROJECT_ID", cfg.ProjectID)
	cfg.ProxyKey = getEnv("PROXY_KEY", cfg.ProxyKey)
	cfg.Bind = getEnv("BIND", cfg.Bind)
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.AutoRefresh = getEnvBool("AUTO_REFRESH", cfg.AutoRefresh)
	cfg.TokenExpiryBuffer = getEnvDuration("TOKEN_EXPIRY_BUFFER", cfg.TokenExpiryBuffer)
	cfg.TokenCacheFile = getEnv("TOKEN_CACHE_FILE", cfg.TokenCacheFile)
	cfg.FilterModelNames = getEnvBool("FILTER_MODEL_NAMES", cfg.FilterModelNames)
	cfg.Publishers = getEnvList("PUBLISHERS", cfg.Publishers)
	cfg.ExtraModels = getEnvList("EXTRA_MODELS", cfg.ExtraModels)
	cfg.MetricsEnabled = getEnvBool("METRICS", cfg.MetricsEnabled)
	cfg.MetricsEndpoint = getEnv("METRICS_ENDPOINT", cfg.MetricsEndpoint)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(v) != "false"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
