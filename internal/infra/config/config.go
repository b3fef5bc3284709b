package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
// It is resolved once at startup and handed to components explicitly.
type Config struct {
	Environment string        `yaml:"environment"`
	Log         LogConfig     `yaml:"log"`
	HTTP        HTTPConfig    `yaml:"http"`
	Backend     BackendConfig `yaml:"backend"`
	Auth        AuthConfig    `yaml:"auth"`
	Insight     InsightConfig `yaml:"insight"`
	Session     SessionConfig `yaml:"session"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// BackendConfig points at the remote correlation/insight service.
type BackendConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	AnalyzePath       string        `yaml:"analyzePath"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig configures best-effort retries of unavailable backend calls.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
}

// AuthConfig controls bearer token validation.
type AuthConfig struct {
	Secret             string        `yaml:"secret"`
	TokenTTL           time.Duration `yaml:"tokenTtl"`
	RequireEntitlement bool          `yaml:"requireEntitlement"`
}

// InsightConfig tunes the input change detector.
type InsightConfig struct {
	HourlyWindow int `yaml:"hourlyWindow"`
	DailyWindow  int `yaml:"dailyWindow"`
}

// SessionConfig controls where published insight state is mirrored.
type SessionConfig struct {
	SnapshotTTL time.Duration `yaml:"snapshotTtl"`
	Redis       RedisConfig   `yaml:"redis"`
}

// RedisConfig contains connection information for the snapshot store.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_PATH"))
}

// LoadFile is Load with an explicit path; an empty path falls back to
// configs/config.yaml when present.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("BACKEND_ANALYZE_PATH"); v != "" {
		cfg.Backend.AnalyzePath = v
	}
	if v := os.Getenv("BACKEND_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = parsed
		}
	}
	if v := os.Getenv("BACKEND_RPS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Backend.RequestsPerSecond = parsed
		}
	}
	if v := os.Getenv("BACKEND_RETRY_ENABLED"); v != "" {
		cfg.Backend.Retry.Enabled = parseBool(v)
	}
	if v := os.Getenv("BACKEND_RETRY_MAX_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Backend.Retry.MaxAttempts = parsed
		}
	}
	if v := os.Getenv("BACKEND_RETRY_BASE_BACKOFF"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Retry.BaseBackoff = parsed
		}
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("AUTH_REQUIRE_ENTITLEMENT"); v != "" {
		cfg.Auth.RequireEntitlement = parseBool(v)
	}
	if v := os.Getenv("INSIGHT_HOURLY_WINDOW"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Insight.HourlyWindow = parsed
		}
	}
	if v := os.Getenv("INSIGHT_DAILY_WINDOW"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Insight.DailyWindow = parsed
		}
	}
	if v := os.Getenv("SESSION_SNAPSHOT_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Session.SnapshotTTL = parsed
		}
	}
	if v := os.Getenv("SESSION_REDIS_ENABLED"); v != "" {
		cfg.Session.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("SESSION_REDIS_ADDR"); v != "" {
		cfg.Session.Redis.Addr = v
	}
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		Environment: "development",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Address: ":8080",
			// Analyze with wait=true can hold a request for the full backend timeout.
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 40 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
		},
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8000",
			AnalyzePath:       "/analyze",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 2,
				BaseBackoff: 200 * time.Millisecond,
			},
		},
		Auth: AuthConfig{
			TokenTTL:           24 * time.Hour,
			RequireEntitlement: true,
		},
		Insight: InsightConfig{
			HourlyWindow: 8,
			DailyWindow:  3,
		},
		Session: SessionConfig{
			SnapshotTTL: 24 * time.Hour,
			Redis: RedisConfig{
				Prefix: "flarecast",
			},
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("backend.baseUrl cannot be empty")
	}
	if !strings.HasPrefix(c.Backend.AnalyzePath, "/") {
		return errors.New("backend.analyzePath must start with /")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("backend.timeout must be positive")
	}
	if c.HTTP.WriteTimeout > 0 && c.HTTP.WriteTimeout <= c.Backend.Timeout {
		// analyze?wait=true holds the response for up to backend.timeout.
		return errors.New("http.writeTimeout must exceed backend.timeout")
	}
	if c.Backend.RequestsPerSecond < 0 {
		return errors.New("backend.requestsPerSecond cannot be negative")
	}
	if c.Backend.Retry.Enabled {
		if c.Backend.Retry.MaxAttempts <= 0 {
			return errors.New("backend.retry.maxAttempts must be positive")
		}
		if c.Backend.Retry.BaseBackoff <= 0 {
			return errors.New("backend.retry.baseBackoff must be positive")
		}
	}
	if c.Insight.HourlyWindow < 0 || c.Insight.DailyWindow < 0 {
		return errors.New("insight windows cannot be negative")
	}
	if c.Session.SnapshotTTL < 0 {
		return errors.New("session.snapshotTtl cannot be negative")
	}
	if c.Session.Redis.Enabled && strings.TrimSpace(c.Session.Redis.Addr) == "" {
		return errors.New("session.redis.addr cannot be empty when redis is enabled")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.IsProduction() && strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret cannot be empty in production")
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
