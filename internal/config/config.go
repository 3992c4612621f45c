// Package config loads the console configuration from the environment.
// Every knob the dashboard used to hard-code lives here with the same
// value as its default, so a bare environment behaves identically.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all console configuration.
type Config struct {
	API           APIConfig
	Resilience    ResilienceConfig
	Cache         CacheConfig
	Health        HealthConfig
	Session       SessionConfig
	Observability ObservabilityConfig
	Monitor       MonitorConfig
}

// APIConfig holds the platform endpoints and request timeouts.
type APIConfig struct {
	// BaseURL is the platform origin without any path.
	BaseURL string `validate:"required,url"`
	// APIRoot is the path prefix for regular API calls.
	APIRoot string `validate:"required,startswith=/"`
	// ScheduleURL is the scheduling sidecar's own origin.
	ScheduleURL    string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gt=0"`
	UploadTimeout  time.Duration `validate:"gt=0"`
	ProbeTimeout   time.Duration `validate:"gt=0"`
}

// ResilienceConfig holds retry and degradation settings.
type ResilienceConfig struct {
	MaxRetries     int           `validate:"min=1"`
	RetryBaseDelay time.Duration `validate:"gt=0"`
	// FragilePrefixes lists resolved-URL prefixes whose transport
	// failures degrade softly instead of erroring.
	FragilePrefixes []string
}

// CacheConfig holds status-cache settings.
type CacheConfig struct {
	TTL time.Duration `validate:"gt=0"`
}

// HealthConfig holds the aggregate health probe settings.
type HealthConfig struct {
	Interval time.Duration `validate:"gt=0"`
}

// SessionConfig holds tenant-session settings.
type SessionConfig struct {
	// DefaultCompany is selected at startup when set; otherwise the
	// first listed company is.
	DefaultCompany string
}

// ObservabilityConfig holds logging and telemetry settings.
type ObservabilityConfig struct {
	LogLevel     string  `validate:"oneof=debug info warn error"`
	Debug        bool
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string  `validate:"required"`
	SampleRate   float64 `validate:"gte=0,lte=1"`
}

// MonitorConfig holds the diagnostics server settings.
type MonitorConfig struct {
	Listen string `validate:"required"`
}

// ScheduleProbePath is the scheduling service's health endpoint on its
// own origin.
func (c APIConfig) ScheduleProbePath() string {
	return c.ScheduleURL + "/health"
}

// Load reads configuration from PERCH_* environment variables and
// validates it.
func Load() (*Config, error) {
	scheduleURL := getEnv("PERCH_SCHEDULE_URL", "http://localhost:8010")

	cfg := &Config{
		API: APIConfig{
			BaseURL:        getEnv("PERCH_BASE_URL", "http://localhost:8000"),
			APIRoot:        getEnv("PERCH_API_ROOT", "/api"),
			ScheduleURL:    scheduleURL,
			RequestTimeout: parseDuration("PERCH_REQUEST_TIMEOUT", "8s"),
			UploadTimeout:  parseDuration("PERCH_UPLOAD_TIMEOUT", "60s"),
			ProbeTimeout:   parseDuration("PERCH_PROBE_TIMEOUT", "3s"),
		},
		Resilience: ResilienceConfig{
			MaxRetries:      parseInt("PERCH_MAX_RETRIES", 3),
			RetryBaseDelay:  parseDuration("PERCH_RETRY_BASE_DELAY", "1s"),
			FragilePrefixes: parseList("PERCH_FRAGILE_PREFIXES", []string{scheduleURL, "/health/schedule-service"}),
		},
		Cache: CacheConfig{
			TTL: parseDuration("PERCH_CACHE_TTL", "5m"),
		},
		Health: HealthConfig{
			Interval: parseDuration("PERCH_HEALTH_INTERVAL", "30s"),
		},
		Session: SessionConfig{
			DefaultCompany: getEnv("PERCH_COMPANY", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:     getEnv("PERCH_LOG_LEVEL", "info"),
			Debug:        parseBool("PERCH_DEBUG", false),
			OTELEnabled:  parseBool("PERCH_OTEL_ENABLED", false),
			OTELEndpoint: getEnv("PERCH_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:  getEnv("PERCH_SERVICE_NAME", "perchctl"),
			SampleRate:   parseFloat("PERCH_SAMPLE_RATE", 1.0),
		},
		Monitor: MonitorConfig{
			Listen: getEnv("PERCH_MONITOR_LISTEN", ":8900"),
		},
	}

	// Debug implies debug-level logging.
	if cfg.Observability.Debug {
		cfg.Observability.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate runs struct-tag validation over the whole tree.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// parseDuration accepts Go duration strings and, for compatibility with
// the dashboard's old millisecond knobs, bare integers meaning ms.
func parseDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, _ := time.ParseDuration(defaultValue)
	return d
}

func parseList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
