// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Generator backends.
const (
	GeneratorSimulated = "simulated"
	GeneratorGemini    = "gemini"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text (slog) or json (zap) output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the dispatch queue. A full queue rejects dispatches.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of dispatch workers.
	WorkerCount int `koanf:"worker_count"`

	// DefaultDailyLimit applies to users without their own setting.
	DefaultDailyLimit int `koanf:"default_daily_limit"`

	// MaxMatchLimit caps GET /matches?limit.
	MaxMatchLimit int `koanf:"max_match_limit"`

	// Generator selects the conversation backend: simulated or gemini.
	Generator string `koanf:"generator"`

	GeminiAPIKey       string `koanf:"gemini_api_key"`
	GeminiModel        string `koanf:"gemini_model"`
	ConversationRounds int    `koanf:"conversation_rounds"`

	// GeneratorTimeoutMS bounds a single generator attempt.
	GeneratorTimeoutMS int `koanf:"generator_timeout_ms"`

	// GeneratorRetries is how often transient generator failures are retried.
	GeneratorRetries int `koanf:"generator_retries"`

	// SimulatedLatencyMinMS and SimulatedLatencyMaxMS bound the simulated generator.
	SimulatedLatencyMinMS int `koanf:"simulated_latency_min_ms"`
	SimulatedLatencyMaxMS int `koanf:"simulated_latency_max_ms"`

	// DatabaseURL enables PostgreSQL quota and history storage when set.
	DatabaseURL string `koanf:"database_url"`

	// ProfilesFile is a YAML fixture with profiles and settings.
	ProfilesFile string `koanf:"profiles_file"`

	// QuotaTimezone is the IANA zone that decides where a quota day starts.
	QuotaTimezone string `koanf:"quota_timezone"`

	// AutoDispatchIntervalS runs auto-dispatch periodically; 0 disables it.
	AutoDispatchIntervalS int `koanf:"auto_dispatch_interval_s"`

	// JobRetentionS drops terminal jobs older than this; 0 keeps them forever.
	JobRetentionS int `koanf:"job_retention_s"`

	// ShutdownTimeoutS bounds graceful shutdown.
	ShutdownTimeoutS int `koanf:"shutdown_timeout_s"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		QueueSize:             1024,
		WorkerCount:           runtime.NumCPU() * 2,
		DefaultDailyLimit:     5,
		MaxMatchLimit:         50,
		Generator:             GeneratorSimulated,
		GeminiModel:           "gemini-2.0-flash",
		ConversationRounds:    6,
		GeneratorTimeoutMS:    60_000,
		GeneratorRetries:      1,
		SimulatedLatencyMinMS: 2_000,
		SimulatedLatencyMaxMS: 5_000,
		QuotaTimezone:         "UTC",
		JobRetentionS:         86_400,
		ShutdownTimeoutS:      30,
	}
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(strings.TrimSpace(c.Addr) != "", "addr must not be empty")
	check(c.QueueSize > 0, "queue_size must be positive")
	check(c.WorkerCount > 0, "worker_count must be positive")
	check(c.DefaultDailyLimit >= 1 && c.DefaultDailyLimit <= 10, "default_daily_limit must be between 1 and 10")
	check(c.MaxMatchLimit > 0, "max_match_limit must be positive")
	check(c.ConversationRounds > 0, "conversation_rounds must be positive")
	check(c.GeneratorTimeoutMS > 0, "generator_timeout_ms must be positive")
	check(c.GeneratorRetries >= 0, "generator_retries must not be negative")
	check(c.SimulatedLatencyMinMS >= 0 && c.SimulatedLatencyMaxMS >= c.SimulatedLatencyMinMS,
		"simulated latency bounds must satisfy 0 <= min <= max")
	check(c.AutoDispatchIntervalS >= 0, "auto_dispatch_interval_s must not be negative")
	check(c.JobRetentionS >= 0, "job_retention_s must not be negative")

	switch c.Generator {
	case GeneratorSimulated:
	case GeneratorGemini:
		check(strings.TrimSpace(c.GeminiAPIKey) != "", "gemini_api_key is required for the gemini generator")
	default:
		problems = append(problems, fmt.Sprintf("unknown generator %q", c.Generator))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log_format %q", c.LogFormat))
	}
	if _, err := time.LoadLocation(c.QuotaTimezone); err != nil {
		problems = append(problems, fmt.Sprintf("quota_timezone: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// GeneratorTimeout returns GeneratorTimeoutMS as a duration.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.GeneratorTimeoutMS) * time.Millisecond
}

// AutoDispatchInterval returns AutoDispatchIntervalS as a duration.
func (c *Config) AutoDispatchInterval() time.Duration {
	return time.Duration(c.AutoDispatchIntervalS) * time.Second
}

// JobRetention returns JobRetentionS as a duration.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionS) * time.Second
}

// ShutdownTimeout returns ShutdownTimeoutS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Location resolves QuotaTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
