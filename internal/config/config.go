package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the sync daemon. The event stream
// and command endpoints default to the local backend; reconnection policy is
// a compile-time property of the stream package, not configuration.
type Config struct {
	EventStreamURL   string
	CommandBaseURL   string
	BindAddr         string
	LogLevel         string
	MetricsNamespace string
	CommandTimeout   time.Duration
	ShutdownTimeout  time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		EventStreamURL:   envOrDefault("SENTINEL_WS_URL", "ws://127.0.0.1:8000/ws/events"),
		CommandBaseURL:   envOrDefault("SENTINEL_API_URL", "http://127.0.0.1:8000/api"),
		BindAddr:         envOrDefault("SENTINEL_BIND_ADDR", "127.0.0.1:8765"),
		LogLevel:         envOrDefault("SENTINEL_LOG_LEVEL", "info"),
		MetricsNamespace: envOrDefault("SENTINEL_METRICS_NAMESPACE", "sentinel"),
		CommandTimeout:   30 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
	var err error
	cfg.CommandTimeout, err = durationFromEnv("SENTINEL_COMMAND_TIMEOUT", cfg.CommandTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("SENTINEL_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	u, err := url.Parse(cfg.EventStreamURL)
	if err != nil {
		return Config{}, fmt.Errorf("SENTINEL_WS_URL parse error: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return Config{}, fmt.Errorf("SENTINEL_WS_URL must use ws or wss scheme, got %q", u.Scheme)
	}

	if cfg.CommandTimeout <= 0 {
		return Config{}, fmt.Errorf("SENTINEL_COMMAND_TIMEOUT must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("SENTINEL_SHUTDOWN_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}
