package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/eugenenazirov/yourdles/internal/settings"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// Config aggregates the runtime configuration of the inspection server.
// Precedence: CLI flags > settings file (server.*) > envs.* > Defaults
type Config struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load resolves the server configuration from a settings snapshot with precedence:
// CLI flags > settings file (server.*) > envs.* > Defaults
func Load(conf settings.Value, overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// dotenv pairs are the lowest non-default layer
	applyEnvConfig(&cfg, conf.Get(settings.EnvsKey))

	applyServerConfig(&cfg, conf.Get("server"))

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// applyServerConfig applies the server section of the settings.
func applyServerConfig(cfg *Config, server settings.Value) {
	if port := strings.TrimSpace(server.Get("port").String()); port != "" {
		cfg.Port = port
	}

	cfg.ShutdownGracePeriod = server.Get("shutdown_grace_period").DurationOr(cfg.ShutdownGracePeriod)
	cfg.ReadHeaderTimeout = server.Get("read_header_timeout").DurationOr(cfg.ReadHeaderTimeout)
	cfg.WriteTimeout = server.Get("write_timeout").DurationOr(cfg.WriteTimeout)
	cfg.IdleTimeout = server.Get("idle_timeout").DurationOr(cfg.IdleTimeout)

	if enabled, ok := server.Get("request_logging").Bool(); ok {
		cfg.EnableRequestLogging = enabled
	}

	rateLimit := server.Get("rate_limit")
	if rps, ok := rateLimit.Get("rps").Float(); ok && rps >= 0 {
		cfg.RateLimitRPS = rps
	}
	if burst, ok := rateLimit.Get("burst").Int(); ok && burst >= 0 {
		cfg.RateLimitBurst = burst
	}
}

// applyEnvConfig applies the PORT and RATE_LIMIT_* pairs of the dotenv file.
func applyEnvConfig(cfg *Config, envs settings.Value) {
	if port := strings.TrimSpace(envs.Get("PORT").String()); port != "" {
		cfg.Port = port
	}

	if rps, ok := envs.Get("RATE_LIMIT_RPS").Float(); ok && rps >= 0 {
		cfg.RateLimitRPS = rps
	}

	if burst, ok := envs.Get("RATE_LIMIT_BURST").Int(); ok && burst >= 0 {
		cfg.RateLimitBurst = burst
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit rps must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit burst must be >= 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}
