// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Sandbox   SandboxConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	IdleTimeout   time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
	DefaultCols   int           `envconfig:"SESSION_DEFAULT_COLS" default:"80"`
	DefaultRows   int           `envconfig:"SESSION_DEFAULT_ROWS" default:"24"`
}

// SandboxConfig holds the resource ceilings and security posture handed to
// the sandbox runtime.
type SandboxConfig struct {
	Image        string `envconfig:"SANDBOX_IMAGE" default:"debian:bookworm-slim"`
	MemoryMB     int64  `envconfig:"SANDBOX_MEMORY_MB" default:"256"`
	MemorySwapMB int64  `envconfig:"SANDBOX_MEMORY_SWAP_MB" default:"512"`
	CPUShares    int64  `envconfig:"SANDBOX_CPU_SHARES" default:"512"`
	PidsLimit    int64  `envconfig:"SANDBOX_PIDS_LIMIT" default:"128"`
	Profile      string `envconfig:"SANDBOX_PROFILE" default:"minimal"`
	Shell        string `envconfig:"SANDBOX_SHELL" default:"/bin/bash"`
	LocalRuntime bool   `envconfig:"SANDBOX_LOCAL_RUNTIME" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Session: SessionConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
			DefaultCols:   80,
			DefaultRows:   24,
		},
		Sandbox: SandboxConfig{
			Image:        "debian:bookworm-slim",
			MemoryMB:     256,
			MemorySwapMB: 512,
			CPUShares:    512,
			PidsLimit:    128,
			Profile:      "minimal",
			Shell:        "/bin/bash",
			LocalRuntime: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
