package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Sessions  SessionsConfig
	Build     BuildConfig
	Mutex     MutexConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8400"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SessionsConfig holds session registry configuration.
type SessionsConfig struct {
	Root        string        `envconfig:"SESSIONS_ROOT" default:"/tmp/livebuild-sessions"`
	TemplateDir string        `envconfig:"TEMPLATE_DIR" default:"./template"`
	TTL         time.Duration `envconfig:"SESSION_TTL" default:"0"` // 0 disables expiry
	SweepEvery  time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

// BuildConfig holds rebuild scheduling and compiler configuration.
type BuildConfig struct {
	Debounce     time.Duration `envconfig:"BUILD_DEBOUNCE" default:"1s"`
	Platforms    []string      `envconfig:"BUILD_PLATFORMS" default:"android,ios"`
	Entry        string        `envconfig:"BUILD_ENTRY" default:"index.tsx"`
	WebBin       string        `envconfig:"WEB_COMPILER_BIN" default:"esbuild"`
	MobileBin    string        `envconfig:"MOBILE_COMPILER_BIN" default:"metro"`
	Minify       bool          `envconfig:"BUILD_MINIFY" default:"false"`
	HistorySize  int           `envconfig:"BUILD_HISTORY_SIZE" default:"20"`
	CompileLimit time.Duration `envconfig:"COMPILE_TIMEOUT" default:"2m"`
}

// MutexConfig holds workspace mutex configuration.
type MutexConfig struct {
	WaitTimeout time.Duration `envconfig:"WORKSPACE_LOCK_TIMEOUT" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
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

// LoadOrDefault loads configuration from environment or returns default.
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
			Port: "8400",
			Host: "0.0.0.0",
		},
		Sessions: SessionsConfig{
			Root:        "/tmp/livebuild-sessions",
			TemplateDir: "./template",
			SweepEvery:  5 * time.Minute,
		},
		Build: BuildConfig{
			Debounce:     time.Second,
			Platforms:    []string{"android", "ios"},
			Entry:        "index.tsx",
			WebBin:       "esbuild",
			MobileBin:    "metro",
			HistorySize:  20,
			CompileLimit: 2 * time.Minute,
		},
		Mutex: MutexConfig{
			WaitTimeout: 30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
