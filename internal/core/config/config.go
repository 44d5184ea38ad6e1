// Package config provides configuration management for RuleKeeper services.
package config

import (
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server ServerConfig
	Rules  RulesConfig
	Engine EngineConfig
	DB     DBConfig
	Log    LogConfig
}

// ServerConfig holds configuration for the gRPC rule service.
type ServerConfig struct {
	Host           string
	Port           int
	MetricsPort    int // 0 disables the metrics endpoint
	RequestTimeout time.Duration
}

// RulesConfig locates the rule file served by default.
type RulesConfig struct {
	Path  string
	Watch bool
}

// EngineConfig selects evaluation behaviour.
type EngineConfig struct {
	FailurePolicy string // capture | propagate
	Mode          string // first | all
	MultiAction   bool
}

// DBConfig configures the optional decision log.
type DBConfig struct {
	URL string // empty disables the decision log
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			MetricsPort:    9090,
			RequestTimeout: 30 * time.Second,
		},
		Rules: RulesConfig{
			Watch: true,
		},
		Engine: EngineConfig{
			FailurePolicy: "capture",
			Mode:          "first",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
