package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. RK_SERVER_PORT.
const EnvPrefix = "RK"

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Database credentials are environment-only.
	if err := validateNoSecretsInConfig(v, configPath); err != nil {
		return nil, err
	}

	cfg := FromViper(v)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.metrics_port", d.Server.MetricsPort)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("rules.path", d.Rules.Path)
	v.SetDefault("rules.watch", d.Rules.Watch)
	v.SetDefault("engine.failure_policy", d.Engine.FailurePolicy)
	v.SetDefault("engine.mode", d.Engine.Mode)
	v.SetDefault("engine.multi_action", d.Engine.MultiAction)
	v.SetDefault("db.url", d.DB.URL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// FromViper reads every known key from v. Commands that bind cobra flags
// into v call this instead of LoadConfig.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MetricsPort:    v.GetInt("server.metrics_port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Rules: RulesConfig{
			Path:  v.GetString("rules.path"),
			Watch: v.GetBool("rules.watch"),
		},
		Engine: EngineConfig{
			FailurePolicy: v.GetString("engine.failure_policy"),
			Mode:          v.GetString("engine.mode"),
			MultiAction:   v.GetBool("engine.multi_action"),
		},
		DB: DBConfig{
			URL: v.GetString("db.url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
}

// Validate checks port ranges, timeout and the enumerated settings.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be between 0 and 65535, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Server.MetricsPort != 0 && cfg.Server.MetricsPort == cfg.Server.Port {
		return fmt.Errorf("metrics_port must differ from port %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	switch cfg.Engine.FailurePolicy {
	case "capture", "propagate":
	default:
		return fmt.Errorf("failure_policy must be capture or propagate, got %q", cfg.Engine.FailurePolicy)
	}
	switch cfg.Engine.Mode {
	case "first", "all":
	default:
		return fmt.Errorf("mode must be first or all, got %q", cfg.Engine.Mode)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper, configPath string) error {
	if configPath == "" || !v.InConfig("db.url") {
		return nil
	}
	// v already merges the environment, so read the file on its own.
	file := viper.New()
	file.SetConfigFile(configPath)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	u, err := url.Parse(file.GetString("db.url"))
	if err != nil {
		return fmt.Errorf("db.url: %w", err)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return fmt.Errorf("database passwords not allowed in config files (use %s_DB_URL environment variable)", EnvPrefix)
	}
	return nil
}
