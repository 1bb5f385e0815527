// Package config loads configuration from a yaml file merged with
// environment variables. Environment keys override file values, e.g.
// SERVER_PORT=9000 overrides server.port.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration shared by the API server and the agent
// worker.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Insights InsightsConfig `mapstructure:"insights"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection settings. An empty URL
// selects the in-memory store, used in development and tests.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// NATSConfig holds the bus connection settings. An empty URL selects the
// in-memory bus.
type NATSConfig struct {
	URL        string `mapstructure:"url"`
	StreamName string `mapstructure:"stream_name"`
}

// AuthConfig holds JWT bearer settings for the API. An empty secret
// disables authentication.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// InsightsConfig points at the extraction/classification/analysis service.
// An empty base URL selects the static in-process implementations.
type InsightsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`

	// Circuit breaker tuning.
	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// AlertsConfig points at the alert webhook. An empty URL disables alerts.
type AlertsConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AgentsConfig tunes the stage runners.
type AgentsConfig struct {
	ReceiveWait time.Duration `mapstructure:"receive_wait"`
}

// LoggerConfig tunes zerolog output.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// Load reads config.yaml from the working directory or ./configs, then
// applies environment overrides. A missing file is not an error; defaults
// and environment carry the configuration.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("nats.stream_name", "INVOICES")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("insights.timeout", 30*time.Second)
	v.SetDefault("insights.breaker_max_requests", 1)
	v.SetDefault("insights.breaker_interval", 60*time.Second)
	v.SetDefault("insights.breaker_timeout", 30*time.Second)
	v.SetDefault("insights.consecutive_failures", 5)
	v.SetDefault("alerts.timeout", 10*time.Second)
	v.SetDefault("agents.receive_wait", 5*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
