// Package config loads gridlab-server's runtime configuration from
// environment variables and an optional config file via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for gridlab-server.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains network-level settings for the TCP listener.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	OutboundQueueSize int           `mapstructure:"outbound_queue_size"`
}

// NATSConfig controls the optional audit-hook connection. Empty URL
// disables the hook entirely (spec's Non-goals exclude a required
// durable store; this stays a best-effort side channel).
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MetricsConfig controls the Prometheus/diagnostics HTTP endpoint.
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	Endpoint       string        `mapstructure:"endpoint"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// LoggingConfig controls zap logger level/encoding.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from environment variables (prefixed
// GRIDLAB_) and an optional gridlab.{yaml,json,...} file on the current
// or ./config path.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.handshake_timeout", 10*time.Second)
	v.SetDefault("server.outbound_queue_size", 32)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "gridlab.changes")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.sample_interval", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetConfigName("gridlab")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("GRIDLAB")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if cfg.Server.OutboundQueueSize <= 0 {
		cfg.Server.OutboundQueueSize = 32
	}

	return cfg, nil
}
