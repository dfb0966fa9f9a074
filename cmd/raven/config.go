package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	raven "github.com/ravenclient/raven-go"
)

// Config holds the settings of the raven command.
type Config struct {
	Dsn         string           `mapstructure:"dsn"`
	Release     string           `mapstructure:"release"`
	Environment string           `mapstructure:"environment"`
	ServerName  string           `mapstructure:"server_name"`
	Timeout     time.Duration    `mapstructure:"timeout"`
	Compression bool             `mapstructure:"compression"`
	Debug       bool             `mapstructure:"debug"`
	Background  BackgroundConfig `mapstructure:"background"`
}

// BackgroundConfig configures the queue events are sent from.
type BackgroundConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// LoadConfig reads the configuration from path, or from raven.{yaml,toml,json}
// in the working directory when path is empty, and from RAVEN_* environment
// variables, which take precedence. A missing default config file is not an
// error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("dsn", "")
	v.SetDefault("release", "")
	v.SetDefault("environment", "")
	v.SetDefault("server_name", "")
	v.SetDefault("timeout", 5*time.Second)
	v.SetDefault("compression", false)
	v.SetDefault("debug", false)
	v.SetDefault("background.queue_size", 40)
	v.SetDefault("background.poll_interval", time.Second)
	v.SetDefault("background.drain_timeout", 2*time.Second)

	v.SetEnvPrefix("RAVEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("raven")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ClientOptions turns the configuration into options of an Async client.
func (c *Config) ClientOptions() raven.ClientOptions {
	return raven.ClientOptions{
		Dsn:         c.Dsn,
		Release:     c.Release,
		Environment: c.Environment,
		ServerName:  c.ServerName,
		Timeout:     c.Timeout,
		Compression: c.Compression,
		Debug:       c.Debug,
		Async:       true,
		AsyncOptions: []raven.BackgroundOption{
			raven.WithQueueSize(c.Background.QueueSize),
			raven.WithPollInterval(c.Background.PollInterval),
			raven.WithDrainTimeout(c.Background.DrainTimeout),
		},
	}
}
