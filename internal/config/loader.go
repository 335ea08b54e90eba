// Package config loads tool-level configuration from defaults, an
// optional config file, and environment variables.
//
// Precedence (lowest to highest): built-in defaults, config file
// (stthreader.yaml in the working directory or ~/.config/stthreader),
// environment variables (STTHREADER_*), then command-line flags applied
// by the caller.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the tool-level configuration.
type Config struct {
	Execution ExecutionConfig `mapstructure:"execution"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
}

// ExecutionConfig holds scheduling defaults applied when neither the
// manifest nor flags set a value.
type ExecutionConfig struct {
	// Threads is the default maximum number of simultaneous external
	// processes.
	Threads int `mapstructure:"threads"`

	// Timeout is the default per-job wall time bound. Zero means
	// unbounded.
	Timeout time.Duration `mapstructure:"timeout"`

	// LaunchRate is the default maximum process launches per second.
	// Zero means unlimited.
	LaunchRate float64 `mapstructure:"launch_rate"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig configures the optional status HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Load reads configuration. A missing config file is not an error; only a
// malformed one is.
func Load(ctx context.Context) (*Config, error) {
	_ = ctx

	v := viper.New()

	v.SetDefault("execution.threads", 4)
	v.SetDefault("execution.timeout", "0s")
	v.SetDefault("execution.launch_rate", 0.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8750)

	v.SetConfigName("stthreader")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/stthreader")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("STTHREADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}
