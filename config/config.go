// Package config loads chainrun settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fortressi/chainable/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CHAINRUN_CHAIN_MODE=simple.
const EnvPrefix = "CHAINRUN"

// Config is the complete chainrun configuration.
type Config struct {
	Chain   ChainConfig   `mapstructure:"chain"`
	Log     logger.Config `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ChainConfig shapes the demo chain.
type ChainConfig struct {
	Name        string `mapstructure:"name"`
	Mode        string `mapstructure:"mode"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	// RetryBelow makes the first compensation retry while the attempt
	// count is below it.
	RetryBelow int `mapstructure:"retry_below"`
	// FailAt is the index of the action that fails; -1 disables failure.
	FailAt int `mapstructure:"fail_at"`
}

// StoreConfig selects where run reports go.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
}

type TracingConfig struct {
	Enable      bool   `mapstructure:"enable"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain.name", "order")
	v.SetDefault("chain.mode", "resumable")
	v.SetDefault("chain.max_attempts", 0)
	v.SetDefault("chain.retry_below", 3)
	v.SetDefault("chain.fail_at", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "")
	v.SetDefault("metrics.enable", false)
	v.SetDefault("tracing.enable", false)
	v.SetDefault("tracing.service_name", "chainrun")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
}

// Load reads the configuration. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that viper cannot.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Chain.Mode) {
	case "", "resumable", "simple":
	default:
		errs = append(errs, fmt.Errorf("chain.mode: unknown mode %q", c.Chain.Mode))
	}
	if c.Chain.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("chain.max_attempts must not be negative"))
	}
	switch c.Store.Driver {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}
