package config

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/stac-fetcher/dispatcher"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/spf13/viper"
)

// EnvPrefix of the environment variables: FETCHER_PLANNER_REJECT_KM2 overrides planner.reject_km2
const EnvPrefix = "FETCHER"

// Config holds the tunable thresholds of the pipeline
type Config struct {
	Planner    planner.Policy   `mapstructure:"planner"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
}

// DispatcherConfig configures the vector strategy
type DispatcherConfig struct {
	Workers     int `mapstructure:"workers"`
	QuadkeyZoom int `mapstructure:"quadkey_zoom"`
}

// Default returns the configuration used when no file nor environment variable is provided
func Default() Config {
	return Config{
		Planner: planner.DefaultPolicy(),
		Dispatcher: DispatcherConfig{
			Workers:     dispatcher.DefaultWorkers,
			QuadkeyZoom: dispatcher.DefaultQuadkeyZoom,
		},
	}
}

// Load reads the configuration file (yaml, json or toml, optional if path is empty)
// then the environment variables, over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	// Scalar keys must be known to viper to be overridden by the environment
	v.SetDefault("planner.warn_km2", cfg.Planner.WarnKm2)
	v.SetDefault("planner.reject_km2", cfg.Planner.RejectKm2)
	v.SetDefault("planner.default_days", cfg.Planner.DefaultDays)
	v.SetDefault("planner.retry_extra_days", cfg.Planner.RetryExtraDays)
	v.SetDefault("dispatcher.workers", cfg.Dispatcher.Workers)
	v.SetDefault("dispatcher.quadkey_zoom", cfg.Dispatcher.QuadkeyZoom)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Steps replace the defaults instead of being merged with them
	if v.IsSet("planner.limit_steps") {
		cfg.Planner.LimitSteps = nil
	}
	if v.IsSet("planner.scale_steps") {
		cfg.Planner.ScaleSteps = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the policy and the dispatcher settings
func (c *Config) Validate() error {
	if err := c.Planner.Validate(); err != nil {
		return fmt.Errorf("config.%w", err)
	}
	if c.Dispatcher.Workers <= 0 {
		return fmt.Errorf("config: dispatcher.workers must be positive, got %d", c.Dispatcher.Workers)
	}
	if c.Dispatcher.QuadkeyZoom < 1 || c.Dispatcher.QuadkeyZoom > 23 {
		return fmt.Errorf("config: dispatcher.quadkey_zoom must be in [1, 23], got %d", c.Dispatcher.QuadkeyZoom)
	}
	return nil
}
