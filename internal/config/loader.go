package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "FOOTPRINT"

// NewViper builds a Viper instance with footprint's standard settings:
// YAML file type, FOOTPRINT_ env prefix, automatic env binding, a key
// replacer mapping "." to "_" so that "match.overlap_threshold" resolves
// to FOOTPRINT_MATCH_OVERLAP_THRESHOLD, and every key registered with its
// default.
//
// Callers may bind command-line flags onto the returned instance before
// passing it to LoadWith.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Load reads the YAML file at configPath, if any, merges FOOTPRINT_*
// environment overrides, applies defaults and validates the result.
// An empty configPath loads from the environment and defaults only.
func Load(configPath string) (*Config, error) {
	return LoadWith(NewViper(), configPath)
}

// LoadWith is Load on a caller-supplied Viper instance, typically one with
// flags bound to it.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}
