// Package config loads this project's runtime configuration with viper,
// so the same settings can come from a file, environment variables, or
// defaults without bespoke parsing code.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds every tunable this module's components read at startup.
type Config struct {
	BufferCache struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"buffer_cache"`

	WAL struct {
		LogsDir   string `mapstructure:"logs_dir"`
		BlockSize uint64 `mapstructure:"block_size"`
		LogSize   uint64 `mapstructure:"log_size"`
	} `mapstructure:"wal"`

	Bloom struct {
		SignWords     int `mapstructure:"sign_words"`
		BitsPerColumn int `mapstructure:"bits_per_column"`
	} `mapstructure:"bloom"`

	AMRegistry struct {
		CatalogPath string `mapstructure:"catalog_path"`
	} `mapstructure:"am_registry"`

	LogLevel string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("buffer_cache.capacity", 128)
	v.SetDefault("wal.logs_dir", "data/wal")
	v.SetDefault("wal.block_size", 4096)
	v.SetDefault("wal.log_size", 16)
	v.SetDefault("bloom.sign_words", 5)
	v.SetDefault("bloom.bits_per_column", 2)
	v.SetDefault("am_registry.catalog_path", "data/pg_am.db")
	v.SetDefault("log_level", "info")
}

// Load reads configuration from configPath if given (any format viper
// supports — yaml, json, toml), then from PAGECTL_-prefixed environment
// variables, falling back to defaults for anything left unset. An empty
// configPath skips the file source entirely.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("pagectl")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BufferCache.Capacity < 1 {
		return fmt.Errorf("config: buffer_cache.capacity must be at least 1")
	}
	if c.WAL.BlockSize < 256 {
		return fmt.Errorf("config: wal.block_size must be at least 256")
	}
	if c.WAL.LogSize < 1 {
		return fmt.Errorf("config: wal.log_size must be at least 1")
	}
	if c.Bloom.SignWords < 1 {
		return fmt.Errorf("config: bloom.sign_words must be at least 1")
	}
	if c.Bloom.BitsPerColumn < 1 {
		return fmt.Errorf("config: bloom.bits_per_column must be at least 1")
	}
	return nil
}
