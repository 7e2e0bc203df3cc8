package config

// Package config provides a reusable loader for movesqlize configuration
// files and environment variables. It is versioned so that applications
// can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"movesqlize/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a movesqlize replay/explorer
// deployment. It mirrors the structure of the YAML files under
// cmd/config, per SPEC_FULL.md §2.3.
type Config struct {
	Database struct {
		Path       string `mapstructure:"path" json:"path"`
		WALPath    string `mapstructure:"wal_path" json:"wal_path"`
		BusyTimeMS int    `mapstructure:"busy_time_ms" json:"busy_time_ms"`
	} `mapstructure:"database" json:"database"`

	Archive struct {
		Enabled      bool   `mapstructure:"enabled" json:"enabled"`
		SnapshotPath string `mapstructure:"snapshot_path" json:"snapshot_path"`
		ArchivePath  string `mapstructure:"archive_path" json:"archive_path"`
	} `mapstructure:"archive" json:"archive"`

	Cache struct {
		ModuleCacheSize int `mapstructure:"module_cache_size" json:"module_cache_size"`
		TableCacheSize  int `mapstructure:"table_cache_size" json:"table_cache_size"`
		FetcherLRUSize  int `mapstructure:"fetcher_lru_size" json:"fetcher_lru_size"`
	} `mapstructure:"cache" json:"cache"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	Explorer struct {
		BindAddress string `mapstructure:"bind_address" json:"bind_address"`
	} `mapstructure:"explorer" json:"explorer"`

	Replay struct {
		BatchSize int `mapstructure:"batch_size" json:"batch_size"`
	} `mapstructure:"replay" json:"replay"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the MOVESQLIZE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("MOVESQLIZE_ENV", ""))
}
