// Package config loads explorer settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfigPath names the variable holding the config file path.
const EnvConfigPath = "EXPLORER_CONFIG"

type Config struct {
	LogLevel string        `yaml:"log_level" env:"EXPLORER_LOG_LEVEL" env-default:"info"`
	Report   string        `yaml:"report" env:"EXPLORER_REPORT" env-default:"pytest-report.json"`
	Search   SearchConfig  `yaml:"search" env-prefix:"EXPLORER_SEARCH_"`
	Collect  CollectConfig `yaml:"collect" env-prefix:"EXPLORER_COLLECT_"`
	Watch    WatchConfig   `yaml:"watch" env-prefix:"EXPLORER_WATCH_"`
}

type SearchConfig struct {
	Limit       int     `yaml:"limit" env:"LIMIT" env-default:"1000"`
	PageSize    int     `yaml:"page_size" env:"PAGE_SIZE" env-default:"20"`
	NodeIDBoost float64 `yaml:"node_id_boost" env:"NODE_ID_BOOST" env-default:"2"`
	Fuzzy       float64 `yaml:"fuzzy" env:"FUZZY" env-default:"0"`
	Prefix      bool    `yaml:"prefix" env:"PREFIX" env-default:"false"`
	Stemming    bool    `yaml:"stemming" env:"STEMMING" env-default:"false"`
}

type CollectConfig struct {
	Workers     int           `yaml:"workers" env:"WORKERS" env-default:"0"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"5m"`
	Patterns    []string      `yaml:"patterns" env:"PATTERNS"`
	Exclude     []string      `yaml:"exclude" env:"EXCLUDE"`
	MaxFileSize int64         `yaml:"max_file_size" env:"MAX_FILE_SIZE" env-default:"10485760"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE" env-default:"200ms"`
}

// Load reads the config file at path, then applies the environment.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from environment: %w", err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// FetchPath returns flagValue, or the EXPLORER_CONFIG variable when it is empty.
func FetchPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvConfigPath)
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
