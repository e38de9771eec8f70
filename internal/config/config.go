package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Trivia struct {
		URL        string `yaml:"url"`
		Amount     int    `yaml:"amount"`
		Timeout    string `yaml:"timeout"`
		Attempts   int    `yaml:"attempts"`
		RetryDelay string `yaml:"retry_delay"`
	} `yaml:"trivia"`
	Quiz struct {
		TimeLimit string `yaml:"time_limit"`
	} `yaml:"quiz"`
	Storage struct {
		Backend string `yaml:"backend"` // file, memory, redis or postgres
		Path    string `yaml:"path"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Trivia.URL = "https://opentdb.com/api.php"
	cfg.Trivia.Amount = 10
	cfg.Trivia.Timeout = "10s"
	cfg.Trivia.Attempts = 3
	cfg.Trivia.RetryDelay = "2s"
	cfg.Quiz.TimeLimit = "300s"
	cfg.Storage.Backend = "file"
	cfg.Storage.Path = defaultStoragePath()
	cfg.Redis.TTL = "24h"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Seconds is Duration truncated to whole seconds.
func Seconds(raw string, fallback time.Duration) int {
	return int(Duration(raw, fallback) / time.Second)
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".trivia-quiz", "storage.json")
	}
	return filepath.Join(dir, "trivia-quiz", "storage.json")
}
