package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Storage struct {
		// Quizzes is memory or postgres; Sessions is memory, redis or postgres.
		Quizzes  string `yaml:"quizzes"`
		Sessions string `yaml:"sessions"`
		Seed     bool   `yaml:"seed"`
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
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Play struct {
		RevealDwell    string `yaml:"reveal_dwell"`
		StorageTimeout string `yaml:"storage_timeout"`
	} `yaml:"play"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults picks drivers from what is configured when none is named.
func (c *Config) applyDefaults() {
	if c.Storage.Quizzes == "" {
		c.Storage.Quizzes = DriverMemory
		if c.Postgres.URL != "" {
			c.Storage.Quizzes = DriverPostgres
		}
	}
	if c.Storage.Sessions == "" {
		c.Storage.Sessions = c.Storage.Quizzes
		if c.Storage.Sessions == DriverMemory && c.Redis.Addr != "" {
			c.Storage.Sessions = DriverRedis
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
