package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, read from an optional YAML file with
// environment variables taking precedence.
type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  int    `yaml:"read_timeout_sec"`
		WriteTimeout int    `yaml:"write_timeout_sec"`
		IdleTimeout  int    `yaml:"idle_timeout_sec"`
	} `yaml:"server"`

	Store struct {
		// Backend selects the match store: memory, nats or postgres.
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	NATS struct {
		URL    string `yaml:"url"`
		Bucket string `yaml:"bucket"`
	} `yaml:"nats"`

	Engine struct {
		TickIntervalMs  int `yaml:"tick_interval_ms"`
		NoticeWindowSec int `yaml:"notice_window_sec"`
	} `yaml:"engine"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8081"
	cfg.Server.ReadTimeout = 10
	cfg.Server.WriteTimeout = 10
	cfg.Server.IdleTimeout = 120
	cfg.Store.Backend = "memory"
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.NATS.Bucket = "MATCHES"
	cfg.Engine.TickIntervalMs = 250
	cfg.Engine.NoticeWindowSec = 3
	cfg.CORS.AllowedOrigins = []string{"*"}
	return &cfg
}

// loadConfig builds the effective configuration: defaults, then the YAML
// file named by CONFIG_PATH (if any), then environment overrides.
func loadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Bucket = getEnv("NATS_BUCKET", cfg.NATS.Bucket)
	cfg.Engine.TickIntervalMs = getEnvAsInt("TICK_INTERVAL_MS", cfg.Engine.TickIntervalMs)

	return cfg, nil
}

// TickInterval returns the engine tick cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMs) * time.Millisecond
}

// NoticeWindow returns the ephemeral event display window.
func (c *Config) NoticeWindow() time.Duration {
	return time.Duration(c.Engine.NoticeWindowSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
