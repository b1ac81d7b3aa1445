package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/chronicle/go/internal/timer/store"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Broadcast modes
const (
	BroadcastModeLocal = "local"
	BroadcastModeNATS  = "nats"
)

// Config is the server configuration. Values come from an optional YAML file and are
// overridden by the environment.
type Config struct {
	Port       string `yaml:"port"`
	LogLevel   string `yaml:"log_level"`
	CORSOrigin string `yaml:"cors_origin"`

	Redis struct {
		Host     string        `yaml:"host"`
		Port     int           `yaml:"port"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TimerTTL time.Duration `yaml:"timer_ttl"`
	} `yaml:"redis"`

	Broadcast struct {
		Mode          string `yaml:"mode"`
		NATSURL       string `yaml:"nats_url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"broadcast"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Port:       "8080",
		LogLevel:   "info",
		CORSOrigin: "*",
	}
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = 6379
	cfg.Redis.TimerTTL = store.DefaultTTL
	cfg.Broadcast.Mode = BroadcastModeLocal
	cfg.Broadcast.NATSURL = "nats://localhost:4222"
	cfg.Broadcast.SubjectPrefix = "timer.events"
	return cfg
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

// getEnvAsDuration accepts Go durations ("12h") or a plain number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// loadConfig reads the YAML file at path, if present, then applies env overrides
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if err := readConfigFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", cfg.CORSOrigin)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnvAsInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TimerTTL = getEnvAsDuration("TIMER_TTL", cfg.Redis.TimerTTL)

	cfg.Broadcast.Mode = strings.ToLower(getEnv("BROADCAST_MODE", cfg.Broadcast.Mode))
	cfg.Broadcast.NATSURL = getEnv("NATS_URL", cfg.Broadcast.NATSURL)
}

func (c *Config) validate() error {
	switch c.Broadcast.Mode {
	case BroadcastModeLocal, BroadcastModeNATS:
	default:
		return fmt.Errorf("unknown broadcast mode %q", c.Broadcast.Mode)
	}
	if c.Redis.TimerTTL <= 0 {
		return fmt.Errorf("timer ttl must be positive, got %s", c.Redis.TimerTTL)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// StoreConfig returns the Redis settings for the timer store
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Host:     c.Redis.Host,
		Port:     c.Redis.Port,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TTL:      c.Redis.TimerTTL,
	}
}

// AllowedOrigins splits the comma separated CORS origin list
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSOrigin, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
