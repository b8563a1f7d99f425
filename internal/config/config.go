// Package config loads relay configuration from defaults, an optional
// config file (.env or yaml), and environment variables, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/redis"
	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func getConfigLocations() []string {
	return []string{
		// Relative paths
		".env",
		".relay.yaml",
		"config/relay.yaml",
		"config/relay/config.yaml",
		"config/relay/.env",

		// Container-friendly absolute paths
		"/config/relay.yaml",
		"/config/relay/config.yaml",
		"/config/relay/.env",
	}
}

type Flags struct {
	// Config is an explicit config file path from the CLI.
	Config string
}

type Config struct {
	// API
	Port         int    `yaml:"port" env:"PORT"`
	APIRateLimit int    `yaml:"api_rate_limit" env:"API_RATE_LIMIT"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`

	// Infrastructure
	PostgresURL string       `yaml:"postgres_url" env:"POSTGRES_URL"`
	Redis       *RedisConfig `yaml:"redis"`

	// Delivery
	DeliveryPollIntervalSeconds int   `yaml:"delivery_poll_interval_seconds" env:"DELIVERY_POLL_INTERVAL_SECONDS"`
	DeliveryTimeoutSeconds      int   `yaml:"delivery_timeout_seconds" env:"DELIVERY_TIMEOUT_SECONDS"`
	MaxRetries                  int   `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryScheduleSeconds        []int `yaml:"retry_schedule_seconds" env:"RETRY_SCHEDULE_SECONDS" envSeparator:","`
	FastPathEnabled             bool  `yaml:"fast_path_enabled" env:"FAST_PATH_ENABLED"`
}

var (
	ErrInvalidPort          = errors.New("port must be between 1 and 65535")
	ErrInvalidRetrySchedule = errors.New("retry schedule must not be empty")
)

func (c *Config) initDefaults() {
	c.Port = 8080
	c.APIRateLimit = 100
	c.LogLevel = "info"
	c.Redis = &RedisConfig{
		Host: "127.0.0.1",
		Port: 6379,
	}
	c.DeliveryPollIntervalSeconds = 5
	c.DeliveryTimeoutSeconds = 30
	c.MaxRetries = 5
	c.RetryScheduleSeconds = []int{60, 300, 900, 3600, 21600}
	c.FastPathEnabled = true
}

func (c *Config) parseConfigFile(flagPath string, osInterface OSInterface) error {
	configPath := flagPath
	if envPath := osInterface.Getenv("CONFIG"); envPath != "" {
		if configPath != "" && configPath != envPath {
			return fmt.Errorf("conflicting config paths: flag=%s env=%s", configPath, envPath)
		}
		configPath = envPath
	}

	if configPath == "" {
		for _, loc := range getConfigLocations() {
			if _, err := osInterface.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if configPath == "" {
		return nil
	}

	data, err := osInterface.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if strings.HasSuffix(strings.ToLower(configPath), ".env") {
		envMap, err := godotenv.UnmarshalBytes(data)
		if err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		if err := env.ParseWithOptions(c, env.Options{
			Environment: envMap,
		}); err != nil {
			return fmt.Errorf("error parsing .env file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error parsing yaml config: %w", err)
		}
	}
	return nil
}

func (c *Config) parseEnvVariables() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("error parsing environment variables: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if len(c.RetryScheduleSeconds) == 0 {
		return ErrInvalidRetrySchedule
	}
	for _, s := range c.RetryScheduleSeconds {
		if s < 0 {
			return fmt.Errorf("retry schedule entry must not be negative: %d", s)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative: %d", c.MaxRetries)
	}
	return nil
}

func Parse(flags Flags) (*Config, error) {
	return ParseWithOS(flags, defaultOS)
}

func ParseWithOS(flags Flags, osInterface OSInterface) (*Config, error) {
	var config Config

	config.initDefaults()

	if err := config.parseConfigFile(flags.Config, osInterface); err != nil {
		return nil, err
	}

	// Environment variables take highest priority.
	if err := config.parseEnvVariables(); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// RetrySchedule converts the configured ladder to durations.
func (c *Config) RetrySchedule() []time.Duration {
	schedule := make([]time.Duration, 0, len(c.RetryScheduleSeconds))
	for _, s := range c.RetryScheduleSeconds {
		schedule = append(schedule, time.Duration(s)*time.Second)
	}
	return schedule
}

func (c *Config) DeliveryPollInterval() time.Duration {
	return time.Duration(c.DeliveryPollIntervalSeconds) * time.Second
}

func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

type RedisConfig struct {
	Host       string `yaml:"host" env:"REDIS_HOST"`
	Port       int    `yaml:"port" env:"REDIS_PORT"`
	Password   string `yaml:"password" env:"REDIS_PASSWORD"`
	Database   int    `yaml:"database" env:"REDIS_DATABASE"`
	TLSEnabled bool   `yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`
}

func (c *RedisConfig) ToConfig() *redis.RedisConfig {
	return &redis.RedisConfig{
		Host:       c.Host,
		Port:       c.Port,
		Password:   c.Password,
		Database:   c.Database,
		TLSEnabled: c.TLSEnabled,
	}
}
