// Package config loads server configuration from defaults, an optional YAML
// file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the server configuration.
type Config struct {
	Port            int           `yaml:"port"`
	DBDriver        string        `yaml:"db_driver"`
	DatabaseURL     string        `yaml:"database_url"`
	RulesFile       string        `yaml:"rules_file"`
	DefaultYear     int           `yaml:"default_year"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// SessionTTL evicts in-memory simulations idle for longer; 0 disables.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:            8080,
		DBDriver:        DriverSQLite,
		DatabaseURL:     "reduction.db",
		DefaultYear:     2025,
		CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		SessionTTL:      2 * time.Hour,
	}
}

// Load reads Default, then the YAML file named by REDUCTION_CONFIG, then the
// environment.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("REDUCTION_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Port = getenvIntDefault("PORT", cfg.Port)
	cfg.DBDriver = getenvDefault("DB_DRIVER", cfg.DBDriver)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RulesFile = getenvDefault("RULES_FILE", cfg.RulesFile)
	cfg.DefaultYear = getenvIntDefault("DEFAULT_YEAR", cfg.DefaultYear)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownTimeout = getenvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.SessionTTL = getenvDuration("SESSION_TTL", cfg.SessionTTL)
	if origins := splitCSV(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}

	return cfg, cfg.Validate()
}

// Validate checks the values a server cannot start without.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: database_url required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown db_driver %q", c.DBDriver)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("config: session_ttl %s negative", c.SessionTTL)
	}
	if c.DefaultYear <= 0 {
		return fmt.Errorf("config: default_year %d invalid", c.DefaultYear)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level; unknown values are info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
