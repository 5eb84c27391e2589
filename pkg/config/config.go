// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config represents the application configuration
type Config struct {
	// Engine settings
	Engine EngineConfig

	// Corpus backend selection: "postgres", "sqlite", or "memory"
	Backend  string
	Postgres *PostgresConfig
	SQLite   *SQLiteConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// EngineConfig holds the recognized engine options: batch limits, the
// overlap threshold for log-batch reconciliation, and the content hash
// algorithm.
type EngineConfig struct {
	MaxColumns                int
	MaxRows                   int
	DuplicateOverlapThreshold int
	HashAlgorithm             string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			MaxColumns:                getEnvAsInt("MAX_COLUMNS", 100),
			MaxRows:                   getEnvAsInt("MAX_ROWS", 5000),
			DuplicateOverlapThreshold: getEnvAsInt("DUPLICATE_OVERLAP_THRESHOLD", 2),
			HashAlgorithm:             getEnv("HASH_ALGORITHM", "sha256"),
		},
		Backend:   getEnv("CORPUS_BACKEND", "sqlite"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	switch cfg.Backend {
	case "postgres":
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
		}
		cfg.Postgres = pgConfig
	case "sqlite":
		cfg.SQLite = LoadSQLiteConfig()
	case "memory":
		// No backend configuration needed.
	default:
		return nil, fmt.Errorf("unknown corpus backend %q", cfg.Backend)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Engine.MaxColumns <= 0 {
		return errors.New("max columns must be positive")
	}

	if c.Engine.MaxRows <= 0 {
		return errors.New("max rows must be positive")
	}

	if c.Engine.DuplicateOverlapThreshold < 1 {
		return errors.New("duplicate overlap threshold must be at least 1")
	}

	switch c.Engine.HashAlgorithm {
	case "sha256", "sha1":
	default:
		return fmt.Errorf("unsupported hash algorithm %q", c.Engine.HashAlgorithm)
	}

	if c.Backend == "postgres" && c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	if c.Backend == "sqlite" && c.SQLite == nil {
		return errors.New("sqlite configuration is required")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
