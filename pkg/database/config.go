package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds Postgres connection settings.
type Config struct {
	// URL is the full connection string. When set it wins over the discrete
	// fields below.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// LoadConfigFromEnv loads database configuration from environment variables.
// DATABASE_URL is how production deployments configure the core; the
// discrete DB_* variables exist for local development against a
// hand-started Postgres.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:             os.Getenv("DATABASE_URL"),
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
		}
		cfg.MaxConns = int32(n)
	}
	if cfg.URL != "" {
		return cfg, nil
	}

	host := getEnvOrDefault("DB_HOST", "")
	if host == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	cfg.Host = host
	cfg.Port = port
	cfg.User = getEnvOrDefault("DB_USER", "agentic")
	cfg.Password = os.Getenv("DB_PASSWORD")
	cfg.Database = getEnvOrDefault("DB_NAME", "agentic")
	cfg.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	return cfg, nil
}

// DSN returns the connection string for this configuration.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
