// Package storage provides the PostgreSQL connection layer shared by the
// dataset registry and the ingestion state store.
package storage

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/filepipe-io/filepipe/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultCleanupInterval = time.Hour
)

// ErrDatabaseURLEmpty is returned when no database URL is configured.
var ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

// Config holds PostgreSQL connection pool settings. The URL itself is kept
// unexported so it never ends up in a log line by accident; use
// MaskDatabaseURL for logging.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// CleanupInterval is how often expired state records are swept.
	CleanupInterval time.Duration
}

// LoadConfig reads connection settings from the environment.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		CleanupInterval: config.GetEnvDuration("STATE_CLEANUP_INTERVAL", defaultCleanupInterval),
	}
}

// Validate checks that a database URL is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns the database URL with any password replaced by
// "***", safe for logging. URLs that do not parse are returned with
// everything after the scheme redacted rather than risk leaking credentials.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	u, err := url.Parse(c.databaseURL)
	if err != nil {
		if scheme, _, ok := strings.Cut(c.databaseURL, "://"); ok {
			return scheme + "://***"
		}

		return "***"
	}

	if u.User == nil {
		return c.databaseURL
	}

	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")

		return u.String()
	}

	return c.databaseURL
}
