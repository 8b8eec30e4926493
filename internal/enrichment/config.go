package enrichment

import (
	"errors"
	"fmt"

	"github.com/filepipe-io/filepipe/internal/config"
)

// RoutingStrategy selects how the dataset routing key is derived from an
// object key.
type RoutingStrategy string

const (
	// RoutingFixed maps every file to the configured default dataset.
	RoutingFixed RoutingStrategy = "fixed"

	// RoutingFolder uses the first path segment of the object key, falling
	// back to the default dataset for keys without a folder.
	RoutingFolder RoutingStrategy = "folder"
)

// Config validation errors.
var (
	ErrInvalidRoutingStrategy = errors.New("routing strategy must be fixed or folder")
	ErrMissingDefaultDataset  = errors.New("default dataset is required")
)

// Config holds enrichment settings.
type Config struct {
	RoutingStrategy RoutingStrategy
	DefaultDataset  string
}

// DefaultConfig returns fixed routing to the "default" dataset.
func DefaultConfig() *Config {
	return &Config{
		RoutingStrategy: RoutingFixed,
		DefaultDataset:  "default",
	}
}

// LoadConfig reads enrichment settings from the environment.
func LoadConfig() *Config {
	return &Config{
		RoutingStrategy: RoutingStrategy(config.GetEnvStr("ROUTING_STRATEGY", string(RoutingFixed))),
		DefaultDataset:  config.GetEnvStr("DEFAULT_DATASET", "default"),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.RoutingStrategy {
	case RoutingFixed, RoutingFolder:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRoutingStrategy, c.RoutingStrategy)
	}

	if c.DefaultDataset == "" {
		return ErrMissingDefaultDataset
	}

	return nil
}
