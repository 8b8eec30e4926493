package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/filepipe-io/filepipe/internal/config"
)

// DefaultSeedPath is the default location for the registry seed file.
const DefaultSeedPath = ".filepipe.yaml"

// SeedPathEnvVar is the environment variable name for a custom seed file path.
const SeedPathEnvVar = "FILEPIPE_REGISTRY_SEED"

// seedFile is the YAML shape of the registry seed file:
//
//	datasets:
//	  board_licenses:
//	    dataset_id: board_licenses
//	    schema_version: "2"
//	    compute_target: AUTO
//	    allowed_extensions: [csv, json]
//	    required_columns:
//	      - {name: date, type: date}
//	      - {name: license_number, type: string}
type seedFile struct {
	Datasets map[string]*DatasetConfig `yaml:"datasets"`
}

// FileStore implements Store from a YAML seed file. Used for local
// development and tests, and as a deployment-time seed source for the
// persistent registry.
type FileStore struct {
	datasets map[string]*DatasetConfig
}

var _ Store = (*FileStore)(nil)

// LoadFileStore loads a registry from a YAML file at the given path.
//
// Behavior:
//   - Missing file returns an empty registry (not an error) - seeds are optional
//   - Invalid YAML returns an empty registry + logs a warning (graceful degradation)
//   - Otherwise returns the populated registry
func LoadFileStore(path string) (*FileStore, error) {
	store := &FileStore{datasets: make(map[string]*DatasetConfig)}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Registry seed file not found, starting with empty registry",
				slog.String("path", path))

			return store, nil
		}

		slog.Warn("Failed to read registry seed file, starting with empty registry",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return store, nil
	}

	if len(data) == 0 {
		return store, nil
	}

	var seed seedFile

	if err := yaml.Unmarshal(data, &seed); err != nil {
		slog.Warn("Failed to parse registry seed file, starting with empty registry",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return store, nil
	}

	for routingKey, cfg := range seed.Datasets {
		if cfg == nil {
			continue
		}

		if cfg.ComputeTarget == "" {
			cfg.ComputeTarget = ComputeTargetAuto
		}

		store.datasets[routingKey] = cfg
	}

	return store, nil
}

// LoadFileStoreFromEnv loads the seed from the path in FILEPIPE_REGISTRY_SEED,
// falling back to ".filepipe.yaml" in the current directory.
func LoadFileStoreFromEnv() (*FileStore, error) {
	path := config.GetEnvStr(SeedPathEnvVar, DefaultSeedPath)

	return LoadFileStore(path)
}

// GetConfig returns the seeded config for a routing key, or (nil, nil).
func (s *FileStore) GetConfig(_ context.Context, routingKey string) (*DatasetConfig, error) {
	cfg, ok := s.datasets[routingKey]
	if !ok {
		return nil, nil
	}

	return cfg, nil
}

// Datasets returns the full seeded map, keyed by routing key. Used when
// seeding the persistent registry at deploy time.
func (s *FileStore) Datasets() map[string]*DatasetConfig {
	return s.datasets
}
