package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/filepipe-io/filepipe/internal/storage"
)

const (
	// datasetKeyPrefix is the partition key prefix for registry records.
	datasetKeyPrefix = "DATASET#"
	// configSortKey is the fixed sort key for the single config record per dataset.
	configSortKey = "CONFIG"
)

// PersistentStore implements Store with a PostgreSQL backend.
// Record shape follows the wire contract: pk = "DATASET#"+routingKey, sk = "CONFIG".
type PersistentStore struct {
	conn *storage.Connection
}

// Compile-time interface assertion.
var _ Store = (*PersistentStore)(nil)

// NewPersistentStore creates a PostgreSQL-backed dataset registry.
func NewPersistentStore(conn *storage.Connection) (*PersistentStore, error) {
	if conn == nil {
		return nil, storage.ErrNoDatabaseConnection
	}

	return &PersistentStore{conn: conn}, nil
}

// GetConfig looks up the config record for a routing key.
// A missing record returns (nil, nil): unregistered datasets are a business
// outcome, not a fault.
func (s *PersistentStore) GetConfig(ctx context.Context, routingKey string) (*DatasetConfig, error) {
	if routingKey == "" {
		return nil, nil
	}

	query := `
		SELECT dataset_id, schema_version, compute_target, allowed_extensions, required_columns
		FROM dataset_configs
		WHERE pk = $1 AND sk = $2
	`

	var (
		cfg            DatasetConfig
		extensionsJSON []byte
		columnsJSON    []byte
	)

	row := s.conn.QueryRowContext(ctx, query, datasetKeyPrefix+routingKey, configSortKey)

	err := row.Scan(&cfg.DatasetID, &cfg.SchemaVersion, &cfg.ComputeTarget, &extensionsJSON, &columnsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query dataset config for %q: %w", routingKey, err)
	}

	if err := json.Unmarshal(extensionsJSON, &cfg.AllowedExtensions); err != nil {
		return nil, fmt.Errorf("failed to decode allowed_extensions for %q: %w", routingKey, err)
	}

	if err := json.Unmarshal(columnsJSON, &cfg.RequiredColumns); err != nil {
		return nil, fmt.Errorf("failed to decode required_columns for %q: %w", routingKey, err)
	}

	return &cfg, nil
}

// PutConfig inserts or replaces the config record for a routing key.
// Used by deployment seeding and tests; the pipeline itself only reads.
func (s *PersistentStore) PutConfig(ctx context.Context, routingKey string, cfg *DatasetConfig) error {
	if routingKey == "" {
		return errors.New("routing key cannot be empty")
	}

	if cfg == nil {
		return errors.New("dataset config cannot be nil")
	}

	extensionsJSON, err := json.Marshal(cfg.AllowedExtensions)
	if err != nil {
		return fmt.Errorf("failed to encode allowed_extensions: %w", err)
	}

	columnsJSON, err := json.Marshal(cfg.RequiredColumns)
	if err != nil {
		return fmt.Errorf("failed to encode required_columns: %w", err)
	}

	query := `
		INSERT INTO dataset_configs (pk, sk, dataset_id, schema_version, compute_target, allowed_extensions, required_columns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pk, sk) DO UPDATE SET
			dataset_id = EXCLUDED.dataset_id,
			schema_version = EXCLUDED.schema_version,
			compute_target = EXCLUDED.compute_target,
			allowed_extensions = EXCLUDED.allowed_extensions,
			required_columns = EXCLUDED.required_columns,
			updated_at = now()
	`

	_, err = s.conn.ExecContext(
		ctx,
		query,
		datasetKeyPrefix+routingKey,
		configSortKey,
		cfg.DatasetID,
		cfg.SchemaVersion,
		cfg.ComputeTarget,
		extensionsJSON,
		columnsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dataset config for %q: %w", routingKey, err)
	}

	return nil
}
