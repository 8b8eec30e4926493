package processor

import (
	"errors"

	"github.com/filepipe-io/filepipe/internal/config"
)

// Defaults for the processing cadence.
const (
	// defaultBatchSize is how many records are handed to the batch hook
	// at a time.
	defaultBatchSize = 1000

	// defaultCheckpointRows is how often (in rows) progress is persisted
	// to the state store.
	defaultCheckpointRows = 10000

	// defaultChunkSize is the ranged-fetch size for binary files.
	defaultChunkSize = 8 * 1024 * 1024

	// defaultMaxJSONBytes caps how large a JSON document may be. JSON
	// files are decoded from a full in-memory buffer, so this bound is
	// the memory ceiling for the JSON path.
	defaultMaxJSONBytes = 256 * 1024 * 1024
)

// Config validation errors.
var (
	ErrInvalidBatchSize      = errors.New("batch size must be greater than zero")
	ErrInvalidCheckpointRows = errors.New("checkpoint rows must be greater than zero")
	ErrInvalidChunkSize      = errors.New("chunk size must be greater than zero")
)

// Config holds processing cadence settings.
type Config struct {
	BatchSize      int
	CheckpointRows int64
	ChunkSize      int64
	MaxJSONBytes   int64
}

// DefaultConfig returns the standard cadence.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      defaultBatchSize,
		CheckpointRows: defaultCheckpointRows,
		ChunkSize:      defaultChunkSize,
		MaxJSONBytes:   defaultMaxJSONBytes,
	}
}

// LoadConfig reads processing settings from the environment.
func LoadConfig() *Config {
	return &Config{
		BatchSize:      config.GetEnvInt("PROCESSOR_BATCH_SIZE", defaultBatchSize),
		CheckpointRows: config.GetEnvInt64("PROCESSOR_CHECKPOINT_ROWS", defaultCheckpointRows),
		ChunkSize:      config.GetEnvInt64("PROCESSOR_CHUNK_SIZE", defaultChunkSize),
		MaxJSONBytes:   config.GetEnvInt64("PROCESSOR_MAX_JSON_BYTES", defaultMaxJSONBytes),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.CheckpointRows <= 0 {
		return ErrInvalidCheckpointRows
	}

	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}

	return nil
}
