// Package registry provides dataset configuration lookup for the ingestion
// pipeline. A dataset config describes, per routing key, which compute tier a
// file should run on, which file extensions are accepted, and which columns
// the file must carry.
package registry

import (
	"context"
	"strings"
)

// Compute targets a dataset may request.
const (
	ComputeTargetLambda  = "LAMBDA"
	ComputeTargetFargate = "FARGATE"
	ComputeTargetAuto    = "AUTO"
)

// ColumnSpec declares one required column and its value type.
// Type is one of "date", "number", or "string" ("" means unconstrained).
type ColumnSpec struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// DatasetConfig is one registry entry, keyed externally by routing key.
type DatasetConfig struct {
	DatasetID         string       `json:"dataset_id"         yaml:"dataset_id"`
	SchemaVersion     string       `json:"schema_version"     yaml:"schema_version"`
	ComputeTarget     string       `json:"compute_target"     yaml:"compute_target"`
	AllowedExtensions []string     `json:"allowed_extensions" yaml:"allowed_extensions"`
	RequiredColumns   []ColumnSpec `json:"required_columns"   yaml:"required_columns"`
}

// AllowsExtension reports whether the dataset accepts the given file
// extension (leading dot optional, case-insensitive). An empty allow-list
// accepts everything.
func (c *DatasetConfig) AllowsExtension(ext string) bool {
	if len(c.AllowedExtensions) == 0 {
		return true
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	for _, allowed := range c.AllowedExtensions {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}

	return false
}

// Store is the lookup interface implemented by the persistent registry, the
// file-backed registry, and the caching client.
//
// GetConfig returns (nil, nil) when no config is registered for the routing
// key. Callers must treat a nil config as "file not recognized", not as a
// system fault.
type Store interface {
	GetConfig(ctx context.Context, routingKey string) (*DatasetConfig, error)
}
