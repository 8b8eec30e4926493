// Package state tracks the ingestion lifecycle of each file as an
// append-only history of timestamped records. The latest record for a file
// is its current status; older records are retained for audit until the TTL
// sweep removes them.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the ingestion lifecycle status of a file.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusValidating Status = "VALIDATING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether the status ends the file's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether the status is one of the known lifecycle values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValidating, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}

	return false
}

// DefaultTTL is how long state records are retained before the cleanup
// sweep removes them.
const DefaultTTL = 30 * 24 * time.Hour

// Sentinel errors for state operations.
var (
	// ErrRecordNotFound indicates no state record exists for the key.
	ErrRecordNotFound = errors.New("state record not found")

	// ErrInvalidStatus indicates an unknown lifecycle status value.
	ErrInvalidStatus = errors.New("invalid status")
)

// Record is one entry in a file's state history.
type Record struct {
	// PK is FILE#<bucket>#<key>, SK is STATE#<fixed-width UTC timestamp>.
	PK string
	SK string

	Status          Status
	FileSize        int64
	RowCount        int64
	ChunksProcessed int
	TotalChunks     int
	ErrorMessage    string
	RunID           string
	TaskSize        string

	StartedAt time.Time
	// CompletedAt is set iff Status is terminal.
	CompletedAt *time.Time
	// ExpiresAt drives the TTL cleanup sweep.
	ExpiresAt time.Time
}

// Patch carries optional field updates for UpdateStatus. Nil fields are left
// untouched.
type Patch struct {
	FileSize        *int64
	RowCount        *int64
	ChunksProcessed *int
	TotalChunks     *int
	ErrorMessage    *string
	TaskSize        *string
}

// FileKey builds the partition key for a file.
func FileKey(bucket, key string) string {
	return fmt.Sprintf("FILE#%s#%s", bucket, key)
}

// stateKeyLayout is fixed-width so sort keys order lexicographically.
// RFC3339Nano would trim trailing fractional zeros and break that:
// "...00.1Z" sorts after "...00.12Z".
const stateKeyLayout = "2006-01-02T15:04:05.000000000Z"

// StateKey builds the sort key for a record created at ts.
func StateKey(ts time.Time) string {
	return "STATE#" + ts.UTC().Format(stateKeyLayout)
}

// Store persists file state history.
type Store interface {
	// Create appends a new record. PK, SK, Status and StartedAt must be
	// set; ExpiresAt defaults to StartedAt + DefaultTTL when zero.
	Create(ctx context.Context, rec *Record) error

	// UpdateStatus updates the status of an existing record, applying the
	// optional patch. A terminal status stamps CompletedAt; repeating a
	// terminal update is idempotent and keeps the original CompletedAt.
	UpdateStatus(ctx context.Context, pk, sk string, status Status, patch *Patch) error

	// GetLatest returns the newest record for a file, or ErrRecordNotFound.
	GetLatest(ctx context.Context, pk string) (*Record, error)

	// GetHistory returns all records for a file, newest first.
	GetHistory(ctx context.Context, pk string) ([]*Record, error)
}
