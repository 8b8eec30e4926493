package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/filepipe-io/filepipe/internal/storage"
)

// ErrInvalidCleanupInterval is returned when an invalid cleanup interval is provided.
var ErrInvalidCleanupInterval = errors.New("cleanup interval must be greater than zero")

const (
	// cleanupQueryTimeout bounds a single cleanup sweep.
	cleanupQueryTimeout = 30 * time.Second
	// shutdownTimeout is how long Close waits for the cleanup goroutine.
	shutdownTimeout = 5 * time.Second
	// cleanupBatchSize caps rows deleted per batch to avoid long-running locks.
	cleanupBatchSize = 10000
	// batchSleepDuration spaces out batch deletes during a large backlog.
	batchSleepDuration = 100 * time.Millisecond
)

// PersistentStore is a PostgreSQL-backed state store with a background TTL
// cleanup goroutine.
type PersistentStore struct {
	conn            *storage.Connection
	logger          *slog.Logger
	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupDone     chan struct{}
}

var _ Store = (*PersistentStore)(nil)

// NewPersistentStore creates a state store and starts its cleanup goroutine.
// The goroutine stops gracefully on Close.
func NewPersistentStore(conn *storage.Connection, cleanupInterval time.Duration, logger *slog.Logger) (*PersistentStore, error) {
	if conn == nil {
		return nil, storage.ErrNoDatabaseConnection
	}

	if cleanupInterval <= 0 {
		return nil, ErrInvalidCleanupInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	store := &PersistentStore{
		conn:            conn,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	go store.runCleanup()

	logger.Info("Started state TTL cleanup goroutine", slog.Duration("interval", cleanupInterval))

	return store, nil
}

// Close stops the cleanup goroutine, waiting up to shutdownTimeout.
func (s *PersistentStore) Close() error {
	close(s.cleanupStop)

	select {
	case <-s.cleanupDone:
		s.logger.Info("Cleanup goroutine stopped gracefully")
	case <-time.After(shutdownTimeout):
		s.logger.Warn("Cleanup goroutine did not stop within timeout")
	}

	return nil
}

func (s *PersistentStore) Create(ctx context.Context, rec *Record) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}

	expiresAt := rec.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = rec.StartedAt.Add(DefaultTTL)
	}

	query := `
		INSERT INTO ingest_states (
			pk, sk, status, file_size, row_count, chunks_processed,
			total_chunks, error_message, run_id, task_size,
			started_at, completed_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.conn.ExecContext(ctx, query,
		rec.PK, rec.SK, string(rec.Status), rec.FileSize,
		nullInt64(rec.RowCount), nullInt(rec.ChunksProcessed), nullInt(rec.TotalChunks),
		nullStr(rec.ErrorMessage), nullStr(rec.RunID), nullStr(rec.TaskSize),
		rec.StartedAt, rec.CompletedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to create state record %s/%s: %w", rec.PK, rec.SK, err)
	}

	return nil
}

func (s *PersistentStore) UpdateStatus(ctx context.Context, pk, sk string, status Status, patch *Patch) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	if patch == nil {
		patch = &Patch{}
	}

	// completed_at is stamped on the first transition to a terminal status
	// and preserved on repeats, so terminal updates are idempotent.
	query := `
		UPDATE ingest_states SET
			status           = $3,
			file_size        = COALESCE($4, file_size),
			row_count        = COALESCE($5, row_count),
			chunks_processed = COALESCE($6, chunks_processed),
			total_chunks     = COALESCE($7, total_chunks),
			error_message    = COALESCE($8, error_message),
			task_size        = COALESCE($9, task_size),
			completed_at     = CASE
				WHEN $3 IN ('COMPLETED', 'FAILED') THEN COALESCE(completed_at, NOW())
				ELSE NULL
			END
		WHERE pk = $1 AND sk = $2
	`

	result, err := s.conn.ExecContext(ctx, query, pk, sk, string(status),
		patch.FileSize, patch.RowCount, patch.ChunksProcessed,
		patch.TotalChunks, patch.ErrorMessage, patch.TaskSize)
	if err != nil {
		return fmt.Errorf("failed to update state record %s/%s: %w", pk, sk, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, pk, sk)
	}

	return nil
}

func (s *PersistentStore) GetLatest(ctx context.Context, pk string) (*Record, error) {
	query := selectColumns + ` WHERE pk = $1 ORDER BY sk DESC LIMIT 1`

	rec, err := scanRecord(s.conn.QueryRowContext(ctx, query, pk))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, pk)
		}

		return nil, fmt.Errorf("failed to get latest state for %s: %w", pk, err)
	}

	return rec, nil
}

func (s *PersistentStore) GetHistory(ctx context.Context, pk string) ([]*Record, error) {
	query := selectColumns + ` WHERE pk = $1 ORDER BY sk DESC`

	rows, err := s.conn.QueryContext(ctx, query, pk)
	if err != nil {
		return nil, fmt.Errorf("failed to get state history for %s: %w", pk, err)
	}
	defer rows.Close()

	var records []*Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan state record for %s: %w", pk, err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate state history for %s: %w", pk, err)
	}

	return records, nil
}

const selectColumns = `
	SELECT pk, sk, status, file_size, row_count, chunks_processed,
	       total_chunks, error_message, run_id, task_size,
	       started_at, completed_at, expires_at
	FROM ingest_states`

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec             Record
		status          string
		rowCount        sql.NullInt64
		chunksProcessed sql.NullInt32
		totalChunks     sql.NullInt32
		errorMessage    sql.NullString
		runID           sql.NullString
		taskSize        sql.NullString
		completedAt     sql.NullTime
	)

	err := row.Scan(&rec.PK, &rec.SK, &status, &rec.FileSize,
		&rowCount, &chunksProcessed, &totalChunks,
		&errorMessage, &runID, &taskSize,
		&rec.StartedAt, &completedAt, &rec.ExpiresAt)
	if err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	rec.RowCount = rowCount.Int64
	rec.ChunksProcessed = int(chunksProcessed.Int32)
	rec.TotalChunks = int(totalChunks.Int32)
	rec.ErrorMessage = errorMessage.String
	rec.RunID = runID.String
	rec.TaskSize = taskSize.String

	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}

	return &rec, nil
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}

	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}

	return v
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}

	return v
}

// runCleanup periodically deletes expired state records until Close is
// called. Cleanup failures are logged and never crash the goroutine.
func (s *PersistentStore) runCleanup() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		select {
		case <-s.cleanupStop:
			cancel()
			s.logger.Info("Stopping state TTL cleanup goroutine")

			return
		case <-ticker.C:
			cleanupCtx, cleanupCancel := context.WithTimeout(ctx, cleanupQueryTimeout)
			s.cleanupExpiredRecords(cleanupCtx)
			cleanupCancel()
		}
	}
}

// cleanupExpiredRecords deletes expired rows in batches, oldest first, to
// avoid long-running table locks.
func (s *PersistentStore) cleanupExpiredRecords(ctx context.Context) {
	startTime := time.Now()
	totalDeleted := int64(0)
	batchCount := 0

	for {
		if ctx.Err() != nil {
			s.logger.Info("State cleanup cancelled",
				slog.Int64("rows_deleted", totalDeleted),
				slog.Int("batches_completed", batchCount),
				slog.Duration("duration", time.Since(startTime)))

			return
		}

		query := `
			DELETE FROM ingest_states
			WHERE (pk, sk) IN (
				SELECT pk, sk
				FROM ingest_states
				WHERE expires_at < NOW()
				ORDER BY expires_at ASC
				LIMIT $1
			)
		`

		result, err := s.conn.ExecContext(ctx, query, cleanupBatchSize)
		if err != nil {
			s.logger.Error("State cleanup batch failed",
				slog.String("error", err.Error()),
				slog.Int64("rows_deleted", totalDeleted),
				slog.Int("batches_completed", batchCount))

			return
		}

		deleted, err := result.RowsAffected()
		if err != nil {
			s.logger.Warn("State cleanup completed but row count unavailable",
				slog.String("error", err.Error()))

			return
		}

		totalDeleted += deleted
		batchCount++

		if deleted < cleanupBatchSize {
			break
		}

		time.Sleep(batchSleepDuration)
	}

	if totalDeleted > 0 {
		s.logger.Info("State cleanup completed",
			slog.Int64("rows_deleted", totalDeleted),
			slog.Int("batches", batchCount),
			slog.Duration("duration", time.Since(startTime)))
	}
}
