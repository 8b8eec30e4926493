// Package processor processes one file end to end: it detects the format,
// streams rows (CSV), buffers and decodes documents (JSON), or walks chunks
// (binary), feeding hooks along the way and recording the outcome in the
// state store. A processing failure is fatal to the file, never to the
// service.
package processor

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/filepipe-io/filepipe/internal/intake"
	"github.com/filepipe-io/filepipe/internal/observer"
	"github.com/filepipe-io/filepipe/internal/reader"
	"github.com/filepipe-io/filepipe/internal/state"
)

// Format is the detected file format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatBinary Format = "binary"
)

// Request identifies one file run.
type Request struct {
	Bucket   string
	Key      string
	TaskSize string
	RunID    string
}

// Result is the outcome of one file run.
type Result struct {
	Success         bool   `json:"success"`
	RowCount        int64  `json:"rowCount"`
	BytesProcessed  int64  `json:"bytesProcessed"`
	ChunksProcessed int    `json:"chunksProcessed"`
	DurationMs      int64  `json:"durationMs"`
	Error           string `json:"error,omitempty"`
}

// BatchHook receives CSV/JSON records in batches. Returning an error fails
// the file.
type BatchHook func(ctx context.Context, batch []map[string]string) error

// ChunkHook receives binary chunks. Returning an error fails the file.
type ChunkHook func(ctx context.Context, chunk []byte, info reader.ChunkInfo) error

// Hooks are the pluggable per-batch/per-chunk consumers. Nil hooks count
// rows and bytes without doing any downstream work.
type Hooks struct {
	Batch BatchHook
	Chunk ChunkHook
}

// Processor runs single files through the pipeline.
type Processor struct {
	reader *reader.Reader
	states state.Store
	obs    observer.Observer
	hooks  Hooks
	cfg    *Config
	logger *slog.Logger
}

// New creates a Processor.
func New(r *reader.Reader, states state.Store, obs observer.Observer, hooks Hooks, cfg *Config, logger *slog.Logger) *Processor {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if obs == nil {
		obs = observer.Nop{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		reader: r,
		states: states,
		obs:    obs,
		hooks:  hooks,
		cfg:    cfg,
		logger: logger,
	}
}

// Process runs one file. The state record moves PENDING -> PROCESSING ->
// COMPLETED/FAILED; the returned Result mirrors the terminal record. The
// error return is non-nil exactly when the run failed.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	started := time.Now().UTC()

	loc := reader.Location{Bucket: req.Bucket, Key: req.Key}

	pk := state.FileKey(req.Bucket, req.Key)
	sk := state.StateKey(started)

	info, err := p.reader.Info(ctx, loc)
	if err != nil {
		result := failedResult(started, 0, 0, 0, err)
		p.obs.Failed(ctx, err, p.summary(req, result))

		return result, err
	}

	createErr := p.states.Create(ctx, &state.Record{
		PK:        pk,
		SK:        sk,
		Status:    state.StatusPending,
		FileSize:  info.Size,
		RunID:     req.RunID,
		TaskSize:  req.TaskSize,
		StartedAt: started,
	})
	if createErr != nil {
		// State bookkeeping trouble must not block processing.
		p.logger.Warn("Failed to create state record",
			slog.String("pk", pk),
			slog.String("error", createErr.Error()))
	}

	p.updateState(ctx, pk, sk, state.StatusProcessing, nil)

	format := DetectFormat(info.ContentType, req.Key)

	p.logger.Info("Processing file",
		slog.String("bucket", req.Bucket),
		slog.String("key", req.Key),
		slog.String("format", string(format)),
		slog.Int64("size", info.Size),
		slog.String("task_size", req.TaskSize),
		slog.String("run_id", req.RunID))

	var counts counts

	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, loc, pk, sk, &counts)
	case FormatJSON:
		err = p.processJSON(ctx, loc, pk, sk, info.Size, &counts)
	default:
		err = p.processBinary(ctx, loc, pk, sk, &counts)
	}

	if err != nil {
		result := failedResult(started, counts.rows, counts.bytes, counts.chunks, err)
		p.recordFailure(ctx, pk, sk, result)
		p.obs.Failed(ctx, err, p.summary(req, result))

		return result, err
	}

	result := &Result{
		Success:         true,
		RowCount:        counts.rows,
		BytesProcessed:  counts.bytes,
		ChunksProcessed: counts.chunks,
		DurationMs:      time.Since(started).Milliseconds(),
	}

	p.recordSuccess(ctx, pk, sk, result)

	p.obs.Materialized(ctx, req.Bucket+"/"+req.Key, map[string]any{
		"run_id":    req.RunID,
		"format":    string(format),
		"row_count": result.RowCount,
		"bytes":     result.BytesProcessed,
	})
	p.obs.Completed(ctx, p.summary(req, result))

	p.logger.Info("Processing completed",
		slog.String("key", req.Key),
		slog.Int64("row_count", result.RowCount),
		slog.Int64("bytes_processed", result.BytesProcessed),
		slog.Int64("duration_ms", result.DurationMs))

	return result, nil
}

// counts accumulates progress for a single run.
type counts struct {
	rows   int64
	bytes  int64
	chunks int
	total  int
}

// DetectFormat resolves the processing format, preferring content type over
// the key extension.
func DetectFormat(contentType, key string) Format {
	ct := strings.ToLower(contentType)

	switch {
	case strings.Contains(ct, "csv"):
		return FormatCSV
	case strings.Contains(ct, "json"):
		return FormatJSON
	}

	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return FormatCSV
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatBinary
	}
}

func failedResult(started time.Time, rows, bytes int64, chunks int, err error) *Result {
	return &Result{
		Success:         false,
		RowCount:        rows,
		BytesProcessed:  bytes,
		ChunksProcessed: chunks,
		DurationMs:      time.Since(started).Milliseconds(),
		Error:           err.Error(),
	}
}

func (p *Processor) summary(req Request, result *Result) observer.Summary {
	return observer.Summary{
		RunID:           req.RunID,
		Bucket:          req.Bucket,
		Key:             req.Key,
		RowCount:        result.RowCount,
		BytesProcessed:  result.BytesProcessed,
		ChunksProcessed: result.ChunksProcessed,
		DurationMs:      result.DurationMs,
	}
}

func (p *Processor) recordFailure(ctx context.Context, pk, sk string, result *Result) {
	msg := result.Error
	if len(msg) > 1024 {
		msg = msg[:1024]
	}

	p.updateState(ctx, pk, sk, state.StatusFailed, &state.Patch{
		RowCount:        &result.RowCount,
		ChunksProcessed: &result.ChunksProcessed,
		ErrorMessage:    &msg,
	})
}

func (p *Processor) recordSuccess(ctx context.Context, pk, sk string, result *Result) {
	p.updateState(ctx, pk, sk, state.StatusCompleted, &state.Patch{
		RowCount:        &result.RowCount,
		ChunksProcessed: &result.ChunksProcessed,
	})
}

func (p *Processor) updateState(ctx context.Context, pk, sk string, status state.Status, patch *state.Patch) {
	if err := p.states.UpdateStatus(ctx, pk, sk, status, patch); err != nil {
		p.logger.Warn("Failed to update state record",
			slog.String("pk", pk),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}

// checkpoint records incremental progress mid-run and emits an observer
// progress event.
func (p *Processor) checkpoint(ctx context.Context, pk, sk string, c *counts, label string) {
	patch := &state.Patch{RowCount: &c.rows}
	if c.chunks > 0 {
		patch.ChunksProcessed = &c.chunks
	}

	if c.total > 0 {
		patch.TotalChunks = &c.total
	}

	p.updateState(ctx, pk, sk, state.StatusProcessing, patch)

	switch label {
	case "rows":
		p.obs.Progress(ctx, c.rows, 0, label)
	default:
		p.obs.Progress(ctx, int64(c.chunks), int64(c.total), label)
	}
}

// TaskSizeFor classifies a file for compute placement using the shared
// intake policy.
func TaskSizeFor(bytes int64) string {
	return intake.TaskSize(bytes)
}
