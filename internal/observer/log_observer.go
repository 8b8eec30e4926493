package observer

import (
	"context"
	"log/slog"
)

// LogObserver writes run events to a slog logger.
type LogObserver struct {
	logger *slog.Logger
}

var _ Observer = (*LogObserver)(nil)

// NewLogObserver creates a log-sink observer. A nil logger uses the default.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogObserver{logger: logger}
}

func (o *LogObserver) Progress(ctx context.Context, current, total int64, label string) {
	o.logger.InfoContext(ctx, "Processing progress",
		slog.Int64("current", current),
		slog.Int64("total", total),
		slog.String("unit", label))
}

func (o *LogObserver) Materialized(ctx context.Context, asset string, metadata map[string]any) {
	o.logger.InfoContext(ctx, "Asset materialized",
		slog.String("asset", asset),
		slog.Any("metadata", metadata))
}

func (o *LogObserver) Completed(ctx context.Context, s Summary) {
	o.logger.InfoContext(ctx, "Run completed",
		slog.String("run_id", s.RunID),
		slog.String("bucket", s.Bucket),
		slog.String("key", s.Key),
		slog.Int64("row_count", s.RowCount),
		slog.Int64("bytes_processed", s.BytesProcessed),
		slog.Int("chunks_processed", s.ChunksProcessed),
		slog.Int64("duration_ms", s.DurationMs))
}

func (o *LogObserver) Failed(ctx context.Context, err error, s Summary) {
	o.logger.ErrorContext(ctx, "Run failed",
		slog.String("run_id", s.RunID),
		slog.String("bucket", s.Bucket),
		slog.String("key", s.Key),
		slog.String("error", err.Error()),
		slog.Int64("row_count", s.RowCount),
		slog.Int64("bytes_processed", s.BytesProcessed),
		slog.Int64("duration_ms", s.DurationMs))
}
