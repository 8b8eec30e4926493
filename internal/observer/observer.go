// Package observer publishes progress and outcome events for file runs.
// Sinks are best-effort: a delivery failure is logged and never fails the
// run that produced the event.
package observer

import "context"

// Summary describes the outcome of one file run.
type Summary struct {
	RunID           string `json:"runId"`
	Bucket          string `json:"bucket"`
	Key             string `json:"key"`
	RowCount        int64  `json:"rowCount"`
	BytesProcessed  int64  `json:"bytesProcessed"`
	ChunksProcessed int    `json:"chunksProcessed"`
	DurationMs      int64  `json:"durationMs"`
}

// Observer receives run lifecycle events.
type Observer interface {
	// Progress reports current/total units processed under a label such
	// as "rows" or "bytes". Total may be zero when unknown.
	Progress(ctx context.Context, current, total int64, label string)

	// Materialized reports that a downstream asset was produced.
	Materialized(ctx context.Context, asset string, metadata map[string]any)

	// Completed reports a successful run.
	Completed(ctx context.Context, s Summary)

	// Failed reports a failed run with whatever partial counts exist.
	Failed(ctx context.Context, err error, s Summary)
}

// Multi fans events out to several observers in order.
type Multi []Observer

var _ Observer = Multi{}

func (m Multi) Progress(ctx context.Context, current, total int64, label string) {
	for _, o := range m {
		o.Progress(ctx, current, total, label)
	}
}

func (m Multi) Materialized(ctx context.Context, asset string, metadata map[string]any) {
	for _, o := range m {
		o.Materialized(ctx, asset, metadata)
	}
}

func (m Multi) Completed(ctx context.Context, s Summary) {
	for _, o := range m {
		o.Completed(ctx, s)
	}
}

func (m Multi) Failed(ctx context.Context, err error, s Summary) {
	for _, o := range m {
		o.Failed(ctx, err, s)
	}
}

// Nop is an Observer that discards all events.
type Nop struct{}

var _ Observer = Nop{}

func (Nop) Progress(context.Context, int64, int64, string) {}

func (Nop) Materialized(context.Context, string, map[string]any) {}

func (Nop) Completed(context.Context, Summary) {}

func (Nop) Failed(context.Context, error, Summary) {}
