package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/filepipe-io/filepipe/internal/objectstore"
	"github.com/filepipe-io/filepipe/internal/observer"
	"github.com/filepipe-io/filepipe/internal/reader"
	"github.com/filepipe-io/filepipe/internal/state"
)

// trackingStateStore records every UpdateStatus call it forwards.
type trackingStateStore struct {
	state.Store
	updates []stateUpdate
}

type stateUpdate struct {
	status state.Status
	rows   int64
}

func (s *trackingStateStore) UpdateStatus(ctx context.Context, pk, sk string, status state.Status, patch *state.Patch) error {
	u := stateUpdate{status: status}
	if patch != nil && patch.RowCount != nil {
		u.rows = *patch.RowCount
	}

	s.updates = append(s.updates, u)

	return s.Store.UpdateStatus(ctx, pk, sk, status, patch)
}

// recordingObserver keeps the Materialized events it receives.
type recordingObserver struct {
	observer.Nop
	assets   []string
	metadata map[string]any
}

func (o *recordingObserver) Materialized(_ context.Context, asset string, metadata map[string]any) {
	o.assets = append(o.assets, asset)
	o.metadata = metadata
}

func newTestProcessor(store objectstore.Store, states state.Store, hooks Hooks, cfg *Config) *Processor {
	return New(reader.New(store), states, nil, hooks, cfg, nil)
}

func TestDetectFormat(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		contentType string
		key         string
		want        Format
	}{
		{"text/csv", "file.dat", FormatCSV},
		{"application/json", "file.dat", FormatJSON},
		{"", "file.csv", FormatCSV},
		{"", "file.JSON", FormatJSON},
		{"", "file.jsonl", FormatJSON},
		{"application/octet-stream", "file.bin", FormatBinary},
		{"", "file.bin", FormatBinary},
		{"", "noext", FormatBinary},
		// Content type wins over extension.
		{"text/csv", "file.json", FormatCSV},
	}

	for _, tt := range tests {
		if got := DetectFormat(tt.contentType, tt.key); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %s, want %s", tt.contentType, tt.key, got, tt.want)
		}
	}
}

func TestProcessCSVCompletes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()

	var body strings.Builder

	body.WriteString("Date,License_Number,Board_Code\n")

	const rows = 2500
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&body, "01/15/2024,%d,MD\n", i)
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "licenses.csv", []byte(body.String()))

	states := state.NewInMemoryStore()

	var (
		batches int
		records int
	)

	hooks := Hooks{Batch: func(_ context.Context, batch []map[string]string) error {
		batches++
		records += len(batch)

		if batch[0]["Board_Code"] != "MD" {
			t.Errorf("record missing zipped header field: %v", batch[0])
		}

		return nil
	}}

	p := newTestProcessor(store, states, hooks, nil)

	result, err := p.Process(ctx, Request{Bucket: "ingest", Key: "licenses.csv", TaskSize: "lambda", RunID: "run-1"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !result.Success || result.RowCount != rows {
		t.Errorf("result = %+v, want success with %d rows", result, rows)
	}

	// 2500 rows with batch size 1000 -> 3 batches.
	if batches != 3 || records != rows {
		t.Errorf("batches = %d records = %d", batches, records)
	}

	latest, err := states.GetLatest(ctx, state.FileKey("ingest", "licenses.csv"))
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}

	if latest.Status != state.StatusCompleted {
		t.Errorf("state = %s, want COMPLETED", latest.Status)
	}

	if latest.RowCount != rows {
		t.Errorf("state row count = %d, want %d", latest.RowCount, rows)
	}

	if latest.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
}

func TestProcessCSVSkipsBlankLines(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "gaps.csv", []byte("a,b\n1,2\n\n3,4\n"))

	var records int

	hooks := Hooks{Batch: func(_ context.Context, batch []map[string]string) error {
		records += len(batch)

		return nil
	}}

	p := newTestProcessor(store, state.NewInMemoryStore(), hooks, nil)

	result, err := p.Process(context.Background(), Request{Bucket: "ingest", Key: "gaps.csv", RunID: "run-9"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// The empty line between the data rows is not a row.
	if result.RowCount != 2 || records != 2 {
		t.Errorf("rows = %d records = %d, want 2", result.RowCount, records)
	}
}

func TestProcessCSVHookFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "bad.csv", []byte("a,b\n1,2\n3,4\n"))

	states := state.NewInMemoryStore()

	hooks := Hooks{Batch: func(context.Context, []map[string]string) error {
		return errors.New("downstream rejected batch")
	}}

	p := newTestProcessor(store, states, hooks, nil)

	result, err := p.Process(ctx, Request{Bucket: "ingest", Key: "bad.csv", RunID: "run-2"})
	if err == nil {
		t.Fatal("expected processing error")
	}

	if result.Success {
		t.Error("result must not be success")
	}

	latest, err := states.GetLatest(ctx, state.FileKey("ingest", "bad.csv"))
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}

	if latest.Status != state.StatusFailed {
		t.Errorf("state = %s, want FAILED", latest.Status)
	}

	if latest.ErrorMessage == "" {
		t.Error("expected error message in state record")
	}
}

func TestProcessJSONArray(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "recs.json", []byte(`[{"id": 1, "name": "a"}, {"id": 2, "name": "b"}]`))

	var records []map[string]string

	hooks := Hooks{Batch: func(_ context.Context, batch []map[string]string) error {
		records = append(records, batch...)

		return nil
	}}

	p := newTestProcessor(store, state.NewInMemoryStore(), hooks, nil)

	result, err := p.Process(context.Background(), Request{Bucket: "ingest", Key: "recs.json", RunID: "run-3"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.RowCount != 2 || len(records) != 2 {
		t.Fatalf("rows = %d records = %d, want 2", result.RowCount, len(records))
	}

	if records[0]["name"] != "a" || records[0]["id"] != "1" {
		t.Errorf("unexpected record: %v", records[0])
	}
}

func TestProcessJSONLinesSkipsBadLines(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "recs.jsonl", []byte("{\"id\": 1}\nnot json\n{\"id\": 2}\n"))

	p := newTestProcessor(store, state.NewInMemoryStore(), Hooks{}, nil)

	result, err := p.Process(context.Background(), Request{Bucket: "ingest", Key: "recs.jsonl", RunID: "run-4"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.RowCount != 2 {
		t.Errorf("rows = %d, want 2 (bad line skipped)", result.RowCount)
	}
}

func TestProcessJSONCheckpointsToStateStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var body strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&body, "{\"id\": %d}\n", i)
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "recs.jsonl", []byte(body.String()))

	states := &trackingStateStore{Store: state.NewInMemoryStore()}

	cfg := DefaultConfig()
	cfg.CheckpointRows = 2

	p := newTestProcessor(store, states, Hooks{}, cfg)

	result, err := p.Process(context.Background(), Request{Bucket: "ingest", Key: "recs.jsonl", RunID: "run-10"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.RowCount != 5 {
		t.Fatalf("rows = %d, want 5", result.RowCount)
	}

	// 5 rows with a checkpoint every 2 -> progress persisted at 2 and 4.
	var checkpoints []int64

	for _, u := range states.updates {
		if u.status == state.StatusProcessing && u.rows > 0 {
			checkpoints = append(checkpoints, u.rows)
		}
	}

	if len(checkpoints) != 2 || checkpoints[0] != 2 || checkpoints[1] != 4 {
		t.Errorf("checkpointed row counts = %v, want [2 4]", checkpoints)
	}
}

func TestProcessEmitsMaterialized(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "ok.csv", []byte("a,b\n1,2\n"))

	obs := &recordingObserver{}

	p := New(reader.New(store), state.NewInMemoryStore(), obs, Hooks{}, nil, nil)

	if _, err := p.Process(context.Background(), Request{Bucket: "ingest", Key: "ok.csv", RunID: "run-11"}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(obs.assets) != 1 || obs.assets[0] != "ingest/ok.csv" {
		t.Fatalf("materialized assets = %v, want [ingest/ok.csv]", obs.assets)
	}

	if obs.metadata["run_id"] != "run-11" || obs.metadata["row_count"] != int64(1) {
		t.Errorf("materialized metadata = %v", obs.metadata)
	}
}

func TestProcessJSONTooLarge(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "big.json", []byte(`[{"id": 1}]`))

	cfg := DefaultConfig()
	cfg.MaxJSONBytes = 4

	p := newTestProcessor(store, state.NewInMemoryStore(), Hooks{}, cfg)

	_, err := p.Process(context.Background(), Request{Bucket: "ingest", Key: "big.json", RunID: "run-5"})
	if !errors.Is(err, ErrJSONTooLarge) {
		t.Fatalf("expected ErrJSONTooLarge, got %v", err)
	}
}

func TestProcessBinaryChunks(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	body := make([]byte, 10)
	for i := range body {
		body[i] = byte(i)
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "blob.bin", body)

	cfg := DefaultConfig()
	cfg.ChunkSize = 4

	var chunkSizes []int64

	hooks := Hooks{Chunk: func(_ context.Context, chunk []byte, info reader.ChunkInfo) error {
		chunkSizes = append(chunkSizes, int64(len(chunk)))

		return nil
	}}

	p := newTestProcessor(store, state.NewInMemoryStore(), hooks, cfg)

	result, err := p.Process(context.Background(), Request{Bucket: "ingest", Key: "blob.bin", RunID: "run-6"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.ChunksProcessed != 3 || result.BytesProcessed != 10 {
		t.Errorf("result = %+v, want 3 chunks / 10 bytes", result)
	}

	if len(chunkSizes) != 3 || chunkSizes[2] != 2 {
		t.Errorf("chunk sizes = %v, want [4 4 2]", chunkSizes)
	}
}

func TestProcessBinaryMidChunkFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "blob.bin", make([]byte, 12))

	states := state.NewInMemoryStore()

	cfg := DefaultConfig()
	cfg.ChunkSize = 4

	hooks := Hooks{Chunk: func(_ context.Context, _ []byte, info reader.ChunkInfo) error {
		if info.Index == 1 {
			return errors.New("disk full")
		}

		return nil
	}}

	p := newTestProcessor(store, states, hooks, cfg)

	result, err := p.Process(ctx, Request{Bucket: "ingest", Key: "blob.bin", RunID: "run-7"})
	if err == nil {
		t.Fatal("expected mid-chunk failure")
	}

	if result.Success || result.ChunksProcessed != 1 {
		t.Errorf("result = %+v, want failure after 1 chunk", result)
	}

	history, err := states.GetHistory(ctx, state.FileKey("ingest", "blob.bin"))
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}

	for _, rec := range history {
		if rec.Status == state.StatusCompleted {
			t.Error("no COMPLETED record may exist after a failed run")
		}
	}

	if history[0].Status != state.StatusFailed {
		t.Errorf("latest = %s, want FAILED", history[0].Status)
	}
}

func TestProcessMissingObjectFails(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	p := newTestProcessor(objectstore.NewMemoryStore(), state.NewInMemoryStore(), Hooks{}, nil)

	result, err := p.Process(context.Background(), Request{Bucket: "ingest", Key: "missing.csv", RunID: "run-8"})
	if err == nil {
		t.Fatal("expected error for missing object")
	}

	if result.Success {
		t.Error("result must not be success")
	}
}
