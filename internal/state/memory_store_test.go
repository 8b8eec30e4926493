package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFileKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := FileKey("ingest", "daily/file.csv"); got != "FILE#ingest#daily/file.csv" {
		t.Errorf("FileKey = %q", got)
	}
}

func TestStateKeyOrdersLexicographically(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	// 100ms vs 120ms: a trimmed-zeros format would order these backwards
	// ("...00.1Z" > "...00.12Z").
	earlier := StateKey(base.Add(100 * time.Millisecond))
	later := StateKey(base.Add(120 * time.Millisecond))

	if !(earlier < later) {
		t.Errorf("sort keys out of order: %q should sort before %q", earlier, later)
	}

	if got := StateKey(base); got != "STATE#2026-08-29T10:00:00.000000000Z" {
		t.Errorf("StateKey = %q, want zero-padded nanoseconds", got)
	}
}

func TestGetLatestReturnsChronologicallyNewest(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryStore()
	pk := FileKey("ingest", "daily/file.csv")
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	first := base.Add(100 * time.Millisecond)
	second := base.Add(120 * time.Millisecond)

	for _, rec := range []*Record{
		{PK: pk, SK: StateKey(first), Status: StatusCompleted, StartedAt: first},
		{PK: pk, SK: StateKey(second), Status: StatusProcessing, StartedAt: second},
	} {
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	latest, err := store.GetLatest(ctx, pk)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}

	if latest.Status != StatusProcessing {
		t.Errorf("GetLatest status = %s, want the chronologically newest PROCESSING", latest.Status)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("COMPLETED and FAILED must be terminal")
	}

	if StatusPending.IsTerminal() || StatusValidating.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Error("non-terminal statuses reported terminal")
	}
}

func TestInMemoryStoreLifecycle(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryStore()

	pk := FileKey("ingest", "daily/file.csv")
	started := time.Now().UTC()
	sk := StateKey(started)

	err := store.Create(ctx, &Record{
		PK:        pk,
		SK:        sk,
		Status:    StatusPending,
		FileSize:  1024,
		RunID:     "run-1",
		TaskSize:  "lambda",
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	latest, err := store.GetLatest(ctx, pk)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}

	if latest.Status != StatusPending {
		t.Errorf("status = %s, want PENDING", latest.Status)
	}

	if latest.CompletedAt != nil {
		t.Error("CompletedAt must be nil for non-terminal status")
	}

	// TTL defaults applied on create.
	wantExpiry := started.Add(DefaultTTL)
	if latest.ExpiresAt.Sub(wantExpiry) > time.Second || wantExpiry.Sub(latest.ExpiresAt) > time.Second {
		t.Errorf("ExpiresAt = %v, want about %v", latest.ExpiresAt, wantExpiry)
	}

	if err := store.UpdateStatus(ctx, pk, sk, StatusProcessing, nil); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	rows := int64(5000)

	if err := store.UpdateStatus(ctx, pk, sk, StatusCompleted, &Patch{RowCount: &rows}); err != nil {
		t.Fatalf("terminal UpdateStatus failed: %v", err)
	}

	latest, err = store.GetLatest(ctx, pk)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}

	if latest.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", latest.Status)
	}

	if latest.CompletedAt == nil {
		t.Fatal("CompletedAt must be set on terminal status")
	}

	if latest.RowCount != 5000 {
		t.Errorf("RowCount = %d, want 5000", latest.RowCount)
	}
}

func TestInMemoryStoreTerminalIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryStore()

	pk := FileKey("ingest", "f.csv")
	sk := StateKey(time.Now())

	if err := store.Create(ctx, &Record{PK: pk, SK: sk, Status: StatusPending, StartedAt: time.Now()}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.UpdateStatus(ctx, pk, sk, StatusFailed, nil); err != nil {
		t.Fatalf("first terminal update failed: %v", err)
	}

	first, _ := store.GetLatest(ctx, pk)

	time.Sleep(5 * time.Millisecond)

	// Repeating the terminal update must not move CompletedAt.
	if err := store.UpdateStatus(ctx, pk, sk, StatusFailed, nil); err != nil {
		t.Fatalf("repeated terminal update failed: %v", err)
	}

	second, _ := store.GetLatest(ctx, pk)

	if !first.CompletedAt.Equal(*second.CompletedAt) {
		t.Errorf("CompletedAt moved on repeated terminal update: %v -> %v", first.CompletedAt, second.CompletedAt)
	}
}

func TestInMemoryStoreHistoryNewestFirst(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryStore()

	pk := FileKey("ingest", "f.csv")
	base := time.Now().UTC()

	for i, status := range []Status{StatusPending, StatusProcessing, StatusCompleted} {
		rec := &Record{
			PK:        pk,
			SK:        StateKey(base.Add(time.Duration(i) * time.Second)),
			Status:    status,
			StartedAt: base,
		}
		if status.IsTerminal() {
			done := base.Add(time.Duration(i) * time.Second)
			rec.CompletedAt = &done
		}

		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	history, err := store.GetHistory(ctx, pk)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}

	if len(history) != 3 {
		t.Fatalf("got %d records, want 3", len(history))
	}

	if history[0].Status != StatusCompleted || history[2].Status != StatusPending {
		t.Errorf("history not newest first: %s, %s, %s",
			history[0].Status, history[1].Status, history[2].Status)
	}

	latest, err := store.GetLatest(ctx, pk)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}

	if latest.Status != StatusCompleted {
		t.Errorf("latest = %s, want COMPLETED", latest.Status)
	}
}

func TestInMemoryStoreNotFound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewInMemoryStore()

	if _, err := store.GetLatest(ctx, "FILE#none#none"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}

	if err := store.UpdateStatus(ctx, "FILE#none#none", "STATE#x", StatusFailed, nil); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestInMemoryStoreRejectsInvalidStatus(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryStore()

	err := store.Create(context.Background(), &Record{
		PK: "FILE#b#k", SK: StateKey(time.Now()), Status: "RUNNING", StartedAt: time.Now(),
	})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}
