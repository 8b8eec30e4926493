package observer

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// recordingObserver captures events for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	progress  []int64
	completed []Summary
	failed    []error
}

func (r *recordingObserver) Progress(_ context.Context, current, _ int64, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, current)
}

func (r *recordingObserver) Materialized(context.Context, string, map[string]any) {}

func (r *recordingObserver) Completed(_ context.Context, s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, s)
}

func (r *recordingObserver) Failed(_ context.Context, err error, _ Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func TestMultiFansOut(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()

	first := &recordingObserver{}
	second := &recordingObserver{}
	multi := Multi{first, second}

	multi.Progress(ctx, 100, 0, "rows")
	multi.Completed(ctx, Summary{RunID: "r1", RowCount: 100})
	multi.Failed(ctx, errors.New("x"), Summary{RunID: "r2"})

	for i, obs := range []*recordingObserver{first, second} {
		if len(obs.progress) != 1 || obs.progress[0] != 100 {
			t.Errorf("observer %d progress = %v", i, obs.progress)
		}

		if len(obs.completed) != 1 || obs.completed[0].RunID != "r1" {
			t.Errorf("observer %d completed = %v", i, obs.completed)
		}

		if len(obs.failed) != 1 {
			t.Errorf("observer %d failed = %v", i, obs.failed)
		}
	}
}

func TestNopDiscards(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()

	var o Observer = Nop{}

	// Must not panic.
	o.Progress(ctx, 1, 2, "rows")
	o.Materialized(ctx, "asset", nil)
	o.Completed(ctx, Summary{})
	o.Failed(ctx, errors.New("x"), Summary{})
}
