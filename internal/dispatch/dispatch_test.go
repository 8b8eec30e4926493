package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filepipe-io/filepipe/internal/intake"
	"github.com/filepipe-io/filepipe/internal/objectstore"
	"github.com/filepipe-io/filepipe/internal/processor"
	"github.com/filepipe-io/filepipe/internal/reader"
	"github.com/filepipe-io/filepipe/internal/state"
)

func newLocalWith(store objectstore.Store, hooks processor.Hooks, waitBound time.Duration) *Local {
	p := processor.New(reader.New(store), state.NewInMemoryStore(), nil, hooks, nil, nil)

	return NewLocal(p, waitBound, nil)
}

func request(key string) intake.RunRequest {
	return intake.RunRequest{
		RunKey: "ingest/" + key + "/etag",
		RunID:  "run-1",
		Config: intake.RunConfig{S3Bucket: "ingest", S3Key: key, TaskSize: intake.TaskSizeLambda},
	}
}

func TestLocalDispatchSuccess(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "f.csv", []byte("a,b\n1,2\n"))

	local := newLocalWith(store, processor.Hooks{}, time.Minute)

	if err := local.Dispatch(context.Background(), request("f.csv")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
}

func TestLocalDispatchRunFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "f.csv", []byte("a,b\n1,2\n"))

	hooks := processor.Hooks{Batch: func(context.Context, []map[string]string) error {
		return errors.New("sink unavailable")
	}}

	local := newLocalWith(store, hooks, time.Minute)

	if err := local.Dispatch(context.Background(), request("f.csv")); err == nil {
		t.Fatal("expected run failure")
	}
}

func TestLocalDispatchWaitBound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := objectstore.NewMemoryStore()
	store.Put("ingest", "f.csv", []byte("a,b\n1,2\n"))

	hooks := processor.Hooks{Batch: func(ctx context.Context, _ []map[string]string) error {
		// Simulate a stuck downstream; only cancellation frees it.
		<-ctx.Done()

		return ctx.Err()
	}}

	local := newLocalWith(store, hooks, 20*time.Millisecond)

	err := local.Dispatch(context.Background(), request("f.csv"))
	if err == nil {
		t.Fatal("expected timeout failure")
	}
}
