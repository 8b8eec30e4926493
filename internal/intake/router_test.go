package intake

import (
	"context"
	"testing"

	"github.com/filepipe-io/filepipe/internal/enrichment"
	"github.com/filepipe-io/filepipe/internal/registry"
)

// staticRegistry registers every routing key with a fixed config.
type staticRegistry struct {
	cfg *registry.DatasetConfig
}

func (s *staticRegistry) GetConfig(context.Context, string) (*registry.DatasetConfig, error) {
	return s.cfg, nil
}

func newTestRouter(cfg *registry.DatasetConfig) *Router {
	enricher := enrichment.New(&staticRegistry{cfg: cfg}, nil, enrichment.DefaultConfig(), nil)

	return NewRouter(enricher, nil)
}

func TestRouteBuildsRunRequests(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	router := newTestRouter(&registry.DatasetConfig{
		DatasetID:     "licenses",
		SchemaVersion: "v2",
		ComputeTarget: registry.ComputeTargetAuto,
	})

	notifications := []Notification{
		{File: enrichment.FileNotification{Bucket: "ingest", Key: "jan.csv", Size: 1024, ETag: "abc"}},
	}

	requests := router.Route(context.Background(), notifications)
	if len(requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(requests))
	}

	req := requests[0]
	if req.RunKey != "ingest/jan.csv/abc" {
		t.Errorf("RunKey = %q", req.RunKey)
	}

	if req.RunID == "" {
		t.Error("expected generated RunID")
	}

	if req.Config.S3Bucket != "ingest" || req.Config.S3Key != "jan.csv" {
		t.Errorf("config = %+v", req.Config)
	}

	if req.Config.TaskSize != TaskSizeLambda {
		t.Errorf("task size = %s, want lambda", req.Config.TaskSize)
	}

	if req.Tags["dataset_id"] != "licenses" || req.Tags["schema_version"] != "v2" {
		t.Errorf("tags = %v", req.Tags)
	}

	if req.Tags["s3_bucket"] != "ingest" || req.Tags["s3_key"] != "jan.csv" {
		t.Errorf("tags = %v", req.Tags)
	}

	if req.Tags["file_size_mb"] != "0.00" || req.Tags["task_size"] != TaskSizeLambda {
		t.Errorf("tags = %v", req.Tags)
	}
}

func TestRouteSkipsUnregistered(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Nil config means no routing key is registered.
	router := newTestRouter(nil)

	requests := router.Route(context.Background(), []Notification{
		{File: enrichment.FileNotification{Bucket: "ingest", Key: "jan.csv"}},
	})

	if len(requests) != 0 {
		t.Errorf("got %d requests, want 0", len(requests))
	}
}

func TestRouteSizeTierSelection(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	const mb = 1024 * 1024

	router := newTestRouter(&registry.DatasetConfig{
		DatasetID:     "licenses",
		ComputeTarget: registry.ComputeTargetAuto,
	})

	requests := router.Route(context.Background(), []Notification{
		{File: enrichment.FileNotification{Bucket: "b", Key: "big.csv", Size: 300 * mb, ETag: "x"}},
	})

	if len(requests) != 1 || requests[0].Config.TaskSize != TaskSizeLarge {
		t.Fatalf("expected large tier, got %+v", requests)
	}
}

func TestRouteLambdaTargetOverridesSize(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	const mb = 1024 * 1024

	router := newTestRouter(&registry.DatasetConfig{
		DatasetID:     "licenses",
		ComputeTarget: registry.ComputeTargetLambda,
	})

	requests := router.Route(context.Background(), []Notification{
		{File: enrichment.FileNotification{Bucket: "b", Key: "big.csv", Size: 900 * mb, ETag: "x"}},
	})

	if len(requests) != 1 || requests[0].Config.TaskSize != TaskSizeLambda {
		t.Fatalf("forced LAMBDA target must override size policy, got %+v", requests)
	}
}

func TestRoutePreEnrichedSkipsEnricher(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Registry would reject everything; a pre-enriched verdict bypasses it.
	router := newTestRouter(nil)

	requests := router.Route(context.Background(), []Notification{
		{
			File: enrichment.FileNotification{Bucket: "b", Key: "jan.csv", Size: 10, ETag: "x"},
			Enrichment: &EnrichmentData{
				Registered:       true,
				DatasetID:        "licenses",
				ValidationStatus: "valid",
			},
		},
	})

	if len(requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(requests))
	}
}
