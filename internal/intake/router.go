package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/filepipe-io/filepipe/internal/enrichment"
)

// RunConfig is the file-addressing portion of a run request.
type RunConfig struct {
	S3Bucket string `json:"s3_bucket"`
	S3Key    string `json:"s3_key"`
	TaskSize string `json:"task_size"`
}

// RunRequest is one routed unit of work handed to the dispatcher.
type RunRequest struct {
	// RunKey is bucket/key/etag: the dedup identity of the file version.
	RunKey string

	// RunID is a fresh identifier for this run attempt.
	RunID string

	Config RunConfig
	Tags   map[string]string
}

// RunKey builds the dedup identity for one file version.
func RunKey(bucket, key, etag string) string {
	return strings.Join([]string{bucket, key, etag}, "/")
}

// Router turns parsed notifications into run requests, enriching raw
// notifications on the way through.
type Router struct {
	enricher *enrichment.Enricher
	logger   *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(enricher *enrichment.Enricher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{enricher: enricher, logger: logger}
}

// Route builds run requests from a batch of notifications. Unregistered
// files are skipped with a log line.
func (r *Router) Route(ctx context.Context, notifications []Notification) []RunRequest {
	var requests []RunRequest

	// Enrich the notifications that arrived raw, preserving batch order.
	pending := make([]enrichment.FileNotification, 0, len(notifications))

	for _, n := range notifications {
		if n.Enrichment == nil {
			pending = append(pending, n.File)
		}
	}

	var (
		decisions []enrichment.Decision
		next      int
	)

	if len(pending) > 0 {
		decisions = r.enricher.EnrichBatch(ctx, pending)
	}

	for _, n := range notifications {
		verdict := n.Enrichment
		key := n.File.Key

		if verdict == nil {
			d := decisions[next]
			next++

			key = d.DecodedKey
			verdict = &EnrichmentData{
				Registered:       d.Registered,
				DatasetID:        d.DatasetID,
				SchemaVersion:    d.SchemaVersion,
				ComputeTarget:    d.ComputeTarget,
				ValidationStatus: d.ValidationStatus,
				Reason:           d.Reason,
			}
		}

		if !verdict.Registered {
			r.logger.Info("Skipping unregistered file",
				slog.String("bucket", n.File.Bucket),
				slog.String("key", key),
				slog.String("reason", verdict.Reason))

			continue
		}

		requests = append(requests, r.buildRequest(n.File, key, verdict))
	}

	return requests
}

func (r *Router) buildRequest(file enrichment.FileNotification, key string, verdict *EnrichmentData) RunRequest {
	taskSize := TaskSize(file.Size)

	// An enrichment-forced LAMBDA target overrides the size policy.
	if strings.EqualFold(verdict.ComputeTarget, "LAMBDA") {
		taskSize = TaskSizeLambda
	}

	tags := map[string]string{
		"s3_bucket":    file.Bucket,
		"s3_key":       key,
		"file_size_mb": fmt.Sprintf("%.2f", float64(file.Size)/(1024*1024)),
		"task_size":    taskSize,
	}

	if verdict.DatasetID != "" {
		tags["dataset_id"] = verdict.DatasetID
	}

	if verdict.SchemaVersion != "" {
		tags["schema_version"] = verdict.SchemaVersion
	}

	return RunRequest{
		RunKey: RunKey(file.Bucket, key, file.ETag),
		RunID:  uuid.NewString(),
		Config: RunConfig{
			S3Bucket: file.Bucket,
			S3Key:    key,
			TaskSize: taskSize,
		},
		Tags: tags,
	}
}
