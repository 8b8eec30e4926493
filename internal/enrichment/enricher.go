// Package enrichment is the gatekeeper between raw storage notifications and
// the ingestion pipeline. Each notification is decoded, matched against the
// dataset registry, and structure-validated from a bounded sample; the
// outcome is a routing decision, never an exception.
package enrichment

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/filepipe-io/filepipe/internal/reader"
	"github.com/filepipe-io/filepipe/internal/registry"
	"github.com/filepipe-io/filepipe/internal/validation"
)

// junkSuffixes are partial-upload artifacts that are never ingested.
var junkSuffixes = []string{".tmp", ".crdownload"}

// FileNotification is one raw storage event to enrich.
type FileNotification struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

// Decision is the enrichment outcome for one notification.
//
// Registered:false means the file is skipped; Reason says why. A registered
// decision carries the dataset identity and compute target for routing.
type Decision struct {
	Registered       bool
	Reason           string
	DecodedKey       string
	RoutingKey       string
	DatasetID        string
	SchemaVersion    string
	ComputeTarget    string
	ValidationStatus string
	ValidationErrors []string
}

// Sampler fetches a bounded prefix of an object for structure validation.
type Sampler interface {
	ReadSample(ctx context.Context, loc reader.Location, n int64) ([]byte, error)
}

// Enricher enriches storage notifications into routing decisions.
type Enricher struct {
	registry registry.Store
	sampler  Sampler
	cfg      *Config
	logger   *slog.Logger
}

// New creates an Enricher. A nil sampler disables structure validation
// (every lookup hit passes as valid).
func New(reg registry.Store, sampler Sampler, cfg *Config, logger *slog.Logger) *Enricher {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Enricher{
		registry: reg,
		sampler:  sampler,
		cfg:      cfg,
		logger:   logger,
	}
}

// EnrichBatch enriches a batch of notifications. The result always has the
// same length and order as the input, including for empty and malformed
// batches. A panic while enriching one event marks that event unregistered
// and never disturbs its neighbors.
func (e *Enricher) EnrichBatch(ctx context.Context, notifications []FileNotification) []Decision {
	decisions := make([]Decision, len(notifications))

	for i, n := range notifications {
		decisions[i] = e.enrichOne(ctx, n)
	}

	return decisions
}

func (e *Enricher) enrichOne(ctx context.Context, n FileNotification) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Enrichment panicked for event",
				slog.String("bucket", n.Bucket),
				slog.String("key", n.Key),
				slog.Any("panic", r))

			decision = Decision{Registered: false, Reason: "enrichment error", DecodedKey: n.Key}
		}
	}()

	key := decodeKey(n.Key)

	decision = Decision{DecodedKey: key}

	if key == "" {
		decision.Reason = "empty object key"

		return decision
	}

	if suffix := junkSuffix(key); suffix != "" {
		decision.Reason = "junk suffix " + suffix

		return decision
	}

	routingKey := e.routingKey(key)
	decision.RoutingKey = routingKey

	cfg, err := e.registry.GetConfig(ctx, routingKey)
	if err != nil {
		e.logger.Warn("Registry lookup failed",
			slog.String("routing_key", routingKey),
			slog.String("error", err.Error()))

		decision.Reason = "registry lookup failed"

		return decision
	}

	if cfg == nil {
		decision.Reason = "not registered"

		return decision
	}

	ext := path.Ext(key)
	if !cfg.AllowsExtension(ext) {
		decision.Reason = "extension " + ext + " not allowed"

		return decision
	}

	result := e.validateStructure(ctx, n.Bucket, key, ext, cfg)

	decision.DatasetID = cfg.DatasetID
	decision.SchemaVersion = cfg.SchemaVersion
	decision.ComputeTarget = string(cfg.ComputeTarget)
	decision.ValidationErrors = result.Errors

	// A structurally invalid file is rejected, not routed: the errors ride
	// along on the decision so downstream can surface them.
	if !result.Valid {
		decision.ValidationStatus = "invalid"
		decision.Reason = "structure validation failed"

		return decision
	}

	decision.Registered = true
	decision.ValidationStatus = "valid"

	return decision
}

// validateStructure fetches a bounded sample and runs structure validation.
// Sample fetch failures fail open: transient storage trouble must not block
// a registered file.
func (e *Enricher) validateStructure(ctx context.Context, bucket, key, ext string, cfg *registry.DatasetConfig) validation.Result {
	if e.sampler == nil || len(cfg.RequiredColumns) == 0 {
		return validation.Result{Valid: true}
	}

	format := validation.DetectFormat(ext)

	size := validation.SampleSize(format)
	if size == 0 {
		return validation.Result{Valid: true}
	}

	sample, err := e.sampler.ReadSample(ctx, reader.Location{Bucket: bucket, Key: key}, size)
	if err != nil {
		e.logger.Warn("Sample fetch failed, failing open",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("error", err.Error()))

		return validation.Result{Valid: true}
	}

	schema := make([]validation.ColumnSpec, len(cfg.RequiredColumns))
	for i, col := range cfg.RequiredColumns {
		schema[i] = validation.ColumnSpec{Name: col.Name, Type: col.Type}
	}

	return validation.Validate(sample, format, schema)
}

// routingKey derives the dataset routing key from a decoded object key.
func (e *Enricher) routingKey(key string) string {
	switch e.cfg.RoutingStrategy {
	case RoutingFolder:
		if first, _, found := strings.Cut(key, "/"); found && first != "" {
			return first
		}

		return e.cfg.DefaultDataset
	default:
		return e.cfg.DefaultDataset
	}
}

// decodeKey URL-decodes an object key as it arrives in storage notifications
// (query encoding, so '+' is a space). Undecodable keys pass through as-is.
func decodeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}

	return decoded
}

// junkSuffix returns the matching junk suffix, or "".
func junkSuffix(key string) string {
	lower := strings.ToLower(key)

	for _, suffix := range junkSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return suffix
		}
	}

	return ""
}
