package intake

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/filepipe-io/filepipe/internal/enrichment"
)

// Envelope parse errors.
var (
	ErrEmptyEnvelope = errors.New("empty notification envelope")
	ErrNoRecords     = errors.New("notification envelope has no records")
)

// rawEnvelope is the storage-notification wire shape.
type rawEnvelope struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key  string `json:"key"`
				Size int64  `json:"size"`
				ETag string `json:"eTag"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// enrichedEnvelope wraps an original notification with enrichment output.
type enrichedEnvelope struct {
	OriginalEvent  json.RawMessage `json:"original_event"`
	EnrichmentData *EnrichmentData `json:"enrichment_data"`
}

// EnrichmentData is the enrichment verdict carried inside an enriched
// envelope.
type EnrichmentData struct {
	Registered       bool   `json:"registered"`
	DatasetID        string `json:"dataset_id,omitempty"`
	SchemaVersion    string `json:"schema_version,omitempty"`
	ComputeTarget    string `json:"compute_target,omitempty"`
	ValidationStatus string `json:"validation_status,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// Notification is one parsed file event, optionally carrying enrichment.
type Notification struct {
	File       enrichment.FileNotification
	Enrichment *EnrichmentData
}

// ParseEnvelope decodes a notification message body. Both raw storage
// envelopes and enriched envelopes are accepted; an enriched envelope
// contributes its verdict alongside each file record.
func ParseEnvelope(body []byte) ([]Notification, error) {
	if len(body) == 0 {
		return nil, ErrEmptyEnvelope
	}

	// Enriched envelopes are detected by the presence of enrichment_data.
	var enriched enrichedEnvelope
	if err := json.Unmarshal(body, &enriched); err == nil && enriched.EnrichmentData != nil {
		notifications, err := parseRaw(enriched.OriginalEvent)
		if err != nil {
			return nil, fmt.Errorf("enriched envelope: %w", err)
		}

		for i := range notifications {
			notifications[i].Enrichment = enriched.EnrichmentData
		}

		return notifications, nil
	}

	return parseRaw(body)
}

func parseRaw(body []byte) ([]Notification, error) {
	var envelope rawEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse notification envelope: %w", err)
	}

	if len(envelope.Records) == 0 {
		return nil, ErrNoRecords
	}

	notifications := make([]Notification, 0, len(envelope.Records))

	for _, rec := range envelope.Records {
		notifications = append(notifications, Notification{
			File: enrichment.FileNotification{
				Bucket: rec.S3.Bucket.Name,
				Key:    rec.S3.Object.Key,
				Size:   rec.S3.Object.Size,
				ETag:   rec.S3.Object.ETag,
			},
		})
	}

	return notifications, nil
}
