package intake

import (
	"errors"
	"testing"
)

func TestParseRawEnvelope(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	body := []byte(`{
		"Records": [
			{"s3": {"bucket": {"name": "ingest"}, "object": {"key": "licenses/jan.csv", "size": 1024, "eTag": "abc123"}}},
			{"s3": {"bucket": {"name": "ingest"}, "object": {"key": "licenses/feb.csv", "size": 2048, "eTag": "def456"}}}
		]
	}`)

	notifications, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}

	if len(notifications) != 2 {
		t.Fatalf("got %d notifications, want 2", len(notifications))
	}

	first := notifications[0]
	if first.File.Bucket != "ingest" || first.File.Key != "licenses/jan.csv" {
		t.Errorf("unexpected file: %+v", first.File)
	}

	if first.File.Size != 1024 || first.File.ETag != "abc123" {
		t.Errorf("unexpected size/etag: %+v", first.File)
	}

	if first.Enrichment != nil {
		t.Error("raw envelope must not carry enrichment data")
	}
}

func TestParseEnrichedEnvelope(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	body := []byte(`{
		"original_event": {
			"Records": [
				{"s3": {"bucket": {"name": "ingest"}, "object": {"key": "licenses/jan.csv", "size": 1024, "eTag": "abc123"}}}
			]
		},
		"enrichment_data": {
			"registered": true,
			"dataset_id": "licenses",
			"schema_version": "v2",
			"compute_target": "LAMBDA",
			"validation_status": "valid"
		}
	}`)

	notifications, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}

	if len(notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifications))
	}

	enr := notifications[0].Enrichment
	if enr == nil {
		t.Fatal("expected enrichment data")
	}

	if !enr.Registered || enr.DatasetID != "licenses" || enr.ComputeTarget != "LAMBDA" {
		t.Errorf("unexpected enrichment: %+v", enr)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if _, err := ParseEnvelope(nil); !errors.Is(err, ErrEmptyEnvelope) {
		t.Errorf("empty body: got %v", err)
	}

	if _, err := ParseEnvelope([]byte(`{"Records": []}`)); !errors.Is(err, ErrNoRecords) {
		t.Errorf("no records: got %v", err)
	}

	if _, err := ParseEnvelope([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
