package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/filepipe-io/filepipe/internal/reader"
)

// ErrJSONTooLarge indicates the file exceeds the JSON buffering ceiling.
var ErrJSONTooLarge = errors.New("json file exceeds buffering limit")

// processJSON buffers the whole body and decodes it as an array of records,
// a single record, or JSON-Lines. The full-buffer approach bounds the JSON
// path at cfg.MaxJSONBytes; files beyond that fail rather than thrash.
func (p *Processor) processJSON(ctx context.Context, loc reader.Location, pk, sk string, size int64, c *counts) error {
	if size > p.cfg.MaxJSONBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrJSONTooLarge, size, p.cfg.MaxJSONBytes)
	}

	body, err := p.readAll(ctx, loc)
	if err != nil {
		return err
	}

	c.bytes = int64(len(body))

	records, err := decodeJSONRecords(body)
	if err != nil {
		return err
	}

	var batch []map[string]string

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		if p.hooks.Batch != nil {
			if err := p.hooks.Batch(ctx, batch); err != nil {
				return fmt.Errorf("batch hook failed at record %d: %w", c.rows, err)
			}
		}

		batch = batch[:0]

		return nil
	}

	for _, record := range records {
		batch = append(batch, flattenRecord(record))
		c.rows++

		if len(batch) >= p.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		if c.rows%p.cfg.CheckpointRows == 0 {
			p.checkpoint(ctx, pk, sk, c, "rows")
		}
	}

	return flush()
}

func (p *Processor) readAll(ctx context.Context, loc reader.Location) ([]byte, error) {
	body, err := p.reader.StreamBody(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc, err)
	}

	return data, nil
}

// decodeJSONRecords accepts an array of objects, a single object, or
// JSON-Lines. In the JSON-Lines path, lines that fail to decode are skipped:
// one bad line must not discard the rest of the file.
func decodeJSONRecords(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(trimmed), &records); err == nil {
		return records, nil
	}

	var single map[string]any
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil {
		return []map[string]any{single}, nil
	}

	var (
		out     []map[string]any
		decoded bool
	)

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}

		decoded = true

		out = append(out, record)
	}

	if !decoded {
		return nil, errors.New("body is not a JSON array, object, or JSON-Lines document")
	}

	return out, nil
}

// flattenRecord renders a decoded JSON record with string values, matching
// the CSV record shape so one batch hook serves both formats.
func flattenRecord(record map[string]any) map[string]string {
	out := make(map[string]string, len(record))

	for k, v := range record {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprintf("%v", val)

				continue
			}

			out[k] = string(encoded)
		}
	}

	return out
}
