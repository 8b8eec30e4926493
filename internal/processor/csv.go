package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/filepipe-io/filepipe/internal/reader"
	"github.com/filepipe-io/filepipe/internal/validation"
)

// processCSV streams the file line by line, zipping each row against the
// header into a record. Records flow to the batch hook in batches of
// cfg.BatchSize; progress checkpoints every cfg.CheckpointRows rows.
func (p *Processor) processCSV(ctx context.Context, loc reader.Location, pk, sk string, c *counts) error {
	var (
		header []string
		batch  []map[string]string
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		if p.hooks.Batch != nil {
			if err := p.hooks.Batch(ctx, batch); err != nil {
				return fmt.Errorf("batch hook failed at row %d: %w", c.rows, err)
			}
		}

		batch = batch[:0]

		return nil
	}

	err := p.reader.StreamLines(ctx, loc, func(line string, lineNum int64) error {
		c.bytes += int64(len(line)) + 1

		if lineNum == 1 {
			header = validation.SplitCSVLine(line)

			return nil
		}

		// Blank lines are not rows.
		if strings.TrimSpace(line) == "" {
			return nil
		}

		fields := validation.SplitCSVLine(line)

		record := make(map[string]string, len(header))

		for i, name := range header {
			if i < len(fields) {
				record[name] = fields[i]
			} else {
				record[name] = ""
			}
		}

		batch = append(batch, record)
		c.rows++

		if len(batch) >= p.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		if c.rows%p.cfg.CheckpointRows == 0 {
			p.checkpoint(ctx, pk, sk, c, "rows")
		}

		return nil
	})
	if err != nil {
		return err
	}

	return flush()
}
