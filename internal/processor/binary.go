package processor

import (
	"context"
	"fmt"

	"github.com/filepipe-io/filepipe/internal/reader"
)

// processBinary walks the file in sequential ranged chunks, handing each to
// the chunk hook and checkpointing after every chunk.
func (p *Processor) processBinary(ctx context.Context, loc reader.Location, pk, sk string, c *counts) error {
	return p.reader.ProcessInChunks(ctx, loc, p.cfg.ChunkSize, func(chunk []byte, info reader.ChunkInfo) error {
		if p.hooks.Chunk != nil {
			if err := p.hooks.Chunk(ctx, chunk, info); err != nil {
				return fmt.Errorf("chunk hook failed at chunk %d/%d: %w", info.Index+1, info.TotalChunks, err)
			}
		}

		c.bytes += info.Size
		c.chunks = info.Index + 1
		c.total = info.TotalChunks

		p.checkpoint(ctx, pk, sk, c, "chunks")

		return nil
	})
}
