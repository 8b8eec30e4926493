// Package reader provides bounded-memory access to remote objects: line
// streaming for row-oriented files and sequential ranged chunk fetches for
// large binaries. No concurrency; chunks are fetched strictly in order so a
// failure leaves a well-defined prefix processed.
package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/filepipe-io/filepipe/internal/objectstore"
)

// ErrInvalidChunkSize indicates a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Location identifies one object to read.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// ChunkInfo describes one chunk within a chunked read.
type ChunkInfo struct {
	// Index is zero-based.
	Index int

	// TotalChunks is ceil(objectSize / chunkSize).
	TotalChunks int

	// StartByte is inclusive, EndByte exclusive.
	StartByte int64
	EndByte   int64

	// Size is EndByte - StartByte. Only the last chunk may be smaller
	// than the requested chunk size.
	Size int64
}

// LineFunc receives one line (without the trailing newline) and its
// one-based line number. Returning an error aborts the stream.
type LineFunc func(line string, lineNum int64) error

// ChunkFunc receives one chunk body and its description. Returning an error
// aborts the chunked read; no further chunks are fetched.
type ChunkFunc func(chunk []byte, info ChunkInfo) error

// Reader reads remote objects through an objectstore.Store.
type Reader struct {
	store objectstore.Store
}

// New creates a Reader.
func New(store objectstore.Store) *Reader {
	return &Reader{store: store}
}

// Info returns object metadata.
func (r *Reader) Info(ctx context.Context, loc Location) (*objectstore.ObjectInfo, error) {
	info, err := r.store.Stat(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", loc, err)
	}

	return info, nil
}

// StreamBody returns a reader over the full object body. The caller closes it.
func (r *Reader) StreamBody(ctx context.Context, loc Location) (io.ReadCloser, error) {
	body, err := r.store.Open(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}

	return body, nil
}

// StreamLines reads the object line by line, invoking fn for each line. The
// body is streamed; only one buffered line is held in memory at a time.
func (r *Reader) StreamLines(ctx context.Context, loc Location, fn LineFunc) error {
	body, err := r.store.Open(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return fmt.Errorf("open %s: %w", loc, err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var lineNum int64

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		lineNum++

		if err := fn(scanner.Text(), lineNum); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream %s at line %d: %w", loc, lineNum, err)
	}

	return nil
}

// maxLineBytes bounds a single line; anything longer fails the stream rather
// than exhausting memory.
const maxLineBytes = 16 * 1024 * 1024

// ProcessInChunks fetches the object in ceil(size/chunkSize) sequential
// ranged reads covering [0, size) contiguously, invoking onChunk for each.
// The last chunk is truncated to the remaining bytes. Any fetch or callback
// error aborts the whole call.
func (r *Reader) ProcessInChunks(ctx context.Context, loc Location, chunkSize int64, onChunk ChunkFunc) error {
	if chunkSize <= 0 {
		return ErrInvalidChunkSize
	}

	info, err := r.Info(ctx, loc)
	if err != nil {
		return err
	}

	if info.Size == 0 {
		return nil
	}

	totalChunks := int((info.Size + chunkSize - 1) / chunkSize)

	for i := 0; i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := int64(i) * chunkSize

		end := start + chunkSize
		if end > info.Size {
			end = info.Size
		}

		chunk, err := r.fetchRange(ctx, loc, start, end-start)
		if err != nil {
			return fmt.Errorf("fetch chunk %d/%d of %s: %w", i+1, totalChunks, loc, err)
		}

		if err := onChunk(chunk, ChunkInfo{
			Index:       i,
			TotalChunks: totalChunks,
			StartByte:   start,
			EndByte:     end,
			Size:        end - start,
		}); err != nil {
			return err
		}
	}

	return nil
}

// ReadSample fetches up to n bytes from the start of the object.
func (r *Reader) ReadSample(ctx context.Context, loc Location, n int64) ([]byte, error) {
	return r.fetchRange(ctx, loc, 0, n)
}

func (r *Reader) fetchRange(ctx context.Context, loc Location, offset, length int64) ([]byte, error) {
	body, err := r.store.OpenRange(ctx, loc.Bucket, loc.Key, offset, length)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	return data, nil
}
