// Package objectstore abstracts the bucket storage that files are ingested
// from. The production implementation talks to MinIO/S3; an in-memory store
// backs unit tests.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors for object store operations.
var (
	// ErrObjectNotFound indicates the requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound indicates the requested bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Store provides read access to bucket storage.
//
// All implementations must support ranged reads: the processor fetches large
// files chunk by chunk and the validator fetches only a bounded prefix.
type Store interface {
	// Stat returns metadata for an object, or ErrObjectNotFound.
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// Open returns a reader over the full object body. The caller closes it.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// OpenRange returns a reader over length bytes starting at offset. A
	// range extending past the end of the object returns the available
	// bytes rather than an error.
	OpenRange(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error)

	// List returns metadata for all objects under a prefix, recursively.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
