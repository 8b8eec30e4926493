package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements Store against a MinIO or S3-compatible endpoint.
type MinioStore struct {
	client *minio.Client
}

// Compile-time check that MinioStore implements Store.
var _ Store = (*MinioStore)(nil)

// NewMinioStore creates a Store from config.
func NewMinioStore(cfg *Config) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint, useSSL, err := cfg.host()
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &MinioStore{client: client}, nil
}

// Ping verifies connectivity by listing buckets.
func (s *MinioStore) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("object store ping failed: %w", err)
	}

	return nil
}

func (s *MinioStore) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, classifyError(err)
	}

	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         stat.Size,
		ETag:         stat.ETag,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

func (s *MinioStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyError(err)
	}

	// GetObject is lazy; surface not-found now instead of on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()

		return nil, classifyError(err)
	}

	return obj, nil
}

func (s *MinioStore) OpenRange(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, fmt.Errorf("invalid byte range [%d, %d): %w", offset, offset+length, err)
	}

	obj, err := s.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, classifyError(err)
	}

	if _, err := obj.Stat(); err != nil {
		obj.Close()

		return nil, classifyError(err)
	}

	return obj, nil
}

func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo

	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classifyError(obj.Err)
		}

		infos = append(infos, ObjectInfo{
			Bucket:       bucket,
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, `"`),
			LastModified: obj.LastModified,
		})
	}

	return infos, nil
}

// classifyError maps minio-go errors onto the package sentinels so callers
// can branch with errors.Is.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey":
			return fmt.Errorf("%w: %s", ErrObjectNotFound, resp.Key)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrBucketNotFound, resp.BucketName)
		}
	}

	return err
}
