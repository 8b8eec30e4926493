package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte // "bucket/key" -> body
	mtimes  map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		mtimes:  make(map[string]time.Time),
	}
}

// Put stores an object, overwriting any existing body.
func (s *MemoryStore) Put(bucket, key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := bucket + "/" + key
	s.objects[id] = append([]byte(nil), body...)
	s.mtimes[id] = time.Now().UTC()
}

// Delete removes an object if present.
func (s *MemoryStore) Delete(bucket, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := bucket + "/" + key
	delete(s.objects, id)
	delete(s.mtimes, id)
}

func (s *MemoryStore) Stat(_ context.Context, bucket, key string) (*ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := bucket + "/" + key

	body, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(body)),
		ETag:         fmt.Sprintf("%x", md5.Sum(body)),
		LastModified: s.mtimes[id],
	}, nil
}

func (s *MemoryStore) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}

	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *MemoryStore) OpenRange(_ context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}

	if offset >= int64(len(body)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	end := offset + length
	if end > int64(len(body)) {
		end = int64(len(body))
	}

	return io.NopCloser(bytes.NewReader(body[offset:end])), nil
}

func (s *MemoryStore) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []ObjectInfo

	for id, body := range s.objects {
		b, key, _ := strings.Cut(id, "/")
		if b != bucket || !strings.HasPrefix(key, prefix) {
			continue
		}

		infos = append(infos, ObjectInfo{
			Bucket:       bucket,
			Key:          key,
			Size:         int64(len(body)),
			ETag:         fmt.Sprintf("%x", md5.Sum(body)),
			LastModified: s.mtimes[id],
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	return infos, nil
}
