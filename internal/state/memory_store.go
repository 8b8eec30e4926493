package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a mutex-guarded Store for tests and the dev loop.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*Record // pk -> sk -> record
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory state store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]map[string]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, rec *Record) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[rec.PK] == nil {
		s.records[rec.PK] = make(map[string]*Record)
	}

	stored := *rec
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = stored.StartedAt.Add(DefaultTTL)
	}

	s.records[rec.PK][rec.SK] = &stored

	return nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, pk, sk string, status Status, patch *Patch) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[pk][sk]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, pk, sk)
	}

	rec.Status = status

	if patch != nil {
		if patch.FileSize != nil {
			rec.FileSize = *patch.FileSize
		}

		if patch.RowCount != nil {
			rec.RowCount = *patch.RowCount
		}

		if patch.ChunksProcessed != nil {
			rec.ChunksProcessed = *patch.ChunksProcessed
		}

		if patch.TotalChunks != nil {
			rec.TotalChunks = *patch.TotalChunks
		}

		if patch.ErrorMessage != nil {
			rec.ErrorMessage = *patch.ErrorMessage
		}

		if patch.TaskSize != nil {
			rec.TaskSize = *patch.TaskSize
		}
	}

	switch {
	case status.IsTerminal() && rec.CompletedAt == nil:
		now := time.Now().UTC()
		rec.CompletedAt = &now
	case !status.IsTerminal():
		rec.CompletedAt = nil
	}

	return nil
}

func (s *InMemoryStore) GetLatest(_ context.Context, pk string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partition := s.records[pk]
	if len(partition) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, pk)
	}

	var latest *Record

	for _, rec := range partition {
		if latest == nil || rec.SK > latest.SK {
			latest = rec
		}
	}

	out := *latest

	return &out, nil
}

func (s *InMemoryStore) GetHistory(_ context.Context, pk string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partition := s.records[pk]

	records := make([]*Record, 0, len(partition))

	for _, rec := range partition {
		out := *rec
		records = append(records, &out)
	}

	// Newest first; the fixed-width sort keys order lexicographically.
	sort.Slice(records, func(i, j int) bool { return records[i].SK > records[j].SK })

	return records, nil
}
