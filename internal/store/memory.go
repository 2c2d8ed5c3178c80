package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samie105/broker-engine/internal/model"
)

type versionedRecord struct {
	rec     *model.LedgerRecord
	version int64
}

// MemoryStore implements Store with an in-memory map. Used for testing and
// development. The compare-and-swap is serialized under a single mutex, so
// two mutate callbacks never interleave on the same user.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*versionedRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*versionedRecord),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *model.LedgerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.UserID]; ok {
		return ErrExists
	}

	// Store a copy to avoid external mutation.
	c := rec.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	s.records[rec.UserID] = &versionedRecord{rec: c, version: 1}
	return nil
}

func (s *MemoryStore) Read(_ context.Context, userID string) (*model.LedgerRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vr, ok := s.records[userID]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return vr.rec.Clone(), vr.version, nil
}

func (s *MemoryStore) WriteIfVersion(_ context.Context, userID string, version int64, mutate MutateFn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vr, ok := s.records[userID]
	if !ok {
		return 0, ErrNotFound
	}
	if vr.version != version {
		return 0, ErrConflict
	}

	// Mutate a copy; the stored record is untouched if mutate fails.
	updated := vr.rec.Clone()
	if err := mutate(updated); err != nil {
		return 0, err
	}
	updated.UpdatedAt = time.Now().UTC()

	vr.rec = updated
	vr.version++
	return vr.version, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, userID string) (*model.LedgerRecord, error) {
	rec, _, err := s.Read(ctx, userID)
	return rec, err
}

func (s *MemoryStore) ListSnapshots(_ context.Context) ([]model.LedgerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.LedgerRecord, 0, len(s.records))
	for _, vr := range s.records {
		out = append(out, *vr.rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
