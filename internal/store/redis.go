package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/samie105/broker-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for snapshot reads. Versioned reads and writes always go to the
// primary — caching those would defeat the compare-and-swap — and every
// committed write invalidates the user's cached snapshot.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Passthrough to primary (version-sensitive) ---

func (s *CachedStore) Create(ctx context.Context, rec *model.LedgerRecord) error {
	return s.primary.Create(ctx, rec)
}

func (s *CachedStore) Read(ctx context.Context, userID string) (*model.LedgerRecord, int64, error) {
	return s.primary.Read(ctx, userID)
}

func (s *CachedStore) WriteIfVersion(ctx context.Context, userID string, version int64, mutate MutateFn) (int64, error) {
	newVersion, err := s.primary.WriteIfVersion(ctx, userID, version, mutate)
	if err != nil {
		return 0, err
	}
	// Invalidate; next snapshot read re-populates.
	s.rdb.Del(ctx, recordKey(userID))
	return newVersion, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Snapshot(ctx context.Context, userID string) (*model.LedgerRecord, error) {
	data, err := s.rdb.Get(ctx, recordKey(userID)).Bytes()
	if err == nil {
		var rec model.LedgerRecord
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	// Cache miss: read from primary.
	rec, err := s.primary.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, recordKey(userID), data, s.ttl)
	}
	return rec, nil
}

// ListSnapshots is not cached; platform-wide aggregation always reads the
// primary so admin stats never lag behind commits.
func (s *CachedStore) ListSnapshots(ctx context.Context) ([]model.LedgerRecord, error) {
	return s.primary.ListSnapshots(ctx)
}

func recordKey(userID string) string { return fmt.Sprintf("ledger:%s", userID) }
