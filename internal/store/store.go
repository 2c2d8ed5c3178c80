// Package store defines the persistence interface for per-user ledger
// records. Implementations include PostgreSQL (source of truth), Redis
// (read-through snapshot cache), and in-memory (for testing).
//
// Concurrency discipline: every record carries a version that increases on
// each committed write. WriteIfVersion is a compare-and-swap — a write
// conditioned on a stale version never applies, and the caller re-reads and
// recomputes. The store never auto-merges.
package store

import (
	"context"
	"errors"

	"github.com/samie105/broker-engine/internal/model"
)

var (
	// ErrNotFound is returned when no ledger record exists for the user.
	ErrNotFound = errors.New("ledger record not found")

	// ErrConflict is returned by WriteIfVersion when the record's version
	// has moved since the caller's read.
	ErrConflict = errors.New("version conflict")

	// ErrExists is returned by Create when the user already has a record.
	ErrExists = errors.New("ledger record already exists")
)

// MutateFn receives a private copy of the record, applies the position
// update and balance delta, and returns an error to abort the write.
type MutateFn func(rec *model.LedgerRecord) error

// Store is the persistence interface for ledger records.
type Store interface {
	// Create persists a fresh record at version 1.
	Create(ctx context.Context, rec *model.LedgerRecord) error

	// Read returns a copy of the record and its current version.
	// Always served from the source of truth, never a cache.
	Read(ctx context.Context, userID string) (*model.LedgerRecord, int64, error)

	// WriteIfVersion applies mutate to a copy of the record and commits it
	// only if the stored version still equals version. On success it bumps
	// UpdatedAt and returns the new version; otherwise ErrConflict.
	WriteIfVersion(ctx context.Context, userID string, version int64, mutate MutateFn) (int64, error)

	// Snapshot returns a read-only copy of the record for dashboards and
	// aggregation. Implementations may serve it from a cache.
	Snapshot(ctx context.Context, userID string) (*model.LedgerRecord, error)

	// ListSnapshots returns read-only copies of all records, in stable
	// creation order, for platform-wide aggregation.
	ListSnapshots(ctx context.Context) ([]model.LedgerRecord, error)
}
