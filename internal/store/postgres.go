package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samie105/broker-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Each user's aggregate is one row: the record as JSONB plus a version
// column. The compare-and-swap is a conditional UPDATE on the version, so
// concurrent writers to the same user serialize at the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	user_id    TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the ledger_records table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, rec *model.LedgerRecord) error {
	c := rec.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", c.UserID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_records (user_id, record, version, created_at, updated_at)
		 VALUES ($1, $2, 1, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		c.UserID, data, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, userID string) (*model.LedgerRecord, int64, error) {
	var data []byte
	var version int64

	err := s.pool.QueryRow(ctx,
		`SELECT record, version FROM ledger_records WHERE user_id = $1`, userID).
		Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read record %s: %w", userID, err)
	}

	var rec model.LedgerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, 0, fmt.Errorf("unmarshal record %s: %w", userID, err)
	}
	return &rec, version, nil
}

func (s *PostgresStore) WriteIfVersion(ctx context.Context, userID string, version int64, mutate MutateFn) (int64, error) {
	rec, current, err := s.Read(ctx, userID)
	if err != nil {
		return 0, err
	}
	// The caller's version is already stale; skip the round trip.
	if current != version {
		return 0, ErrConflict
	}

	if err := mutate(rec); err != nil {
		return 0, err
	}
	rec.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshal record %s: %w", userID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ledger_records
		 SET record = $3, version = version + 1, updated_at = $4
		 WHERE user_id = $1 AND version = $2`,
		userID, version, data, rec.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("write record %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		// Row exists (read above succeeded) but the version moved.
		return 0, ErrConflict
	}
	return version + 1, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, userID string) (*model.LedgerRecord, error) {
	rec, _, err := s.Read(ctx, userID)
	return rec, err
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]model.LedgerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM ledger_records ORDER BY created_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.LedgerRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec model.LedgerRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
