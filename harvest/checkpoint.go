package harvest

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/regalsync/errors"
)

// CheckpointStore persists the time of the last successful harvest per
// endpoint and set.
type CheckpointStore interface {
	Get(ctx context.Context, endpoint, set string) (time.Time, bool, error)
	Put(ctx context.Context, endpoint, set string, at time.Time) error
}

// SQLCheckpointStore keeps checkpoints in the harvest_checkpoints table
type SQLCheckpointStore struct {
	db *sql.DB
}

// NewSQLCheckpointStore creates a store on a migrated database
func NewSQLCheckpointStore(db *sql.DB) *SQLCheckpointStore {
	return &SQLCheckpointStore{db: db}
}

// Get returns the checkpoint, or ok=false when the set was never harvested
func (s *SQLCheckpointStore) Get(ctx context.Context, endpoint, set string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT harvested_at FROM harvest_checkpoints WHERE endpoint = ? AND set_spec = ?`,
		endpoint, set,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "failed to read checkpoint for set %q", set)
	}
	return at.UTC(), true, nil
}

// Put records at as the latest successful harvest
func (s *SQLCheckpointStore) Put(ctx context.Context, endpoint, set string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO harvest_checkpoints (endpoint, set_spec, harvested_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(endpoint, set_spec) DO UPDATE SET
			harvested_at = excluded.harvested_at,
			updated_at = CURRENT_TIMESTAMP`,
		endpoint, set, at.UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to store checkpoint for set %q", set)
	}
	return nil
}

// ReadOnly wraps store so harvests read checkpoints but never advance them.
// Dry runs use it.
func ReadOnly(store CheckpointStore) CheckpointStore {
	return readOnlyStore{store}
}

type readOnlyStore struct {
	CheckpointStore
}

func (readOnlyStore) Put(context.Context, string, string, time.Time) error { return nil }
