package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLockHeld is returned when the user already has a request in flight.
var ErrLockHeld = errors.New("user lock held")

// SQLiteLockRepository implements LockRepository using SQLite.
// A lock is a row in user_locks; the primary key makes acquisition atomic.
type SQLiteLockRepository struct {
	db *sql.DB
}

// NewSQLiteLockRepository creates a new SQLite lock repository.
func NewSQLiteLockRepository(db *sql.DB) *SQLiteLockRepository {
	return &SQLiteLockRepository{db: db}
}

func (r *SQLiteLockRepository) Acquire(ctx context.Context, userID string, ttl time.Duration) error {
	now := time.Now().UTC()

	if err := r.tryInsert(ctx, userID, now); err == nil {
		return nil
	}

	// The lock exists. Reclaim it only if the holder is stale; a crashed
	// request must not block the user past the TTL.
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_locks WHERE user_id = ? AND acquired_at < ?`,
		userID, now.Add(-ttl).Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to reclaim stale lock: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrLockHeld
	}

	if err := r.tryInsert(ctx, userID, now); err != nil {
		return ErrLockHeld
	}
	return nil
}

func (r *SQLiteLockRepository) tryInsert(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_locks (user_id, acquired_at) VALUES (?, ?)`,
		userID, now.Format(time.RFC3339))
	return err
}

func (r *SQLiteLockRepository) Release(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM user_locks WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (r *SQLiteLockRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_locks WHERE acquired_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale locks: %w", err)
	}
	return res.RowsAffected()
}
