// Package postgres is a durable throttle store. Attempts are kept as a
// bigint[] of unix microseconds per key; read-modify-write runs under a
// transaction-scoped advisory lock on the key.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"

	"warden/internal/throttle/models"
	txcontext "warden/pkg/platform/tx"
)

// PostgresThrottleStore implements the throttle service Store.
type PostgresThrottleStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresThrottleStore {
	return &PostgresThrottleStore{db: db}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresThrottleStore) Get(ctx context.Context, key string) (*models.Record, error) {
	return get(ctx, s.db, key)
}

func get(ctx context.Context, q queryer, key string) (*models.Record, error) {
	var (
		attempts    pq.Int64Array
		lockedUntil sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT attempts, locked_until
		FROM throttle_records
		WHERE key = $1
	`, key).Scan(&attempts, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get throttle record: %w", err)
	}

	rec := &models.Record{Key: key}
	for _, micros := range attempts {
		rec.Attempts = append(rec.Attempts, time.UnixMicro(micros).UTC())
	}
	if lockedUntil.Valid {
		u := lockedUntil.Time.UTC()
		rec.LockedUntil = &u
	}
	return rec, nil
}

// RecordAttempt appends and prunes inside one transaction holding the key's
// advisory lock, so concurrent writers on the same key serialize.
func (s *PostgresThrottleStore) RecordAttempt(ctx context.Context, key string, at time.Time, interval time.Duration) (*models.Record, error) {
	var rec *models.Record
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock throttle key: %w", err)
		}

		current, err := get(ctx, tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			current = &models.Record{Key: key}
		}
		current.Attempts = append(current.Attempts, at.UTC())
		slices.SortFunc(current.Attempts, func(a, b time.Time) int { return a.Compare(b) })
		current.Prune(at.Add(-interval))

		micros := make(pq.Int64Array, len(current.Attempts))
		for i, a := range current.Attempts {
			micros[i] = a.UnixMicro()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO throttle_records (key, attempts, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				attempts = EXCLUDED.attempts,
				updated_at = EXCLUDED.updated_at
		`, key, micros, at)
		if err != nil {
			return fmt.Errorf("upsert throttle record: %w", err)
		}
		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ExtendLock is a single conditional upsert; GREATEST keeps the later lock.
func (s *PostgresThrottleStore) ExtendLock(ctx context.Context, key string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO throttle_records (key, attempts, locked_until, updated_at)
		VALUES ($1, '{}', $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			locked_until = GREATEST(COALESCE(throttle_records.locked_until, EXCLUDED.locked_until), EXCLUDED.locked_until)
	`, key, until)
	if err != nil {
		return fmt.Errorf("extend throttle lock: %w", err)
	}
	return nil
}

func (s *PostgresThrottleStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM throttle_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("clear throttle record: %w", err)
	}
	return nil
}

// DeleteStale removes records not written since cutoff whose lock, if any,
// has also passed.
func (s *PostgresThrottleStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM throttle_records
		WHERE updated_at <= $1
		  AND (locked_until IS NULL OR locked_until <= $1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale throttle records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted throttle records: %w", err)
	}
	return int(n), nil
}
