// Package postgres is a durable token store backed by the tokens table.
// Completion is a single conditional UPDATE ... RETURNING, so concurrent
// callers are arbitrated by row locking in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"warden/internal/tokens/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

const tokenColumns = `kind, code, user_id, created_at, expires_at, completed, completed_at`

type tokenRow struct {
	Kind        string       `db:"kind"`
	Code        string       `db:"code"`
	UserID      string       `db:"user_id"`
	CreatedAt   time.Time    `db:"created_at"`
	ExpiresAt   sql.NullTime `db:"expires_at"`
	Completed   bool         `db:"completed"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

func (r tokenRow) toModel() (*models.Token, error) {
	userID, err := id.ParseUserID(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("decode token user: %w", err)
	}
	t := &models.Token{
		Kind:      models.Kind(r.Kind),
		Code:      r.Code,
		UserID:    userID,
		CreatedAt: r.CreatedAt.UTC(),
		Completed: r.Completed,
	}
	if r.ExpiresAt.Valid {
		e := r.ExpiresAt.Time.UTC()
		t.ExpiresAt = &e
	}
	if r.CompletedAt.Valid {
		c := r.CompletedAt.Time.UTC()
		t.CompletedAt = &c
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

type PostgresTokenStore struct {
	db *sqlx.DB
}

// New wraps an open pgx-backed *sql.DB.
func New(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: sqlx.NewDb(db, "pgx")}
}

func (s *PostgresTokenStore) Create(ctx context.Context, token *models.Token) error {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES (:kind, :code, :user_id, :created_at, :expires_at, :completed, :completed_at)
		ON CONFLICT (kind, code) DO NOTHING
	`, tokenRow{
		Kind:        string(token.Kind),
		Code:        token.Code,
		UserID:      token.UserID.String(),
		CreatedAt:   token.CreatedAt,
		ExpiresAt:   nullTime(token.ExpiresAt),
		Completed:   token.Completed,
		CompletedAt: nullTime(token.CompletedAt),
	})
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("token code already issued: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresTokenStore) Find(ctx context.Context, kind models.Kind, code string) (*models.Token, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE kind = $1 AND code = $2
	`, string(kind), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	return row.toModel()
}

// Complete marks the token only while it is uncompleted and unexpired. When
// the update matches nothing the row is re-read to say why.
func (s *PostgresTokenStore) Complete(ctx context.Context, kind models.Kind, code string, now time.Time) (*models.Token, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE tokens
		SET completed = TRUE, completed_at = $3
		WHERE kind = $1 AND code = $2
		  AND NOT completed
		  AND (expires_at IS NULL OR expires_at >= $3)
		RETURNING `+tokenColumns, string(kind), code, now)
	if err == nil {
		return row.toModel()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("complete token: %w", err)
	}

	token, err := s.Find(ctx, kind, code)
	if err != nil {
		return nil, err
	}
	switch {
	case token.Completed:
		return token, fmt.Errorf("token already completed: %w", sentinel.ErrAlreadyUsed)
	case token.IsExpiredAt(now):
		return token, fmt.Errorf("token expired: %w", sentinel.ErrExpired)
	default:
		return nil, fmt.Errorf("token changed during completion: %w", sentinel.ErrInvalidState)
	}
}

func (s *PostgresTokenStore) DeleteByCode(ctx context.Context, kind models.Kind, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE kind = $1 AND code = $2`, string(kind), code)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresTokenStore) DeleteByUser(ctx context.Context, kind models.Kind, userID id.UserID) (int, error) {
	return s.deleteWhere(ctx, "revoke user tokens", `
		DELETE FROM tokens
		WHERE kind = $1 AND user_id = $2 AND NOT completed
	`, string(kind), userID.String())
}

func (s *PostgresTokenStore) HasCompleted(ctx context.Context, kind models.Kind, userID id.UserID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM tokens WHERE kind = $1 AND user_id = $2 AND completed
		)
	`, string(kind), userID.String())
	if err != nil {
		return false, fmt.Errorf("check completed tokens: %w", err)
	}
	return exists, nil
}

func (s *PostgresTokenStore) HasPending(ctx context.Context, kind models.Kind, userID id.UserID, now time.Time) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM tokens
			WHERE kind = $1 AND user_id = $2 AND NOT completed
			  AND (expires_at IS NULL OR expires_at >= $3)
		)
	`, string(kind), userID.String(), now)
	if err != nil {
		return false, fmt.Errorf("check pending tokens: %w", err)
	}
	return exists, nil
}

// DeleteExpired keeps completed activations; they are the activation record.
func (s *PostgresTokenStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteWhere(ctx, "delete expired tokens", `
		DELETE FROM tokens
		WHERE expires_at IS NOT NULL AND expires_at < $1
		  AND NOT (kind = 'activation' AND completed)
	`, cutoff)
}

func (s *PostgresTokenStore) deleteWhere(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}
