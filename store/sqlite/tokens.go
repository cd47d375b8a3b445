package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cbelmas/authcore"
)

// CreateRefreshToken inserts a new refresh ledger row.
func (s *Store) CreateRefreshToken(ctx context.Context, t *authcore.RefreshToken) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token, revoked, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.UserID, t.Token, t.Revoked, toMillis(t.ExpiresAt), toMillis(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	t.ID = id
	return nil
}

// ConsumeRefreshToken revokes a live token and returns its row. The revoke
// is a conditional update keyed on the unrevoked, unexpired state, so when
// two rotations race on the same token exactly one sees a row change; the
// loser classifies the miss by re-reading the row.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (*authcore.RefreshToken, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1
		 WHERE token = ? AND revoked = 0 AND expires_at > ?`,
		token, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if n == 0 {
		return nil, s.classifyConsumeMiss(ctx, token, now)
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, token, revoked, expires_at, created_at
		 FROM refresh_tokens WHERE token = ?`, token)
	return scanRefreshToken(row)
}

func (s *Store) classifyConsumeMiss(ctx context.Context, token string, now time.Time) error {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT revoked, expires_at FROM refresh_tokens WHERE token = ?`, token)
	var revoked bool
	var expiresAt int64
	err := row.Scan(&revoked, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authcore.ErrRefreshInvalid
	}
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}
	if revoked {
		return authcore.ErrRefreshReuse
	}
	return authcore.ErrRefreshInvalid
}

func scanRefreshToken(row *sql.Row) (*authcore.RefreshToken, error) {
	var t authcore.RefreshToken
	var expiresAt, createdAt int64
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.Revoked, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrRefreshInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

// RevokeRefreshToken unconditionally revokes one token. An unknown token
// fails with authcore.ErrRefreshInvalid.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if n == 0 {
		return authcore.ErrRefreshInvalid
	}
	return nil
}

// RevokeAllForUser revokes every live token for the user and returns the
// count revoked.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return n, nil
}

// DeleteDeadTokens removes rows expired before the cutoff. Revoked rows
// are kept until natural expiry so replaying them still reads as reuse.
func (s *Store) DeleteDeadTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete dead tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete dead tokens: %w", err)
	}
	return n, nil
}
