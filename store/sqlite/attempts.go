package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/cbelmas/authcore"
)

// RecordLoginAttempt appends one immutable attempt row.
func (s *Store) RecordLoginAttempt(ctx context.Context, a *authcore.LoginAttempt) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO login_attempts (email, origin, user_agent, success, at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.Email, a.Origin, a.UserAgent, a.Success, toMillis(a.At))
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// CountFailedByEmail counts failed attempts for the email since the given
// time.
func (s *Store) CountFailedByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	return s.countFailed(ctx, "email", email, since)
}

// CountFailedByOrigin counts failed attempts from the origin since the
// given time.
func (s *Store) CountFailedByOrigin(ctx context.Context, origin string, since time.Time) (int, error) {
	if origin == "" {
		return 0, nil
	}
	return s.countFailed(ctx, "origin", origin, since)
}

func (s *Store) countFailed(ctx context.Context, column, value string, since time.Time) (int, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE `+column+` = ? AND success = 0 AND at >= ?`,
		value, toMillis(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}
	return n, nil
}

// DeleteAttemptsBefore bulk-deletes attempt rows older than the cutoff.
func (s *Store) DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}
	return n, nil
}
