package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cbelmas/authcore"
)

const userColumns = `u.id, u.email, u.password_hash, u.first_name, u.last_name,
  u.active, u.verified, u.verification_token, u.verification_expiry,
  u.reset_token, u.reset_expiry, u.two_factor_enabled, u.two_factor_secret,
  u.external_id, u.last_login_at, u.role_id, COALESCE(r.name, ''), u.created_at`

const userFrom = ` FROM users u LEFT JOIN roles r ON r.id = u.role_id `

// CreateUser inserts a new user and backfills its assigned id. A duplicate
// email fails with authcore.ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, u *authcore.User) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (
		   email, password_hash, first_name, last_name, active, verified,
		   verification_token, verification_expiry, reset_token, reset_expiry,
		   two_factor_enabled, two_factor_secret, external_id, last_login_at,
		   role_id, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Active, u.Verified,
		u.VerificationToken, toMillis(u.VerificationExpiry),
		u.ResetToken, toMillis(u.ResetExpiry),
		u.TwoFactorEnabled, u.TwoFactorSecret, u.ExternalID,
		toMillis(u.LastLoginAt), u.RoleID, toMillis(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	u.ID = id
	return nil
}

// UserByID loads one user by primary key.
func (s *Store) UserByID(ctx context.Context, id int64) (*authcore.User, error) {
	return s.userBy(ctx, "u.id = ?", id)
}

// UserByEmail loads one user by unique email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return s.userBy(ctx, "u.email = ?", email)
}

// UserByExternalID loads the user linked to an identity-provider subject.
func (s *Store) UserByExternalID(ctx context.Context, externalID string) (*authcore.User, error) {
	if externalID == "" {
		return nil, authcore.ErrUserNotFound
	}
	return s.userBy(ctx, "u.external_id = ?", externalID)
}

// UserByVerificationToken loads the user holding a pending email
// verification token.
func (s *Store) UserByVerificationToken(ctx context.Context, token string) (*authcore.User, error) {
	if token == "" {
		return nil, authcore.ErrUserNotFound
	}
	return s.userBy(ctx, "u.verification_token = ?", token)
}

// UserByResetToken loads the user holding a pending password reset token.
func (s *Store) UserByResetToken(ctx context.Context, token string) (*authcore.User, error) {
	if token == "" {
		return nil, authcore.ErrUserNotFound
	}
	return s.userBy(ctx, "u.reset_token = ?", token)
}

func (s *Store) userBy(ctx context.Context, where string, arg any) (*authcore.User, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+userColumns+userFrom+"WHERE "+where, arg)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*authcore.User, error) {
	var u authcore.User
	var verificationExpiry, resetExpiry, lastLoginAt, createdAt int64
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Active, &u.Verified, &u.VerificationToken, &verificationExpiry,
		&u.ResetToken, &resetExpiry, &u.TwoFactorEnabled, &u.TwoFactorSecret,
		&u.ExternalID, &lastLoginAt, &u.RoleID, &u.RoleName, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.VerificationExpiry = fromMillis(verificationExpiry)
	u.ResetExpiry = fromMillis(resetExpiry)
	u.LastLoginAt = fromMillis(lastLoginAt)
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// UpdateUser writes back every mutable user column.
func (s *Store) UpdateUser(ctx context.Context, u *authcore.User) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET
		   email = ?, password_hash = ?, first_name = ?, last_name = ?,
		   active = ?, verified = ?, verification_token = ?, verification_expiry = ?,
		   reset_token = ?, reset_expiry = ?, two_factor_enabled = ?,
		   two_factor_secret = ?, external_id = ?, role_id = ?
		 WHERE id = ?`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.Active, u.Verified, u.VerificationToken, toMillis(u.VerificationExpiry),
		u.ResetToken, toMillis(u.ResetExpiry), u.TwoFactorEnabled,
		u.TwoFactorSecret, u.ExternalID, u.RoleID,
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

// TouchLastLogin stamps the last successful login time without racing
// other user updates.
func (s *Store) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// ReplaceBackupCodes swaps the user's full backup-code set in one
// transaction. A nil or empty set clears all codes.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID int64, hashes [][32]byte) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace backup codes: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("replace backup codes: %w", err)
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, code_hash) VALUES (?, ?)`,
			userID, h[:]); err != nil {
			return fmt.Errorf("replace backup codes: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace backup codes: %w", err)
	}
	return nil
}

// ConsumeBackupCode deletes the matching hash and reports whether it
// existed. The delete makes each code single-use even under concurrent
// verification attempts.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID int64, hash [32]byte) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ? AND code_hash = ?`,
		userID, hash[:])
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return n > 0, nil
}

// DeleteUser removes the account row. Backup codes cascade through the
// foreign key; refresh tokens are revoked by the engine beforehand and
// reaped by the retention sweep.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
