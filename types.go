package authcore

import (
	"context"
	"time"

	"github.com/cbelmas/authcore/rbac"
)

// Role is re-exported from the rbac package so store implementations and
// callers share one definition.
type Role = rbac.Role

// Permission is re-exported from the rbac package.
type Permission = rbac.Permission

// User is the durable identity record. PasswordHash is empty for
// OAuth-only accounts. RoleID of 0 means no role, which resolves to the
// empty permission set.
type User struct {
	ID                 int64
	Email              string
	PasswordHash       string
	FirstName          string
	LastName           string
	Active             bool
	Verified           bool
	VerificationToken  string
	VerificationExpiry time.Time
	ResetToken         string
	ResetExpiry        time.Time
	TwoFactorEnabled   bool
	TwoFactorSecret    string
	ExternalID         string
	LastLoginAt        time.Time
	RoleID             int64
	RoleName           string
	CreatedAt          time.Time
}

// RefreshToken is a single-use session credential. It is valid iff
// !Revoked && ExpiresAt > now. Rotation revokes the old row and inserts a
// new one; the revoke is conditional so two concurrent rotations of the
// same token cannot both succeed.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginAttempt is an immutable throttle/audit record. Attempts are only
// ever appended and bulk-deleted by the retention sweep.
type LoginAttempt struct {
	Email     string
	Origin    string
	UserAgent string
	Success   bool
	At        time.Time
}

// UserStore persists identity records. Implementations return
// ErrUserNotFound for unknown lookups and ErrEmailTaken on duplicate
// email creation.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id int64) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByExternalID(ctx context.Context, externalID string) (*User, error)
	UserByVerificationToken(ctx context.Context, token string) (*User, error)
	UserByResetToken(ctx context.Context, token string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	// DeleteUser permanently removes the account record and its backup
	// codes. Unknown ids fail with ErrUserNotFound.
	DeleteUser(ctx context.Context, id int64) error

	// Backup codes are stored as SHA-256 hashes; the plaintext never
	// reaches the store. ConsumeBackupCode deletes the matching hash and
	// reports whether one existed, so each code is usable exactly once.
	ReplaceBackupCodes(ctx context.Context, userID int64, hashes [][32]byte) error
	ConsumeBackupCode(ctx context.Context, userID int64, hash [32]byte) (bool, error)
}

// RefreshTokenStore is the refresh-token revocation ledger.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, t *RefreshToken) error
	// ConsumeRefreshToken atomically revokes a live token and returns it.
	// It fails with ErrRefreshReuse when the row exists but is already
	// revoked, and ErrRefreshInvalid when the row is missing or expired.
	// Exactly one of two concurrent calls on the same token succeeds.
	ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
	// DeleteDeadTokens removes revoked rows and rows expired before the
	// cutoff. Safe to run concurrently with live traffic.
	DeleteDeadTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// LoginAttemptStore persists throttle records and answers trailing-window
// aggregation queries.
type LoginAttemptStore interface {
	RecordLoginAttempt(ctx context.Context, a *LoginAttempt) error
	CountFailedByEmail(ctx context.Context, email string, since time.Time) (int, error)
	CountFailedByOrigin(ctx context.Context, origin string, since time.Time) (int, error)
	DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full durable-store contract the engine is built on. The
// engine never touches storage except through it.
type Store interface {
	UserStore
	RefreshTokenStore
	LoginAttemptStore
	rbac.Store
}

// Mailer delivers outbound mail. Calls are fire-and-forget from the
// engine's perspective: failures are logged and never fail the primary
// flow.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
	SendTwoFactorCode(ctx context.Context, email, code string) error
}

// Identity is a verified external identity assertion returned by an
// IdentityProvider.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

// IdentityProvider exchanges a provider access token for a verified
// external identity. The engine treats the result as opaque and applies
// the account-linking rule: match by external id, else by email, else
// create a new account.
type IdentityProvider interface {
	Exchange(ctx context.Context, providerToken string) (*Identity, error)
}

// AuthResult is returned by Register, Login, and LoginWithIdentity.
// TwoFactorRequired signals that protected actions will be gated until
// VerifyTwoFactor passes.
type AuthResult struct {
	User              *User
	AccessToken       string
	RefreshToken      string
	TwoFactorRequired bool
}

// TokenPair is returned by Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AccessIdentity is the verified claim set of an access token.
type AccessIdentity struct {
	UserID int64
	Email  string
	Role   string
}

// TwoFactorSetup is returned by BeginTwoFactorSetup. BackupCodes are shown
// once and stored only as hashes.
type TwoFactorSetup struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// TwoFactorMethod is the closed set of second-factor verification methods.
type TwoFactorMethod uint8

const (
	// MethodTOTP verifies a time-based code against the enrolled secret.
	MethodTOTP TwoFactorMethod = iota
	// MethodEmailCode verifies a single-use emailed challenge code.
	MethodEmailCode
	// MethodBackupCode consumes a one-time recovery code.
	MethodBackupCode
)

func (m TwoFactorMethod) String() string {
	switch m {
	case MethodTOTP:
		return "totp"
	case MethodEmailCode:
		return "email"
	case MethodBackupCode:
		return "backup"
	}
	return "unknown"
}
