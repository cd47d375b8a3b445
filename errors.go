package authcore

import (
	"errors"

	"github.com/cbelmas/authcore/rbac"
)

var (
	// ErrInvalidCredentials is returned by Login for unknown email, wrong
	// password, and inactive account alike, so login failures cannot be
	// used as an account-enumeration oracle.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked means the email exceeded the failed-attempt window.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrOriginLocked means the origin address exceeded its failed-attempt window.
	ErrOriginLocked = errors.New("origin temporarily locked")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound indicates an unknown user id, email, or lookup token.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenInvalid covers malformed or badly signed access tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired indicates a well-formed access token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked indicates a blacklisted (logged-out) access token.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshInvalid covers every refresh rotation failure visible to the
	// caller: bad signature, unknown token, expired, revoked, or replayed.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned by stores when a refresh token exists but
	// was already consumed. The engine maps it to ErrRefreshInvalid for the
	// caller and treats it as a theft signal internally.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrInvalidPassword is returned by re-authentication checks
	// (change password, disable 2FA) when the current password is wrong.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrNoPasswordSet identifies OAuth-only accounts with no password hash.
	ErrNoPasswordSet = errors.New("account has no password set")
	// ErrResetInvalid means the password-reset token is unknown or expired.
	ErrResetInvalid = errors.New("invalid or expired reset token")
	// ErrVerificationInvalid means the email-verification token is unknown or expired.
	ErrVerificationInvalid = errors.New("invalid or expired verification token")

	// ErrTwoFactorEnabled is returned by BeginTwoFactorSetup when 2FA is already on.
	ErrTwoFactorEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorNotEnabled is returned by operations that require active 2FA.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrTwoFactorSetupNotStarted means ConfirmTwoFactorSetup ran with no pending secret.
	ErrTwoFactorSetupNotStarted = errors.New("two-factor setup not started")
	// ErrTwoFactorInvalid is the uniform failure for every verification
	// method, so callers cannot tell which method failed or why.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorRequired gates protected actions for 2FA-enabled users
	// until a code is presented.
	ErrTwoFactorRequired = errors.New("two-factor code required")

	// ErrPermissionDenied is the Forbidden outcome of a permission check.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStoreUnavailable wraps durable-store transport failures; retryable.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCacheUnavailable wraps cache transport failures; retryable.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrEngineNotReady is returned by calls on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Role and permission errors originate in the rbac package so store
// implementations can return them without importing the root package.
var (
	ErrRoleNotFound          = rbac.ErrRoleNotFound
	ErrPermissionNotFound    = rbac.ErrPermissionNotFound
	ErrPermissionAssigned    = rbac.ErrAlreadyAssigned
	ErrPermissionNotAssigned = rbac.ErrNotAssigned
	ErrRoleExists            = rbac.ErrRoleExists
	ErrPermissionExists      = rbac.ErrPermissionExists
	ErrRoleBuiltIn           = rbac.ErrRoleBuiltIn
)
