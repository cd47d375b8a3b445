package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/cbelmas/authcore/internal"
	"github.com/cbelmas/authcore/internal/metrics"
	"github.com/cbelmas/authcore/rbac"
)

// RegisterInput carries the registration request. Origin and UserAgent
// feed the login-attempt ledger.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Origin    string
	UserAgent string
}

// Register creates a password-based account with the default role, issues
// an initial token pair, and dispatches a verification mail. A duplicate
// email fails with ErrEmailTaken.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	email := normalizeEmail(input.Email)

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	verificationToken, err := internal.NewLookupToken()
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:              email,
		PasswordHash:       hash,
		FirstName:          input.FirstName,
		LastName:           input.LastName,
		Active:             true,
		VerificationToken:  verificationToken,
		VerificationExpiry: e.now().Add(e.config.Account.VerificationTTL),
		CreatedAt:          e.now(),
	}

	if role, roleErr := e.store.RoleByName(ctx, e.config.Account.DefaultRole); roleErr == nil {
		user.RoleID = role.ID
		user.RoleName = role.Name
	} else if !errors.Is(roleErr, rbac.ErrRoleNotFound) {
		return nil, roleErr
	}

	if err := e.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			e.metricInc(metrics.RegisterConflict)
		}
		e.emit(auditEventRegister, 0, email, input.Origin, false, err)
		return nil, err
	}

	if e.mailer != nil {
		if mailErr := e.mailer.SendVerification(ctx, email, verificationToken); mailErr != nil {
			log.Print("authcore: verification mail dispatch failed")
		}
	}

	if err := e.guard.Record(ctx, email, input.Origin, input.UserAgent, true); err != nil {
		return nil, err
	}

	access, refresh, err := e.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(metrics.RegisterSuccess)
	e.emit(auditEventRegister, user.ID, email, input.Origin, true, nil)

	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyEmail flips the verified flag for the account holding the token
// and clears the token. Unknown or expired tokens fail with
// ErrVerificationInvalid.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrVerificationInvalid
		}
		return err
	}
	if e.now().After(user.VerificationExpiry) {
		return ErrVerificationInvalid
	}

	user.Verified = true
	user.VerificationToken = ""
	user.VerificationExpiry = zeroTime
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	e.metricInc(metrics.EmailVerified)
	e.emit(auditEventEmailVerified, user.ID, user.Email, "", true, nil)
	return nil
}

// ChangePassword re-authenticates with the current password, stores the
// new hash, and revokes every live session of the user before returning
// success. OAuth-only accounts fail with ErrNoPasswordSet.
func (e *Engine) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == "" {
		return ErrNoPasswordSet
	}

	ok, err := e.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emit(auditEventPasswordChange, user.ID, user.Email, "", false, ErrInvalidPassword)
		return ErrInvalidPassword
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	// Trust in existing sessions ends with the old password.
	if _, err := e.store.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	e.metricInc(metrics.PasswordChange)
	e.emit(auditEventPasswordChange, user.ID, user.Email, "", true, nil)
	return nil
}

// DeleteUser permanently removes an account, revoking every live refresh
// token first so no session survives the record. Authorization (admin
// permission, not deleting yourself) belongs to the caller. Access tokens
// already issued stay valid until expiry unless individually blacklisted.
func (e *Engine) DeleteUser(ctx context.Context, userID int64) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}

	if _, err := e.store.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := e.store.DeleteUser(ctx, userID); err != nil {
		return err
	}

	e.emit(auditEventUserDeleted, userID, user.Email, "", true, nil)
	return nil
}
