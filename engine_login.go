package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/cbelmas/authcore/internal/metrics"
)

// LoginInput carries the login request.
type LoginInput struct {
	Email     string
	Password  string
	Origin    string
	UserAgent string
}

// Login authenticates an email/password pair. The failure reason is
// deliberately uniform: unknown email, wrong password, and inactive
// account all yield ErrInvalidCredentials. Lockout is checked first and
// failed attempts are recorded even while locked, so the lockout persists
// until the window slides.
func (e *Engine) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	email := normalizeEmail(input.Email)

	locked, err := e.guard.IsLocked(ctx, email)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, e.failLogin(ctx, email, input, metrics.LoginLocked, auditEventLoginLocked, ErrAccountLocked)
	}

	lockedByOrigin, err := e.guard.IsLockedByOrigin(ctx, input.Origin)
	if err != nil {
		return nil, err
	}
	if lockedByOrigin {
		return nil, e.failLogin(ctx, email, input, metrics.LoginLocked, auditEventLoginLocked, ErrOriginLocked)
	}

	user, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.failLogin(ctx, email, input, metrics.LoginFailure, auditEventLogin, ErrInvalidCredentials)
		}
		return nil, err
	}
	if !user.Active {
		return nil, e.failLogin(ctx, email, input, metrics.LoginFailure, auditEventLogin, ErrInvalidCredentials)
	}

	ok, err := e.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		// OAuth-only accounts (no stored hash) and corrupt hashes fail the
		// same uniform way, never with a distinct error.
		ok = false
	}
	if !ok {
		return nil, e.failLogin(ctx, email, input, metrics.LoginFailure, auditEventLogin, ErrInvalidCredentials)
	}

	if err := e.guard.Record(ctx, email, input.Origin, input.UserAgent, true); err != nil {
		return nil, err
	}
	if err := e.store.TouchLastLogin(ctx, user.ID, e.now()); err != nil {
		log.Print("authcore: last-login stamp failed")
	}

	access, refresh, err := e.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(metrics.LoginSuccess)
	e.emit(auditEventLogin, user.ID, email, input.Origin, true, nil)

	return &AuthResult{
		User:              user,
		AccessToken:       access,
		RefreshToken:      refresh,
		TwoFactorRequired: user.TwoFactorEnabled,
	}, nil
}

// failLogin records the failed attempt and returns the caller-facing
// error. Recording happens even for lockout failures.
func (e *Engine) failLogin(ctx context.Context, email string, input LoginInput, metric metrics.ID, event string, cause error) error {
	if err := e.guard.Record(ctx, email, input.Origin, input.UserAgent, false); err != nil {
		return err
	}
	e.metricInc(metric)
	e.emit(event, 0, email, input.Origin, false, cause)
	return cause
}
