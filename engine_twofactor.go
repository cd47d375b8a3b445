package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cbelmas/authcore/internal"
	"github.com/cbelmas/authcore/internal/metrics"
)

// BeginTwoFactorSetup moves the user from disabled to pending_setup: it
// generates a shared secret and one-time backup codes, stores the secret
// unconfirmed, and returns both together with the otpauth enrollment URI.
// The backup codes are persisted only as hashes and shown exactly once.
// Fails with ErrTwoFactorEnabled when 2FA is already on.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, userID int64) (*TwoFactorSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	codes, err := internal.NewBackupCodes(e.config.TwoFactor.BackupCodeCount, e.config.TwoFactor.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	hashes := make([][32]byte, len(codes))
	for i, code := range codes {
		hashes[i] = internal.HashCode(code)
	}
	if err := e.store.ReplaceBackupCodes(ctx, user.ID, hashes); err != nil {
		return nil, err
	}

	user.TwoFactorSecret = secretBase32
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	e.metricInc(metrics.TwoFactorSetup)
	e.emit(auditEventTwoFactorSetup, user.ID, user.Email, "", true, nil)

	return &TwoFactorSetup{
		Secret:      secretBase32,
		URI:         e.totp.ProvisionURI(secretBase32, user.Email),
		BackupCodes: codes,
	}, nil
}

// ConfirmTwoFactorSetup verifies a code against the pending secret and
// flips the enabled flag. Fails with ErrTwoFactorSetupNotStarted when no
// secret is pending and ErrTwoFactorInvalid when the code does not match
// within the skew window.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID int64, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrTwoFactorEnabled
	}
	if user.TwoFactorSecret == "" {
		return ErrTwoFactorSetupNotStarted
	}

	ok, err := e.totp.VerifyBase32(user.TwoFactorSecret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(metrics.TwoFactorFailure)
		return ErrTwoFactorInvalid
	}

	user.TwoFactorEnabled = true
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	e.metricInc(metrics.TwoFactorEnabled)
	e.emit(auditEventTwoFactorEnabled, user.ID, user.Email, "", true, nil)
	return nil
}

// DisableTwoFactor is the only reverse transition, and it requires
// re-authentication with the account password. OAuth-only accounts have
// no password and fail with ErrNoPasswordSet. Disabling clears the secret
// and discards the remaining backup codes.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID int64, password string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if user.PasswordHash == "" {
		return ErrNoPasswordSet
	}

	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidPassword
	}

	user.TwoFactorEnabled = false
	user.TwoFactorSecret = ""
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return err
	}
	if err := e.store.ReplaceBackupCodes(ctx, user.ID, nil); err != nil {
		return err
	}

	e.metricInc(metrics.TwoFactorDisabled)
	e.emit(auditEventTwoFactorDisabled, user.ID, user.Email, "", true, nil)
	return nil
}

// SendTwoFactorCode issues a fresh single-use email challenge code and
// dispatches it. Any pending code for the user is replaced.
func (e *Engine) SendTwoFactorCode(ctx context.Context, userID int64) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	code, err := e.challenges.Issue(ctx, user.ID)
	if err != nil {
		return err
	}

	if e.mailer != nil {
		if mailErr := e.mailer.SendTwoFactorCode(ctx, user.Email, code); mailErr != nil {
			log.Print("authcore: two-factor code mail dispatch failed")
		}
	}
	return nil
}

// VerifyTwoFactor is the per-request enforcement gate. Users without 2FA
// pass unconditionally. Enabled users with an empty code are rejected with
// ErrTwoFactorRequired; any method failure returns the uniform
// ErrTwoFactorInvalid so the caller cannot tell which method failed.
func (e *Engine) VerifyTwoFactor(ctx context.Context, userID int64, code string, method TwoFactorMethod) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return nil
	}
	if code == "" {
		return ErrTwoFactorRequired
	}

	switch method {
	case MethodTOTP:
		ok, verifyErr := e.totp.VerifyBase32(user.TwoFactorSecret, code, e.now())
		if verifyErr != nil || !ok {
			return e.failTwoFactor(user)
		}
	case MethodEmailCode:
		if consumeErr := e.challenges.Consume(ctx, user.ID, code); consumeErr != nil {
			if !errors.Is(consumeErr, errChallengeMismatch) {
				return consumeErr
			}
			return e.failTwoFactor(user)
		}
	case MethodBackupCode:
		consumed, consumeErr := e.store.ConsumeBackupCode(ctx, user.ID, internal.HashCode(code))
		if consumeErr != nil {
			return consumeErr
		}
		if !consumed {
			return e.failTwoFactor(user)
		}
	default:
		// The method set is closed; reaching this is a programming error in
		// the caller, not a verification failure.
		return fmt.Errorf("unknown two-factor method %d", method)
	}

	e.metricInc(metrics.TwoFactorSuccess)
	e.emit(auditEventTwoFactorVerify, user.ID, user.Email, "", true, nil)
	return nil
}

func (e *Engine) failTwoFactor(user *User) error {
	e.metricInc(metrics.TwoFactorFailure)
	e.emit(auditEventTwoFactorVerify, user.ID, user.Email, "", false, ErrTwoFactorInvalid)
	return ErrTwoFactorInvalid
}
