package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/cbelmas/authcore/internal"
	"github.com/cbelmas/authcore/internal/metrics"
)

// RequestPasswordReset issues a reset token and mails it. The response is
// identical whether or not the email exists, so the endpoint cannot be
// used to enumerate accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	email = normalizeEmail(email)
	e.metricInc(metrics.PasswordResetRequest)

	user, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emit(auditEventPasswordResetRequest, 0, email, "", true, nil)
			return nil
		}
		return err
	}

	token, err := internal.NewLookupToken()
	if err != nil {
		return err
	}
	user.ResetToken = token
	user.ResetExpiry = e.now().Add(e.config.Account.ResetTTL)
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	if e.mailer != nil {
		if mailErr := e.mailer.SendPasswordReset(ctx, email, token); mailErr != nil {
			log.Print("authcore: password reset mail dispatch failed")
		}
	}

	e.emit(auditEventPasswordResetRequest, user.ID, email, "", true, nil)
	return nil
}

// ResetPassword consumes a reset token, stores the new hash, and revokes
// every live session before returning success. Unknown or expired tokens
// fail with ErrResetInvalid.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.store.UserByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(metrics.PasswordResetFailure)
			return ErrResetInvalid
		}
		return err
	}
	if e.now().After(user.ResetExpiry) {
		e.metricInc(metrics.PasswordResetFailure)
		return ErrResetInvalid
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.ResetToken = ""
	user.ResetExpiry = zeroTime
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	if _, err := e.store.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	e.metricInc(metrics.PasswordResetSuccess)
	e.emit(auditEventPasswordReset, user.ID, user.Email, "", true, nil)
	return nil
}
