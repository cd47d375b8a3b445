package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/cbelmas/authcore/internal/metrics"
	"github.com/cbelmas/authcore/rbac"
)

// FederatedLoginInput carries a provider-issued token plus request
// metadata for the attempt ledger.
type FederatedLoginInput struct {
	ProviderToken string
	Origin        string
	UserAgent     string
}

// LoginWithIdentity exchanges a provider token for a verified external
// identity and signs the matching account in, applying the linking rule in
// order: existing account with the external id, existing account with the
// asserted email (linked in place), else a fresh passwordless account.
// Requires an IdentityProvider wired at build time.
func (e *Engine) LoginWithIdentity(ctx context.Context, input FederatedLoginInput) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.identity == nil {
		return nil, errors.New("no identity provider configured")
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	id, err := e.identity.Exchange(ctx, input.ProviderToken)
	if err != nil {
		e.metricInc(metrics.LoginFailure)
		e.emit(auditEventFederatedLogin, 0, "", input.Origin, false, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	email := normalizeEmail(id.Email)

	user, err := e.linkOrCreate(ctx, id, email)
	if err != nil {
		e.metricInc(metrics.LoginFailure)
		e.emit(auditEventFederatedLogin, 0, email, input.Origin, false, err)
		return nil, err
	}
	if !user.Active {
		e.metricInc(metrics.LoginFailure)
		e.emit(auditEventFederatedLogin, user.ID, email, input.Origin, false, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if err := e.guard.Record(ctx, user.Email, input.Origin, input.UserAgent, true); err != nil {
		return nil, err
	}
	if err := e.store.TouchLastLogin(ctx, user.ID, e.now()); err != nil {
		log.Print("authcore: last-login update failed")
	}

	access, refresh, err := e.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(metrics.LoginSuccess)
	e.emit(auditEventFederatedLogin, user.ID, user.Email, input.Origin, true, nil)

	return &AuthResult{
		User:              user,
		AccessToken:       access,
		RefreshToken:      refresh,
		TwoFactorRequired: user.TwoFactorEnabled,
	}, nil
}

func (e *Engine) linkOrCreate(ctx context.Context, id *Identity, email string) (*User, error) {
	user, err := e.store.UserByExternalID(ctx, id.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user, err = e.store.UserByEmail(ctx, email)
	if err == nil {
		// Link the provider subject to the existing password account. A
		// provider-verified email also settles our own verification state.
		user.ExternalID = id.Subject
		if id.EmailVerified {
			user.Verified = true
			user.VerificationToken = ""
			user.VerificationExpiry = zeroTime
		}
		if updateErr := e.store.UpdateUser(ctx, user); updateErr != nil {
			return nil, updateErr
		}
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user = &User{
		Email:      email,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		Active:     true,
		Verified:   id.EmailVerified,
		ExternalID: id.Subject,
		CreatedAt:  e.now(),
	}
	if role, roleErr := e.store.RoleByName(ctx, e.config.Account.DefaultRole); roleErr == nil {
		user.RoleID = role.ID
		user.RoleName = role.Name
	} else if !errors.Is(roleErr, rbac.ErrRoleNotFound) {
		return nil, roleErr
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
