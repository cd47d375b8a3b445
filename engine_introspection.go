package authcore

import (
	"context"
	"errors"

	"github.com/cbelmas/authcore/jwt"
)

// VerifyAccess validates an access token and returns its claimed identity.
// The blacklist is consulted before signature verification so a revoked
// token is rejected even when it would otherwise still be valid. Failures
// map to ErrTokenRevoked, ErrTokenExpired, or ErrTokenInvalid.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*AccessIdentity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	revoked, err := e.registry.IsBlacklisted(ctx, token)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	return &AccessIdentity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// HasPermission reports whether the user's role carries the named
// permission. Users without a role have no permissions.
func (e *Engine) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	return e.rbac.HasPermission(ctx, userID, permission)
}

// RequirePermission is HasPermission with a hard failure: it returns
// ErrPermissionDenied when the permission is absent.
func (e *Engine) RequirePermission(ctx context.Context, userID int64, permission string) error {
	ok, err := e.HasPermission(ctx, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}
