package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/cbelmas/authcore/internal/metrics"
)

// Refresh rotates a refresh token: the old token is revoked and a brand
// new pair is minted and persisted, as one atomic unit from the caller's
// perspective. Rotation is strictly single-use — a replayed token fails
// with ErrRefreshInvalid no matter why it is dead. A replay of an
// already-consumed token is a theft signal; with JWT.RevokeOnReuse set it
// revokes the user's whole token family.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		// A stored row for an unverifiable token is dead weight at best and
		// forged-lookup bait at worst; drop it eagerly.
		if revokeErr := e.store.RevokeRefreshToken(ctx, refreshToken); revokeErr != nil && !errors.Is(revokeErr, ErrRefreshInvalid) {
			log.Print("authcore: revoking undecodable refresh token failed")
		}
		e.metricInc(metrics.RefreshFailure)
		return nil, ErrRefreshInvalid
	}

	row, err := e.store.ConsumeRefreshToken(ctx, refreshToken, e.now())
	if err != nil {
		switch {
		case errors.Is(err, ErrRefreshReuse):
			e.metricInc(metrics.RefreshReuseDetected)
			e.emit(auditEventRefreshReuse, claims.UserID, "", "", false, err)
			if e.config.JWT.RevokeOnReuse {
				if _, revokeErr := e.store.RevokeAllForUser(ctx, claims.UserID); revokeErr != nil {
					log.Print("authcore: family revocation after refresh reuse failed")
				}
			}
			return nil, ErrRefreshInvalid
		case errors.Is(err, ErrRefreshInvalid):
			e.metricInc(metrics.RefreshFailure)
			return nil, ErrRefreshInvalid
		default:
			return nil, err
		}
	}

	user, err := e.store.UserByID(ctx, row.UserID)
	if err != nil || !user.Active {
		e.metricInc(metrics.RefreshFailure)
		e.emit(auditEventRefresh, row.UserID, "", "", false, ErrRefreshInvalid)
		return nil, ErrRefreshInvalid
	}

	access, refresh, err := e.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(metrics.RefreshSuccess)
	e.emit(auditEventRefresh, user.ID, user.Email, "", true, nil)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes the refresh token and blacklists the access token for its
// remaining lifetime. Both are best-effort on an already-dead pair: logging
// out twice is not an error.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	var userID int64

	if accessToken != "" {
		if claims, err := e.tokens.ParseAccess(accessToken); err == nil {
			userID = claims.UserID
			remaining := claims.ExpiresAt.Time.Sub(e.now())
			if err := e.registry.BlacklistAccessToken(ctx, accessToken, remaining); err != nil {
				return err
			}
			e.metricInc(metrics.AccessBlacklisted)
		}
	}

	if refreshToken != "" {
		if err := e.store.RevokeRefreshToken(ctx, refreshToken); err != nil && !errors.Is(err, ErrRefreshInvalid) {
			return err
		}
	}

	e.metricInc(metrics.Logout)
	e.emit(auditEventLogout, userID, "", "", true, nil)
	return nil
}

// LogoutAll revokes every live refresh token of the user and returns how
// many were revoked. Outstanding access tokens survive only until their
// short expiry; callers needing an immediate cut-off blacklist the current
// access token via Logout as well.
func (e *Engine) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	revoked, err := e.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	e.metricInc(metrics.LogoutAll)
	e.emit(auditEventLogoutAll, userID, "", "", true, nil)
	return revoked, nil
}
