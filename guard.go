package authcore

import (
	"context"
	"fmt"
	"time"
)

// Guard is the brute-force defense. It counts failed login attempts over
// two independent trailing windows: per email against credential stuffing
// of one account, and per origin against distributed guessing from one
// address. Lockout is advisory (checked before credential verification)
// and retroactive: failed attempts are recorded even while locked, so the
// lockout persists until the window slides.
type Guard struct {
	store  LoginAttemptStore
	config LockoutConfig
	now    func() time.Time
}

// NewGuard creates a guard over the given attempt store. A nil clock
// defaults to time.Now.
func NewGuard(store LoginAttemptStore, cfg LockoutConfig, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, config: cfg, now: now}
}

// Record appends one attempt. Append-only; never fails a login on its own
// beyond store unavailability.
func (g *Guard) Record(ctx context.Context, email, origin, userAgent string, success bool) error {
	attempt := &LoginAttempt{
		Email:     email,
		Origin:    origin,
		UserAgent: userAgent,
		Success:   success,
		At:        g.now(),
	}
	if err := g.store.RecordLoginAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsLocked reports whether the email has reached its failure threshold
// within the trailing window.
func (g *Guard) IsLocked(ctx context.Context, email string) (bool, error) {
	since := g.now().Add(-g.config.EmailWindow)
	count, err := g.store.CountFailedByEmail(ctx, email, since)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count >= g.config.EmailThreshold, nil
}

// IsLockedByOrigin reports whether the origin address has reached its
// failure threshold within the trailing window.
func (g *Guard) IsLockedByOrigin(ctx context.Context, origin string) (bool, error) {
	since := g.now().Add(-g.config.OriginWindow)
	count, err := g.store.CountFailedByOrigin(ctx, origin, since)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count >= g.config.OriginThreshold, nil
}

// Sweep deletes attempts older than the retention age. Lockout only
// inspects the short trailing windows, so retention never affects it.
func (g *Guard) Sweep(ctx context.Context, age time.Duration) (int64, error) {
	deleted, err := g.store.DeleteAttemptsBefore(ctx, g.now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return deleted, nil
}
