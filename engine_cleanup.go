package authcore

import (
	"context"
	"log"
	"time"
)

// CleanupLoginAttempts deletes attempt rows older than the configured
// retention age and returns the number removed.
func (e *Engine) CleanupLoginAttempts(ctx context.Context) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	return e.guard.Sweep(ctx, e.config.Retention.LoginAttemptAge)
}

// CleanupRefreshTokens deletes refresh rows that are both expired and past
// any reuse-detection value: a revoked row is kept until its natural
// expiry so replays of it still classify as reuse.
func (e *Engine) CleanupRefreshTokens(ctx context.Context) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	return e.store.DeleteDeadTokens(ctx, e.now())
}

// RunRetentionSweep blocks, running both cleanup passes at the configured
// interval until ctx is cancelled. Sweep failures are logged and the loop
// continues; the sweeps only ever delete dead rows, so a missed pass is
// caught up by the next one.
func (e *Engine) RunRetentionSweep(ctx context.Context) {
	if e == nil {
		return
	}
	interval := e.config.Retention.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.CleanupLoginAttempts(ctx); err != nil {
				log.Print("authcore: login attempt sweep failed")
			}
			if _, err := e.CleanupRefreshTokens(ctx); err != nil {
				log.Print("authcore: refresh token sweep failed")
			}
		}
	}
}
