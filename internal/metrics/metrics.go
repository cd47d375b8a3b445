// Package metrics provides in-process atomic counters for engine outcomes.
package metrics

import "sync/atomic"

// ID identifies one counter.
type ID int

const (
	RegisterSuccess ID = iota
	RegisterConflict
	LoginSuccess
	LoginFailure
	LoginLocked
	RefreshSuccess
	RefreshFailure
	RefreshReuseDetected
	Logout
	LogoutAll
	PasswordChange
	PasswordResetRequest
	PasswordResetSuccess
	PasswordResetFailure
	EmailVerified
	TwoFactorSetup
	TwoFactorEnabled
	TwoFactorDisabled
	TwoFactorSuccess
	TwoFactorFailure
	AccessBlacklisted

	idCount
)

// Metrics holds one atomic counter per ID. A nil *Metrics is a no-op.
type Metrics struct {
	counters [idCount]atomic.Uint64
}

// New returns a Metrics when enabled, nil otherwise.
func New(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id ID) {
	if m == nil || id < 0 || id >= idCount {
		return
	}
	m.counters[id].Add(1)
}

// Get reads one counter.
func (m *Metrics) Get(id ID) uint64 {
	if m == nil || id < 0 || id >= idCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot deep-copies all counters.
func (m *Metrics) Snapshot() map[ID]uint64 {
	out := make(map[ID]uint64, idCount)
	if m == nil {
		return out
	}
	for id := ID(0); id < idCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}
