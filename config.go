package authcore

import (
	"bytes"
	"errors"
	"time"

	"github.com/cbelmas/authcore/password"
)

// Config carries every tunable of the engine. Construct it with
// DefaultConfig and override fields before Build; the engine treats it as
// immutable afterwards.
type Config struct {
	JWT       JWTConfig
	Password  password.Config
	Lockout   LockoutConfig
	TOTP      TOTPConfig
	TwoFactor TwoFactorConfig
	Account   AccountConfig
	Retention RetentionConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// RedisPrefix namespaces every cache key (blacklist, 2FA challenges).
	RedisPrefix string
	// OpTimeout bounds each engine operation; collaborator calls past it
	// surface as retryable unavailability.
	OpTimeout time.Duration
}

// JWTConfig configures the token issuer. Access and refresh tokens are
// signed with independent secrets so compromise of one cannot forge the
// other.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	// RevokeOnReuse escalates a replayed refresh token into family-wide
	// revocation of every live token of that user.
	RevokeOnReuse bool
}

// LockoutConfig defines the two independent brute-force windows: one per
// email against credential stuffing, one per origin against distributed
// guessing.
type LockoutConfig struct {
	EmailThreshold  int
	EmailWindow     time.Duration
	OriginThreshold int
	OriginWindow    time.Duration
}

// TOTPConfig configures time-based one-time code verification.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
	// Skew is the tolerance in time steps on either side of now, absorbing
	// client clock drift.
	Skew int
}

// TwoFactorConfig configures the email-code challenge and backup codes.
type TwoFactorConfig struct {
	EmailCodeTTL     time.Duration
	EmailCodeLength  int
	BackupCodeCount  int
	BackupCodeLength int
}

// AccountConfig configures registration and account-recovery tokens.
type AccountConfig struct {
	DefaultRole     string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// RetentionConfig bounds how long append-only records are kept. The sweep
// is delete-only and does not affect lockout correctness, which inspects
// only the short trailing windows.
type RetentionConfig struct {
	LoginAttemptAge time.Duration
	SweepInterval   time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the recommended production preset. Signing secrets
// are intentionally absent and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authcore",
			Leeway:     30 * time.Second,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Lockout: LockoutConfig{
			EmailThreshold:  5,
			EmailWindow:     15 * time.Minute,
			OriginThreshold: 20,
			OriginWindow:    60 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:    "authcore",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      2,
		},
		TwoFactor: TwoFactorConfig{
			EmailCodeTTL:     5 * time.Minute,
			EmailCodeLength:  6,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
		},
		Account: AccountConfig{
			DefaultRole:     "user",
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
		Retention: RetentionConfig{
			LoginAttemptAge: 30 * 24 * time.Hour,
			SweepInterval:   time.Hour,
		},
		Audit:       AuditConfig{Enabled: true, BufferSize: 256},
		Metrics:     MetricsConfig{Enabled: true},
		RedisPrefix: "ac",
		OpTimeout:   10 * time.Second,
	}
}

func (c *Config) validate() error {
	if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
		return errors.New("jwt access and refresh secrets are required")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("jwt access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt TTLs must be positive")
	}
	if c.Lockout.EmailThreshold <= 0 || c.Lockout.OriginThreshold <= 0 {
		return errors.New("lockout thresholds must be positive")
	}
	if c.Lockout.EmailWindow <= 0 || c.Lockout.OriginWindow <= 0 {
		return errors.New("lockout windows must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("totp digits must be between 6 and 10")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 4 {
		return errors.New("totp skew must be between 0 and 4")
	}
	if c.TwoFactor.EmailCodeTTL <= 0 || c.TwoFactor.EmailCodeLength < 4 {
		return errors.New("invalid two-factor email code configuration")
	}
	if c.TwoFactor.BackupCodeCount <= 0 || c.TwoFactor.BackupCodeLength < 8 {
		return errors.New("invalid backup code configuration")
	}
	if c.Account.VerificationTTL <= 0 || c.Account.ResetTTL <= 0 {
		return errors.New("account token TTLs must be positive")
	}
	if c.OpTimeout <= 0 {
		return errors.New("operation timeout must be positive")
	}
	return nil
}
