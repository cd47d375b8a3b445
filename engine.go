package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/cbelmas/authcore/internal/audit"
	"github.com/cbelmas/authcore/internal/metrics"
	"github.com/cbelmas/authcore/jwt"
	"github.com/cbelmas/authcore/password"
	"github.com/cbelmas/authcore/rbac"
)

// Engine composes the credential store, verifier, brute-force guard, token
// issuer, revocation registry, RBAC resolver, and two-factor state machine
// into the register/login/refresh/logout/change-password flows. All
// dependencies are injected at construction; the engine holds no global
// state and no long-lived in-process locks.
type Engine struct {
	config   Config
	store    Store
	mailer   Mailer
	identity IdentityProvider

	guard      *Guard
	rbac       *rbac.Resolver
	registry   *RevocationRegistry
	challenges *challengeStore
	hasher     *password.Hasher
	totp       *totpManager
	tokens     *jwt.Manager
	audit      *internalaudit.Dispatcher
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Builder assembles an Engine. Zero-valued options fall back to
// DefaultConfig and real clocks.
type Builder struct {
	config    Config
	store     Store
	redis     redis.UniversalClient
	mailer    Mailer
	identity  IdentityProvider
	auditSink AuditSink
	clock     func() time.Time
}

// New starts a Builder with the default configuration preset.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the durable credential store. Required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRedis sets the expiring cache backing the revocation registry and
// the 2FA email challenges. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer sets the outbound mail collaborator. Optional; without it the
// verification, reset, and 2FA-code mails are not sent but the flows still
// succeed.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithIdentityProvider sets the federated identity collaborator used by
// LoginWithIdentity. Optional.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identity = p
	return b
}

// WithAuditSink sets the sink receiving audit events. Optional.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the engine clock. Tests use it to slide lockout and
// token windows without sleeping.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.store == nil {
		return nil, errors.New("store is required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if err := b.config.validate(); err != nil {
		return nil, err
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	hasher, err := password.New(b.config.Password)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  b.config.JWT.AccessSecret,
		RefreshSecret: b.config.JWT.RefreshSecret,
		AccessTTL:     b.config.JWT.AccessTTL,
		RefreshTTL:    b.config.JWT.RefreshTTL,
		Issuer:        b.config.JWT.Issuer,
		Leeway:        b.config.JWT.Leeway,
		TimeFunc:      now,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:     b.config,
		store:      b.store,
		mailer:     b.mailer,
		identity:   b.identity,
		guard:      NewGuard(b.store, b.config.Lockout, now),
		rbac:       rbac.NewResolver(b.store),
		registry:   NewRevocationRegistry(b.redis, b.config.RedisPrefix),
		challenges: newChallengeStore(b.redis, b.config.RedisPrefix, b.config.TwoFactor),
		hasher:     hasher,
		totp:       newTOTPManager(b.config.TOTP),
		tokens:     tokens,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    b.config.Audit.Enabled,
			BufferSize: b.config.Audit.BufferSize,
		}, b.auditSink),
		metrics: metrics.New(b.config.Metrics.Enabled),
		now:     now,
	}, nil
}

// Close drains the audit dispatcher. The engine is unusable afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Guard exposes the brute-force guard for request-layer pre-checks.
func (e *Engine) Guard() *Guard {
	return e.guard
}

// Permissions exposes the RBAC resolver for admin tooling.
func (e *Engine) Permissions() *rbac.Resolver {
	return e.rbac
}

// Registry exposes the revocation registry for request-gating checks.
func (e *Engine) Registry() *RevocationRegistry {
	return e.registry
}

// MetricsSnapshot deep-copies the engine counters.
func (e *Engine) MetricsSnapshot() map[metrics.ID]uint64 {
	if e == nil {
		return map[metrics.ID]uint64{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded due to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// opCtx bounds one engine operation so no collaborator call blocks
// indefinitely.
func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.OpTimeout)
}

func (e *Engine) metricInc(id metrics.ID) {
	e.metrics.Inc(id)
}

func (e *Engine) emit(eventType string, userID int64, email, origin string, success bool, opErr error) {
	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Origin:    origin,
		Success:   success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	e.audit.Emit(event)
}

// issuePair mints an access/refresh pair for the user and persists the
// refresh token in the revocation ledger.
func (e *Engine) issuePair(ctx context.Context, user *User) (string, string, error) {
	access, err := e.tokens.CreateAccess(user.ID, user.Email, user.RoleName)
	if err != nil {
		return "", "", err
	}

	refresh, _, expiresAt, err := e.tokens.CreateRefresh(user.ID)
	if err != nil {
		return "", "", err
	}

	row := &RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: expiresAt,
		CreatedAt: e.now(),
	}
	if err := e.store.CreateRefreshToken(ctx, row); err != nil {
		return "", "", err
	}

	return access, refresh, nil
}

var zeroTime time.Time

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
