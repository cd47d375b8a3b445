package authcore

import (
	"io"

	internalaudit "github.com/cbelmas/authcore/internal/audit"
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded audit events, one per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Audit event types emitted by the engine.
const (
	auditEventRegister             = "account.register"
	auditEventEmailVerified        = "account.email_verified"
	auditEventPasswordChange       = "account.password_change"
	auditEventUserDeleted          = "account.delete"
	auditEventLogin                = "auth.login"
	auditEventLoginLocked          = "auth.login.locked"
	auditEventFederatedLogin       = "auth.login.federated"
	auditEventRefresh              = "auth.refresh"
	auditEventRefreshReuse         = "auth.refresh.reuse"
	auditEventLogout               = "auth.logout"
	auditEventLogoutAll            = "auth.logout_all"
	auditEventPasswordResetRequest = "auth.password_reset.request"
	auditEventPasswordReset        = "auth.password_reset.confirm"
	auditEventTwoFactorSetup       = "auth.2fa.setup"
	auditEventTwoFactorEnabled     = "auth.2fa.enabled"
	auditEventTwoFactorDisabled    = "auth.2fa.disabled"
	auditEventTwoFactorVerify      = "auth.2fa.verify"
)
