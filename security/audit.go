package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/internal/util"
)

// Auditor handles security event logging with PII protection. User
// identifiers are hashed before they reach the log stream.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	metrics *instrumentation.Metrics
}

// SetMetrics attaches metric recording: every audit event bumps the audit
// counter, and the reuse/replay event types their dedicated counters.
func (a *Auditor) SetMetrics(m *instrumentation.Metrics) {
	a.metrics = m
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()
	a.metrics.RecordAuditEvent(context.Background(), event.Type)

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs token issuance with the grant that produced it.
func (a *Auditor) LogTokenIssued(userID, clientID, grantType, scope string) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"grant_type": grantType,
			"scope":      scope,
		},
	})
}

// LogTokenRefreshed logs a refresh grant, noting whether the handle rotated.
func (a *Auditor) LogTokenRefreshed(userID, clientID string, rotated bool) {
	a.LogEvent(Event{
		Type:     EventTokenRefreshed,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogTokenRevoked logs when a token is revoked
func (a *Auditor) LogTokenRevoked(userID, clientID, tokenType string) {
	a.LogEvent(Event{
		Type:     EventTokenRevoked,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"token_type": tokenType,
		},
	})
}

// LogCodeReuse logs a replayed authorization code and the size of the
// cascade revocation that followed.
func (a *Auditor) LogCodeReuse(userID, clientID string, revokedTokens int) {
	a.LogEvent(Event{
		Type:     EventCodeReuse,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"revoked_tokens": revokedTokens,
		},
	})
}

// LogRefreshReuse logs a refresh token presented after rotation consumed it.
func (a *Auditor) LogRefreshReuse(userID, clientID string) {
	a.LogEvent(Event{
		Type:     EventRefreshReuse,
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(userID, clientID, reason string) {
	a.LogEvent(Event{
		Type:     EventAuthFailure,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAssertionReplay logs a JWT assertion presented with a seen jti.
func (a *Auditor) LogAssertionReplay(clientID string) {
	a.LogEvent(Event{
		Type:     EventAssertionReplay,
		ClientID: clientID,
	})
}

// LogDeviceDecision logs the resource owner approving or denying a device.
func (a *Auditor) LogDeviceDecision(userID, clientID string, approved bool) {
	a.LogEvent(Event{
		Type:     EventDeviceDecision,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"approved": approved,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(clientID string) {
	a.LogEvent(Event{
		Type:     EventRateLimitExceeded,
		ClientID: clientID,
	})
}

// LogClientRegistered logs when a new client is registered
func (a *Auditor) LogClientRegistered(clientID, clientType string) {
	a.LogEvent(Event{
		Type:     EventClientRegistered,
		ClientID: clientID,
		Details: map[string]any{
			"client_type": clientType,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return util.SafeTruncate(hex.EncodeToString(hash[:]), 16)
}
