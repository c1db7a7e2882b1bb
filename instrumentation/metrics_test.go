package instrumentation

import (
	"context"
	"testing"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	inst, err := New(Config{ServiceName: "test", Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return inst.Metrics()
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	metrics := newTestMetrics(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode int
		durationMs float64
	}{
		{"authorize redirect", "GET", "/oauth/authorize", 302, 12.5},
		{"token success", "POST", "/oauth/token", 200, 45.1},
		{"token auth failure", "POST", "/oauth/token", 401, 3.2},
		{"introspection", "POST", "/oauth/introspect", 200, 8.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.RecordHTTPRequest(ctx, tt.method, tt.endpoint, tt.statusCode, tt.durationMs)
		})
	}
}

func TestMetrics_RecordFlowEvents(t *testing.T) {
	metrics := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordAuthorizationStarted(ctx, "code")
	metrics.RecordAuthorizationStarted(ctx, "code id_token")

	metrics.RecordTokenIssued(ctx, "authorization_code")
	metrics.RecordTokenIssued(ctx, "client_credentials")

	metrics.RecordGrantError(ctx, "authorization_code", "invalid_grant")
	metrics.RecordGrantError(ctx, "urn:ietf:params:oauth:grant-type:device_code", "authorization_pending")

	metrics.RecordDevicePoll(ctx, "authorization_pending")
	metrics.RecordDevicePoll(ctx, "slow_down")
	metrics.RecordDevicePoll(ctx, "issued")

	metrics.RecordTokenRevocation(ctx, "refresh_token")
	metrics.RecordTokenRevocation(ctx, "access_token")

	metrics.RecordIntrospection(ctx, true)
	metrics.RecordIntrospection(ctx, false)

	metrics.RecordClientRegistration(ctx, "public")
	metrics.RecordClientRegistration(ctx, "confidential")
}

func TestMetrics_RecordSecurityEvents(t *testing.T) {
	metrics := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordRateLimitExceeded(ctx, "token")
	metrics.RecordRateLimitExceeded(ctx, "register")
}

func TestMetrics_RecordAuditEvent(t *testing.T) {
	metrics := newTestMetrics(t)
	ctx := context.Background()

	// Ordinary events bump only the audit counter.
	metrics.RecordAuditEvent(ctx, "token_issued")
	metrics.RecordAuditEvent(ctx, "auth_failure")

	// Attack-signal events also bump their dedicated counters.
	metrics.RecordAuditEvent(ctx, "authorization_code_reuse")
	metrics.RecordAuditEvent(ctx, "refresh_token_reuse")
	metrics.RecordAuditEvent(ctx, "assertion_replay")
}

func TestMetrics_RecordStorageOperation(t *testing.T) {
	metrics := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordStorageOperation(ctx, "save_token", "success", 12.34)
	metrics.RecordStorageOperation(ctx, "get_token", "success", 5.67)
	metrics.RecordStorageOperation(ctx, "claim_code", "error", 23.45)
}

func TestMetrics_NilReceiver(t *testing.T) {
	// Minimal compositions wire endpoints without metrics; every recorder
	// must tolerate a nil receiver.
	var m *Metrics
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/oauth/authorize", 302, 1.0)
	m.RecordAuthorizationStarted(ctx, "code")
	m.RecordTokenIssued(ctx, "password")
	m.RecordGrantError(ctx, "password", "invalid_grant")
	m.RecordDevicePoll(ctx, "slow_down")
	m.RecordTokenRevocation(ctx, "access_token")
	m.RecordIntrospection(ctx, false)
	m.RecordClientRegistration(ctx, "confidential")
	m.RecordRateLimitExceeded(ctx, "register")
	m.RecordAuditEvent(ctx, "auth_failure")
	m.RecordStorageOperation(ctx, "get_token", "error", 0.4)
}
