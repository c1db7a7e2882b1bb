package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestNewAuditor(t *testing.T) {
	tests := []struct {
		name    string
		logger  *slog.Logger
		enabled bool
	}{
		{"enabled with logger", slog.Default(), true},
		{"disabled with logger", slog.Default(), false},
		{"nil logger falls back to default", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := NewAuditor(tt.logger, tt.enabled)
			if auditor == nil {
				t.Fatal("NewAuditor() returned nil")
			}
		})
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		event   Event
		wantLog bool
	}{
		{
			name:    "enabled logs event",
			enabled: true,
			event:   Event{Type: EventTokenIssued, UserID: "user-123", ClientID: "client-456"},
			wantLog: true,
		},
		{
			name:    "disabled logs nothing",
			enabled: false,
			event:   Event{Type: EventTokenIssued, UserID: "user-123", ClientID: "client-456"},
			wantLog: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, buf := newTestAuditor(tt.enabled)
			auditor.LogEvent(tt.event)

			hasLog := buf.Len() > 0
			if hasLog != tt.wantLog {
				t.Errorf("LogEvent() logged = %v, want %v", hasLog, tt.wantLog)
			}
		})
	}
}

func TestAuditor_HashesUserID(t *testing.T) {
	auditor, buf := newTestAuditor(true)
	auditor.LogTokenIssued("alice@example.com", "client-1", "authorization_code", "openid email")

	out := buf.String()
	if out == "" {
		t.Fatal("LogTokenIssued() produced no output")
	}
	if strings.Contains(out, "alice@example.com") {
		t.Error("log output contains the raw user identifier")
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Errorf("log output missing event type %q: %s", EventTokenIssued, out)
	}
}

func TestAuditor_EventMethods(t *testing.T) {
	tests := []struct {
		name      string
		log       func(a *Auditor)
		wantEvent string
	}{
		{
			name:      "token issued",
			log:       func(a *Auditor) { a.LogTokenIssued("u", "c", "authorization_code", "openid") },
			wantEvent: EventTokenIssued,
		},
		{
			name:      "token refreshed",
			log:       func(a *Auditor) { a.LogTokenRefreshed("u", "c", true) },
			wantEvent: EventTokenRefreshed,
		},
		{
			name:      "token revoked",
			log:       func(a *Auditor) { a.LogTokenRevoked("u", "c", "refresh_token") },
			wantEvent: EventTokenRevoked,
		},
		{
			name:      "code reuse",
			log:       func(a *Auditor) { a.LogCodeReuse("u", "c", 2) },
			wantEvent: EventCodeReuse,
		},
		{
			name:      "refresh reuse",
			log:       func(a *Auditor) { a.LogRefreshReuse("u", "c") },
			wantEvent: EventRefreshReuse,
		},
		{
			name:      "auth failure",
			log:       func(a *Auditor) { a.LogAuthFailure("u", "c", "bad credentials") },
			wantEvent: EventAuthFailure,
		},
		{
			name:      "assertion replay",
			log:       func(a *Auditor) { a.LogAssertionReplay("c") },
			wantEvent: EventAssertionReplay,
		},
		{
			name:      "device decision",
			log:       func(a *Auditor) { a.LogDeviceDecision("u", "c", false) },
			wantEvent: EventDeviceDecision,
		},
		{
			name:      "rate limit exceeded",
			log:       func(a *Auditor) { a.LogRateLimitExceeded("c") },
			wantEvent: EventRateLimitExceeded,
		},
		{
			name:      "client registered",
			log:       func(a *Auditor) { a.LogClientRegistered("c", "public") },
			wantEvent: EventClientRegistered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, buf := newTestAuditor(true)
			tt.log(auditor)
			if !strings.Contains(buf.String(), tt.wantEvent) {
				t.Errorf("log output missing event type %q: %s", tt.wantEvent, buf.String())
			}
		})
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(empty) = %q, want <empty>", got)
	}

	h1 := hashForLogging("user-123")
	h2 := hashForLogging("user-123")
	h3 := hashForLogging("user-124")

	if h1 != h2 {
		t.Error("hashForLogging is not deterministic")
	}
	if h1 == h3 {
		t.Error("hashForLogging collides on different inputs")
	}
	if len(h1) != 16 {
		t.Errorf("hashForLogging returned %d chars, want 16", len(h1))
	}
	if h1 == "user-123" {
		t.Error("hashForLogging returned the raw value")
	}
}
