package oauthkit

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantCode   string
		wantStatus int
	}{
		{"invalid_request", ErrInvalidRequest("d"), ErrorCodeInvalidRequest, http.StatusBadRequest},
		{"invalid_client", ErrInvalidClient("d"), ErrorCodeInvalidClient, http.StatusUnauthorized},
		{"invalid_grant", ErrInvalidGrant("d"), ErrorCodeInvalidGrant, http.StatusBadRequest},
		{"unauthorized_client", ErrUnauthorizedClient("d"), ErrorCodeUnauthorizedClient, http.StatusBadRequest},
		{"unsupported_grant_type", ErrUnsupportedGrantType("d"), ErrorCodeUnsupportedGrantType, http.StatusBadRequest},
		{"invalid_scope", ErrInvalidScope("d"), ErrorCodeInvalidScope, http.StatusBadRequest},
		{"access_denied", ErrAccessDenied("d"), ErrorCodeAccessDenied, http.StatusForbidden},
		{"unsupported_response_type", ErrUnsupportedResponseType("d"), ErrorCodeUnsupportedResponseType, http.StatusBadRequest},
		{"server_error", ErrServerError("d"), ErrorCodeServerError, http.StatusInternalServerError},
		{"temporarily_unavailable", ErrTemporarilyUnavailable("d"), ErrorCodeTemporarilyUnavailable, http.StatusServiceUnavailable},
		{"invalid_token", ErrInvalidToken("d"), ErrorCodeInvalidToken, http.StatusUnauthorized},
		{"insufficient_scope", ErrInsufficientScope("d"), ErrorCodeInsufficientScope, http.StatusForbidden},
		{"slow_down", ErrSlowDown("d"), ErrorCodeSlowDown, http.StatusBadRequest},
		{"authorization_pending", ErrAuthorizationPending("d"), ErrorCodeAuthorizationPending, http.StatusBadRequest},
		{"expired_token", ErrExpiredToken("d"), ErrorCodeExpiredToken, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
			if tt.err.Description != "d" {
				t.Errorf("Description = %q, want %q", tt.err.Description, "d")
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	if got := ErrInvalidGrant("The code has expired.").Error(); got != "invalid_grant: The code has expired." {
		t.Errorf("Error() = %q", got)
	}
	if got := (&Error{Code: "invalid_grant"}).Error(); got != "invalid_grant" {
		t.Errorf("Error() without description = %q", got)
	}
}

func TestAsError(t *testing.T) {
	oe := ErrInvalidScope("nope")

	if got := AsError(oe); got != oe {
		t.Errorf("AsError() = %v, want the original error", got)
	}

	wrapped := fmt.Errorf("handling request: %w", oe)
	if got := AsError(wrapped); got != oe {
		t.Errorf("AsError() on wrapped = %v, want the original error", got)
	}

	got := AsError(errors.New("database on fire"))
	if got.Code != ErrorCodeServerError {
		t.Errorf("AsError() on unknown error code = %q, want server_error", got.Code)
	}
	if got.Status != http.StatusInternalServerError {
		t.Errorf("AsError() on unknown error status = %d", got.Status)
	}
	// Internal details must not leak into the protocol surface.
	if got.Description == "database on fire" {
		t.Error("AsError() leaked the internal error message")
	}
}
