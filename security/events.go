package security

// Event type constants for audit logging, shared so log consumers can match
// on stable names.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a token response is issued to a client.
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh grant succeeds.
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked through the
	// revocation endpoint.
	EventTokenRevoked = "token_revoked"

	// Attack detection events

	// EventCodeReuse is logged when an authorization code is presented a
	// second time; the tokens issued from it are revoked in response.
	EventCodeReuse = "authorization_code_reuse"

	// EventRefreshReuse is logged when a rotated refresh token handle is
	// presented again.
	EventRefreshReuse = "refresh_token_reuse"

	// EventAssertionReplay is logged when a JWT assertion arrives with a jti
	// that was already consumed.
	EventAssertionReplay = "assertion_replay"

	// EventRateLimitExceeded is logged when a rate limit is exceeded.
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventAuthFailure is logged when client or resource owner
	// authentication fails.
	EventAuthFailure = "auth_failure"

	// Administrative events

	// EventDeviceDecision is logged when a resource owner approves or
	// denies a device authorization.
	EventDeviceDecision = "device_decision"

	// EventClientRegistered is logged when a client is registered.
	EventClientRegistered = "client_registered"
)
