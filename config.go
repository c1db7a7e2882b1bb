package oauthkit

import (
	"log/slog"
	"time"
)

// Config holds engine configuration. The zero value is usable: NewConfig and
// ApplyDefaults fill in secure defaults, following the principle of secure
// by default with opt-in for less secure options.
type Config struct {
	// Issuer is the server's issuer identifier (base URL). It is the aud
	// value required in client assertions and the iss claim of id_tokens and
	// JARM response objects.
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid.
	// Default: 10 minutes.
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is how long access tokens are valid. Default: 1 hour.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is how long refresh tokens are valid. Default: 30 days.
	RefreshTokenTTL time.Duration

	// IDTokenTTL is how long issued id_tokens are valid. Default: 1 hour.
	IDTokenTTL time.Duration

	// DeviceCodeTTL is how long device codes are valid. Default: 15 minutes.
	DeviceCodeTTL time.Duration

	// DevicePollInterval is the minimum spacing between device token polls.
	// Polling faster yields slow_down. Default: 5 seconds.
	DevicePollInterval time.Duration

	// DeviceVerificationURI is the URL shown to the user for entering the
	// user code.
	DeviceVerificationURI string

	// DisableRefreshTokenRotation keeps the same refresh token handle
	// across uses instead of consuming it and issuing a replacement.
	// Rotation is on by default.
	DisableRefreshTokenRotation bool

	// DisableReuseRevocation leaves the access token chained to a rotated
	// refresh token handle untouched when that stale handle is presented
	// again. Reuse revocation is on by default.
	DisableReuseRevocation bool

	// DisablePKCE makes code_challenge optional for the code response type.
	// PKCE is required by default.
	DisablePKCE bool

	// AllowPKCEPlain permits the deprecated plain code_challenge_method on
	// authorization requests. Verification of stored codes always supports
	// plain, which is the RFC 7636 default when no method was recorded.
	// Default: false.
	AllowPKCEPlain bool

	// SupportedScopes limits the scopes dynamically registered clients may
	// request, and is the scope set granted to registrations that name
	// none. Empty means no server-wide restriction beyond per-client
	// scopes.
	SupportedScopes []string

	// JWTResponseModeTTL bounds the exp of JARM response objects.
	// Default: 10 minutes.
	JWTResponseModeTTL time.Duration

	// TrustProxy enables reading the client address from X-Forwarded-For and
	// X-Real-IP. Only set behind a reverse proxy that sanitizes those
	// headers. Default: false.
	TrustProxy bool

	// TrustedProxyCount is how many rightmost X-Forwarded-For entries belong
	// to our own proxies. Zero is treated as one.
	TrustedProxyCount int
}

// NewConfig returns a Config for the issuer with secure defaults applied.
func NewConfig(issuer string) *Config {
	c := &Config{Issuer: issuer}
	c.ApplyDefaults(slog.Default())
	return c
}

// ApplyDefaults fills zero fields with defaults and warns about explicitly
// configured insecure settings.
func (c *Config) ApplyDefaults(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if c.AuthorizationCodeTTL == 0 {
		c.AuthorizationCodeTTL = 10 * time.Minute
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = time.Hour
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.IDTokenTTL == 0 {
		c.IDTokenTTL = time.Hour
	}
	if c.DeviceCodeTTL == 0 {
		c.DeviceCodeTTL = 15 * time.Minute
	}
	if c.DevicePollInterval == 0 {
		c.DevicePollInterval = 5 * time.Second
	}
	if c.JWTResponseModeTTL == 0 {
		c.JWTResponseModeTTL = 10 * time.Minute
	}

	if c.DisablePKCE {
		logger.Warn("PKCE is not required for the code response type",
			"recommendation", "set DisablePKCE=false")
	}
	if c.DisableRefreshTokenRotation {
		logger.Warn("refresh token rotation is disabled",
			"recommendation", "set DisableRefreshTokenRotation=false")
	}
	if c.AllowPKCEPlain {
		logger.Warn("plain code_challenge_method is allowed",
			"recommendation", "set AllowPKCEPlain=false to require S256")
	}
}
