package responsemode

import (
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/jose"
)

// JWTMode is a JWT-secured response mode (JARM). The flat parameter map is
// wrapped into a signed response object and carried as the single "response"
// parameter through the underlying mode.
type JWTMode struct {
	inner    oauthkit.ResponseMode
	signer   jose.Signer
	issuer   string
	ttl      time.Duration
	audience string

	now func() time.Time
}

// NewJWTMode wraps an underlying mode into its JARM variant. The mode's name
// is the inner name with a ".jwt" suffix.
func NewJWTMode(inner oauthkit.ResponseMode, signer jose.Signer, issuer string, ttl time.Duration) *JWTMode {
	return &JWTMode{inner: inner, signer: signer, issuer: issuer, ttl: ttl, now: time.Now}
}

func (m *JWTMode) Name() string { return m.inner.Name() + ".jwt" }

// WithAudience returns a copy bound to the client receiving the response;
// the client identifier becomes the aud claim of the response object.
func (m *JWTMode) WithAudience(clientID string) *JWTMode {
	copied := *m
	copied.audience = clientID
	return &copied
}

func (m *JWTMode) Render(redirectURI string, params map[string]string) (*oauthkit.Response, error) {
	now := m.now()
	claims := map[string]any{
		"iss": m.issuer,
		"exp": now.Add(m.ttl).Unix(),
		"iat": now.Unix(),
	}
	if m.audience != "" {
		claims["aud"] = m.audience
	}
	for k, v := range dropEmpty(params) {
		claims[k] = v
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return nil, oauthkit.ErrServerError("The response object could not be signed.")
	}
	return m.inner.Render(redirectURI, map[string]string{"response": signed})
}
