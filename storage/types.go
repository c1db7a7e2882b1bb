package storage

import (
	"time"
)

// Client represents a registered OAuth client.
type Client struct {
	ID string

	// SecretHash is the bcrypt hash of the client secret, used by the
	// client_secret_basic and client_secret_post authentication methods.
	SecretHash string

	// Secret is the plaintext client secret. It is only required for clients
	// using the client_secret_jwt authentication method, where the shared
	// secret is the HMAC key and a one-way hash cannot verify the assertion.
	Secret string

	// SecretIssuedAt and SecretExpiresAt bound the validity of the secret.
	// A zero SecretExpiresAt means the secret never expires.
	SecretIssuedAt  time.Time
	SecretExpiresAt time.Time

	RedirectURIs  []string
	GrantTypes    []string
	ResponseTypes []string
	Scopes        []string
	Audience      []string

	// TokenEndpointAuthMethod is one of client_secret_basic,
	// client_secret_post, client_secret_jwt, private_key_jwt, none.
	TokenEndpointAuthMethod string

	// TokenEndpointAuthSigningAlg is the JWS algorithm for JWT-based client
	// authentication (e.g. HS256, RS256).
	TokenEndpointAuthSigningAlg string

	// PublicKey holds the verification key for private_key_jwt clients
	// (*rsa.PublicKey, *ecdsa.PublicKey or ed25519.PublicKey).
	PublicKey any

	SubjectType string
	Name        string
	CreatedAt   time.Time
}

// IsPublic reports whether the client authenticates with method "none".
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == "none"
}

// HasGrantType reports whether the client is registered for the grant type.
func (c *Client) HasGrantType(grantType string) bool {
	return contains(c.GrantTypes, grantType)
}

// HasResponseType reports whether the client is registered for the response type.
func (c *Client) HasResponseType(responseType string) bool {
	return contains(c.ResponseTypes, responseType)
}

// HasRedirectURI reports whether the redirect URI is registered, using exact
// string comparison as required by RFC 6749 section 3.1.2.3.
func (c *Client) HasRedirectURI(uri string) bool {
	return contains(c.RedirectURIs, uri)
}

// HasScope reports whether the scope is registered for the client.
func (c *Client) HasScope(scope string) bool {
	return contains(c.Scopes, scope)
}

// SecretExpired reports whether the client secret has expired.
func (c *Client) SecretExpired(now time.Time) bool {
	return !c.SecretExpiresAt.IsZero() && now.After(c.SecretExpiresAt)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// User represents a resource owner. The engine only cares about identity;
// Claims carries whatever the Userinfo endpoint should expose, keyed by
// standard OIDC claim names.
type User struct {
	ID       string
	Username string
	Claims   map[string]any
}

// AuthorizationCode is a single-use code bound to a client, user, redirect
// URI, scope set and PKCE challenge. It is redeemable exactly once.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	IssuedAt            time.Time
	ExpiresAt           time.Time
	Used                bool
	Revoked             bool
}

// AccessToken is an opaque token handle with its binding metadata.
type AccessToken struct {
	Token    string
	ClientID string
	// UserID is empty for tokens issued without a resource owner
	// (client_credentials).
	UserID   string
	Scopes   []string
	Audience []string
	// GrantType names the grant that produced the token.
	GrantType string
	// AuthorizationCode links the token to the code it was redeemed from,
	// enabling cascading revocation on code reuse. Empty for other grants.
	AuthorizationCode string
	IssuedAt          time.Time
	NotBefore         time.Time
	ExpiresAt         time.Time
	Revoked           bool
}

// RefreshToken is an opaque refresh token handle.
type RefreshToken struct {
	Token    string
	ClientID string
	UserID   string
	Scopes   []string
	// AccessToken is the handle of the access token issued alongside this
	// refresh token; it is revoked when the refresh token rotates.
	AccessToken       string
	AuthorizationCode string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	Revoked           bool
}

// DeviceCodeStatus is the authorization state of a device code.
type DeviceCodeStatus string

const (
	DeviceCodePending    DeviceCodeStatus = "pending"
	DeviceCodeAuthorized DeviceCodeStatus = "authorized"
	DeviceCodeDenied     DeviceCodeStatus = "denied"
)

// DeviceCode drives the device authorization grant polling state machine.
// Expiry and poll pacing are evaluated against the timestamps stored here;
// there is no timer-driven state.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	ClientID        string
	UserID          string
	Scopes          []string
	VerificationURI string
	Status          DeviceCodeStatus
	// Interval is the minimum poll spacing advertised to the device, in seconds.
	Interval     int
	IssuedAt     time.Time
	ExpiresAt    time.Time
	LastPolledAt time.Time
}

// GrantSession is the transient record binding a login and consent decision
// to a challenge pair. The interactive login/consent UI lives outside the
// engine; it resolves the challenges and writes the outcome here.
type GrantSession struct {
	LoginChallenge   string
	ConsentChallenge string
	ClientID         string
	UserID           string
	GrantedScopes    []string
	Granted          bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
}
