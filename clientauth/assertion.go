package clientauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/jose"
	"github.com/oauthkit/oauthkit/storage"
)

// AssertionTypeJWTBearer is the client_assertion_type for JWT client
// assertions (RFC 7523 section 2.2).
const AssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionBase carries the shared verification logic of client_secret_jwt
// and private_key_jwt: assertion claims must satisfy iss = sub = client_id,
// aud containing the issuer, a present exp, and a jti unseen by the replay
// cache.
type assertionBase struct {
	clients storage.ClientStore
	replays storage.ReplayStore
	issuer  string
}

func (a *assertionBase) authenticate(ctx context.Context, req *oauthkit.Request, method string, keyFor func(*storage.Client) (any, string, error)) (*storage.Client, error) {
	token := req.FormValue("client_assertion")

	// iss/sub identify the client; both must agree before any key lookup.
	unverified, err := decodeClaimsUnverified(token)
	if err != nil {
		return nil, oauthkit.ErrInvalidClient("Malformed client assertion.")
	}
	clientID, _ := unverified["iss"].(string)
	if clientID == "" {
		return nil, oauthkit.ErrInvalidClient("The client assertion has no iss claim.")
	}

	client, err := a.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, oauthkit.ErrInvalidClient("Client authentication failed.")
	}
	if err := requireAuthMethod(client, method); err != nil {
		return nil, err
	}

	key, alg, err := keyFor(client)
	if err != nil {
		return nil, err
	}
	assertion, err := jose.ParseAssertion(token, alg, key)
	if err != nil {
		return nil, oauthkit.ErrInvalidClient("Client assertion verification failed.")
	}

	if assertion.Issuer != client.ID || assertion.Subject != client.ID {
		return nil, oauthkit.ErrInvalidClient("The client assertion iss and sub claims must equal the client identifier.")
	}
	if !assertion.HasAudience(a.issuer) {
		return nil, oauthkit.ErrInvalidClient("The client assertion aud claim does not include this authorization server.")
	}
	if assertion.JTI == "" {
		return nil, oauthkit.ErrInvalidClient("The client assertion has no jti claim.")
	}
	if err := a.replays.ClaimJTI(ctx, assertion.JTI, assertion.ExpiresAt); err != nil {
		return nil, oauthkit.ErrInvalidClient("The client assertion has already been used.")
	}
	return client, nil
}

// SecretJWT authenticates clients presenting an HMAC assertion keyed with
// the shared client secret (client_secret_jwt).
type SecretJWT struct {
	assertionBase
}

// NewSecretJWT creates the client_secret_jwt strategy. issuer is the
// server's issuer identifier, the required assertion audience.
func NewSecretJWT(clients storage.ClientStore, replays storage.ReplayStore, issuer string) *SecretJWT {
	return &SecretJWT{assertionBase{clients: clients, replays: replays, issuer: issuer}}
}

func (s *SecretJWT) Name() string { return MethodSecretJWT }

func (s *SecretJWT) Matches(req *oauthkit.Request) bool {
	return req.FormValue("client_assertion_type") == AssertionTypeJWTBearer &&
		req.FormValue("client_assertion") != "" &&
		strings.HasPrefix(assertionAlg(req.FormValue("client_assertion")), "HS")
}

func (s *SecretJWT) Authenticate(ctx context.Context, req *oauthkit.Request) (*storage.Client, error) {
	return s.authenticate(ctx, req, MethodSecretJWT, func(c *storage.Client) (any, string, error) {
		if c.Secret == "" {
			return nil, "", oauthkit.ErrInvalidClient("The client has no shared secret for HMAC assertions.")
		}
		alg := c.TokenEndpointAuthSigningAlg
		if alg == "" {
			alg = "HS256"
		}
		return []byte(c.Secret), alg, nil
	})
}

// PrivateKeyJWT authenticates clients presenting an assertion signed with
// their registered private key (private_key_jwt).
type PrivateKeyJWT struct {
	assertionBase
}

// NewPrivateKeyJWT creates the private_key_jwt strategy.
func NewPrivateKeyJWT(clients storage.ClientStore, replays storage.ReplayStore, issuer string) *PrivateKeyJWT {
	return &PrivateKeyJWT{assertionBase{clients: clients, replays: replays, issuer: issuer}}
}

func (p *PrivateKeyJWT) Name() string { return MethodPrivateKeyJWT }

func (p *PrivateKeyJWT) Matches(req *oauthkit.Request) bool {
	alg := assertionAlg(req.FormValue("client_assertion"))
	return req.FormValue("client_assertion_type") == AssertionTypeJWTBearer &&
		req.FormValue("client_assertion") != "" &&
		alg != "" && !strings.HasPrefix(alg, "HS")
}

func (p *PrivateKeyJWT) Authenticate(ctx context.Context, req *oauthkit.Request) (*storage.Client, error) {
	return p.authenticate(ctx, req, MethodPrivateKeyJWT, func(c *storage.Client) (any, string, error) {
		if c.PublicKey == nil {
			return nil, "", oauthkit.ErrInvalidClient("The client has no registered verification key.")
		}
		alg := c.TokenEndpointAuthSigningAlg
		if alg == "" {
			alg = "RS256"
		}
		return c.PublicKey, alg, nil
	})
}

// assertionAlg reads the alg value from an unverified JWS header, used only
// to route the assertion to the HMAC or public-key strategy.
func assertionAlg(token string) string {
	header, _, found := strings.Cut(token, ".")
	if !found {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(header)
	if err != nil {
		return ""
	}
	var h struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return ""
	}
	return h.Alg
}

// decodeClaimsUnverified decodes the payload of a compact JWS without
// verifying the signature, for extracting the client identifier before key
// selection. Never trust these claims beyond routing.
func decodeClaimsUnverified(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, jose.ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, jose.ErrMalformedToken
	}
	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, jose.ErrMalformedToken
	}
	return claims, nil
}
