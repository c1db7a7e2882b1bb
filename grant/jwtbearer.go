package grant

import (
	"context"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/jose"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// JWTBearer exchanges a signed authorization assertion for an access token
// (RFC 7523 section 2.1). The assertion is verified against the client's
// registered key material, must be issued by the client for this server and
// names the resource owner in its sub claim. Every assertion must carry a
// unique jti; each jti is accepted once. No refresh token is issued.
type JWTBearer struct {
	users   storage.UserStore
	replays storage.ReplayStore
	issuer  *Issuer
	auditor *security.Auditor

	serverIssuer string
	now          func() time.Time
}

// NewJWTBearer creates the jwt-bearer grant handler. serverIssuer is the
// issuer identifier assertions must name in aud.
func NewJWTBearer(users storage.UserStore, replays storage.ReplayStore, issuer *Issuer, auditor *security.Auditor, serverIssuer string) *JWTBearer {
	return &JWTBearer{
		users:        users,
		replays:      replays,
		issuer:       issuer,
		auditor:      auditor,
		serverIssuer: serverIssuer,
		now:          time.Now,
	}
}

func (g *JWTBearer) Name() string { return TypeJWTBearer }

func (g *JWTBearer) Handle(ctx context.Context, req *oauthkit.Request, client *storage.Client) (*oauthkit.TokenResponse, error) {
	raw := req.FormValue("assertion")
	if raw == "" {
		return nil, oauthkit.ErrInvalidRequest("The assertion parameter is required.")
	}

	key, alg, err := assertionKey(client)
	if err != nil {
		return nil, err
	}
	assertion, err := jose.ParseAssertion(raw, alg, key)
	if err != nil {
		return nil, oauthkit.ErrInvalidGrant("The assertion signature or structure is invalid.")
	}

	if assertion.Issuer != client.ID {
		return nil, oauthkit.ErrInvalidGrant("The assertion iss claim must equal the client identifier.")
	}
	if !assertion.HasAudience(g.serverIssuer) {
		return nil, oauthkit.ErrInvalidGrant("The assertion aud claim does not include this authorization server.")
	}
	if g.now().After(assertion.ExpiresAt) {
		return nil, oauthkit.ErrInvalidGrant("The assertion has expired.")
	}
	if assertion.JTI == "" {
		return nil, oauthkit.ErrInvalidGrant("The assertion has no jti claim.")
	}
	if err := g.replays.ClaimJTI(ctx, assertion.JTI, assertion.ExpiresAt); err != nil {
		g.auditor.LogAssertionReplay(client.ID)
		return nil, oauthkit.ErrInvalidGrant("The assertion has already been used.")
	}
	if assertion.Subject == "" {
		return nil, oauthkit.ErrInvalidGrant("The assertion has no sub claim.")
	}

	user, err := g.users.GetUser(ctx, assertion.Subject)
	if err != nil {
		return nil, oauthkit.ErrInvalidGrant("The assertion subject is unknown.")
	}

	scopes, err := oauthkit.AllowedScopes(client, req.FormValue("scope"))
	if err != nil {
		return nil, err
	}

	accessToken, err := g.issuer.IssueAccessToken(ctx, client, user.ID, scopes, TypeJWTBearer, "")
	if err != nil {
		return nil, err
	}

	g.auditor.LogTokenIssued(user.ID, client.ID, TypeJWTBearer, oauthkit.JoinScopes(scopes))
	return g.issuer.TokenResponse(accessToken, nil, ""), nil
}

// assertionKey selects the verification key registered for the client:
// the public key when present, the shared secret otherwise.
func assertionKey(client *storage.Client) (any, string, error) {
	alg := client.TokenEndpointAuthSigningAlg
	if client.PublicKey != nil {
		if alg == "" {
			alg = "RS256"
		}
		return client.PublicKey, alg, nil
	}
	if client.Secret != "" {
		if alg == "" {
			alg = "HS256"
		}
		return []byte(client.Secret), alg, nil
	}
	return nil, "", oauthkit.ErrInvalidGrant("The client has no registered key material for assertion verification.")
}
