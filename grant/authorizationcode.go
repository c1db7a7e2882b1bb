package grant

import (
	"context"
	"errors"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/pkce"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// AuthorizationCode redeems authorization codes for tokens. Codes are
// single-use: redemption claims the code atomically, and a second
// presentation revokes every token already issued from it.
type AuthorizationCode struct {
	config        *oauthkit.Config
	codes         storage.AuthorizationCodeStore
	accessTokens  storage.AccessTokenStore
	refreshTokens storage.RefreshTokenStore
	users         storage.UserStore
	pkce          *pkce.Registry
	issuer        *Issuer
	auditor       *security.Auditor

	now func() time.Time
}

// NewAuthorizationCode creates the authorization_code grant handler.
func NewAuthorizationCode(config *oauthkit.Config, store storage.Store, pkceRegistry *pkce.Registry, issuer *Issuer, auditor *security.Auditor) *AuthorizationCode {
	return &AuthorizationCode{
		config:        config,
		codes:         store,
		accessTokens:  store,
		refreshTokens: store,
		users:         store,
		pkce:          pkceRegistry,
		issuer:        issuer,
		auditor:       auditor,
		now:           time.Now,
	}
}

func (g *AuthorizationCode) Name() string { return TypeAuthorizationCode }

func (g *AuthorizationCode) Handle(ctx context.Context, req *oauthkit.Request, client *storage.Client) (*oauthkit.TokenResponse, error) {
	handle := req.FormValue("code")
	if handle == "" {
		return nil, oauthkit.ErrInvalidRequest("The code parameter is required.")
	}

	code, err := g.codes.AtomicClaimAuthorizationCode(ctx, handle)
	if errors.Is(err, storage.ErrAlreadyUsed) {
		// Replay of a consumed code. Assume the handle leaked and revoke
		// everything that was issued from it (RFC 6749 section 4.1.2).
		revoked := g.revokeIssuedTokens(ctx, code)
		g.auditor.LogCodeReuse(code.UserID, code.ClientID, revoked)
		return nil, oauthkit.ErrInvalidGrant("The authorization code has already been used.")
	}
	if err != nil {
		return nil, oauthkit.ErrInvalidGrant("The authorization code is invalid or expired.")
	}

	if code.ClientID != client.ID {
		return nil, oauthkit.ErrInvalidGrant("The authorization code was issued to another client.")
	}
	if g.now().After(code.ExpiresAt) {
		return nil, oauthkit.ErrInvalidGrant("The authorization code is invalid or expired.")
	}
	if code.RedirectURI != "" && req.FormValue("redirect_uri") != code.RedirectURI {
		return nil, oauthkit.ErrInvalidGrant("The redirect_uri does not match the authorization request.")
	}

	if err := g.checkPKCE(code, req.FormValue("code_verifier")); err != nil {
		return nil, err
	}

	accessToken, err := g.issuer.IssueAccessToken(ctx, client, code.UserID, code.Scopes, TypeAuthorizationCode, code.Code)
	if err != nil {
		return nil, err
	}
	var refreshToken *storage.RefreshToken
	if refreshEligible(client) {
		refreshToken, err = g.issuer.IssueRefreshToken(ctx, client, code.UserID, code.Scopes, accessToken.Token, code.Code)
		if err != nil {
			return nil, err
		}
	}

	var idToken string
	if hasOpenIDScope(code.Scopes) {
		user, err := g.users.GetUser(ctx, code.UserID)
		if err != nil {
			return nil, oauthkit.ErrServerError("The resource owner could not be resolved.")
		}
		idToken, err = g.issuer.IssueIDToken(client, user, code.Nonce)
		if err != nil {
			return nil, err
		}
	}

	g.auditor.LogTokenIssued(code.UserID, client.ID, TypeAuthorizationCode, oauthkit.JoinScopes(code.Scopes))
	return g.issuer.TokenResponse(accessToken, refreshToken, idToken), nil
}

// checkPKCE verifies the code_verifier against the challenge stored with the
// code. Verification failures surface as invalid_grant, not invalid_request,
// since the verifier is part of the grant itself.
func (g *AuthorizationCode) checkPKCE(code *storage.AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		if !g.config.DisablePKCE {
			return oauthkit.ErrInvalidGrant("The authorization code was issued without a required code challenge.")
		}
		if verifier != "" {
			return oauthkit.ErrInvalidGrant("A code_verifier was supplied but no code challenge was recorded.")
		}
		return nil
	}
	if verifier == "" {
		return oauthkit.ErrInvalidGrant("The code_verifier parameter is required.")
	}
	if err := pkce.CheckVerifierFormat(verifier); err != nil {
		return oauthkit.ErrInvalidGrant("The code_verifier is malformed.")
	}
	if err := g.pkce.Verify(code.CodeChallengeMethod, verifier, code.CodeChallenge); err != nil {
		return oauthkit.ErrInvalidGrant("The code_verifier does not match the code challenge.")
	}
	return nil
}

// revokeIssuedTokens cascades revocation to every token chained to the code.
func (g *AuthorizationCode) revokeIssuedTokens(ctx context.Context, code *storage.AuthorizationCode) int {
	if code == nil {
		return 0
	}
	revoked := 0
	if n, err := g.accessTokens.RevokeAccessTokensByCode(ctx, code.Code); err == nil {
		revoked += n
	}
	if n, err := g.refreshTokens.RevokeRefreshTokensByCode(ctx, code.Code); err == nil {
		revoked += n
	}
	return revoked
}
