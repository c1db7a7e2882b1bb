package grant

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/jose"
	"github.com/oauthkit/oauthkit/storage"
)

const tokenTypeBearer = "Bearer"

// Issuer is the shared token creation routine used by every grant and by the
// token/id_token response types. It owns handle generation, store writes and
// id_token signing so all issuance paths agree on token shape.
type Issuer struct {
	config        *oauthkit.Config
	accessTokens  storage.AccessTokenStore
	refreshTokens storage.RefreshTokenStore
	signer        jose.Signer

	now func() time.Time
}

// NewIssuer creates the shared issuer. signer may be nil when no id_tokens
// or JARM responses are needed.
func NewIssuer(config *oauthkit.Config, accessTokens storage.AccessTokenStore, refreshTokens storage.RefreshTokenStore, signer jose.Signer) *Issuer {
	return &Issuer{
		config:        config,
		accessTokens:  accessTokens,
		refreshTokens: refreshTokens,
		signer:        signer,
		now:           time.Now,
	}
}

// NewHandle generates an opaque token or code handle.
func NewHandle() string {
	return oauth2.GenerateVerifier()
}

// IssueAccessToken creates and persists an access token bound to the client,
// optional user, scope set and originating grant. code links the token to
// the authorization code it was redeemed from, for cascading revocation.
func (i *Issuer) IssueAccessToken(ctx context.Context, client *storage.Client, userID string, scopes []string, grantType, code string) (*storage.AccessToken, error) {
	now := i.now()
	token := &storage.AccessToken{
		Token:             NewHandle(),
		ClientID:          client.ID,
		UserID:            userID,
		Scopes:            scopes,
		Audience:          client.Audience,
		GrantType:         grantType,
		AuthorizationCode: code,
		IssuedAt:          now,
		NotBefore:         now,
		ExpiresAt:         now.Add(i.config.AccessTokenTTL),
	}
	if err := i.accessTokens.SaveAccessToken(ctx, token); err != nil {
		return nil, oauthkit.ErrServerError("The access token could not be persisted.")
	}
	return token, nil
}

// IssueRefreshToken creates and persists a refresh token linked to the
// access token it was issued alongside.
func (i *Issuer) IssueRefreshToken(ctx context.Context, client *storage.Client, userID string, scopes []string, accessToken, code string) (*storage.RefreshToken, error) {
	now := i.now()
	token := &storage.RefreshToken{
		Token:             NewHandle(),
		ClientID:          client.ID,
		UserID:            userID,
		Scopes:            scopes,
		AccessToken:       accessToken,
		AuthorizationCode: code,
		IssuedAt:          now,
		ExpiresAt:         now.Add(i.config.RefreshTokenTTL),
	}
	if err := i.refreshTokens.SaveRefreshToken(ctx, token); err != nil {
		return nil, oauthkit.ErrServerError("The refresh token could not be persisted.")
	}
	return token, nil
}

// IssueIDToken signs an OpenID Connect id_token for the user.
func (i *Issuer) IssueIDToken(client *storage.Client, user *storage.User, nonce string) (string, error) {
	return i.IssueIDTokenWithClaims(client, user, nonce, nil)
}

// IssueIDTokenWithClaims signs an id_token carrying additional claims, such
// as at_hash and c_hash on hybrid flow responses.
func (i *Issuer) IssueIDTokenWithClaims(client *storage.Client, user *storage.User, nonce string, extra map[string]string) (string, error) {
	if i.signer == nil {
		return "", oauthkit.ErrServerError("No signer is configured for id_token issuance.")
	}
	now := i.now()
	claims := map[string]any{
		"iss": i.config.Issuer,
		"sub": user.ID,
		"aud": client.ID,
		"iat": now.Unix(),
		"exp": now.Add(i.config.IDTokenTTL).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	for k, v := range extra {
		claims[k] = v
	}
	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", oauthkit.ErrServerError("The id_token could not be signed.")
	}
	return signed, nil
}

// TokenResponse builds the wire response for issued tokens.
func (i *Issuer) TokenResponse(accessToken *storage.AccessToken, refreshToken *storage.RefreshToken, idToken string) *oauthkit.TokenResponse {
	resp := &oauthkit.TokenResponse{
		AccessToken: accessToken.Token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(time.Until(accessToken.ExpiresAt).Seconds()),
		Scope:       oauthkit.JoinScopes(accessToken.Scopes),
		IDToken:     idToken,
	}
	if refreshToken != nil {
		resp.RefreshToken = refreshToken.Token
	}
	return resp
}

// refreshEligible reports whether the client may receive refresh tokens.
func refreshEligible(client *storage.Client) bool {
	return client.HasGrantType(TypeRefreshToken)
}

// hasOpenIDScope reports whether an id_token should accompany the tokens.
func hasOpenIDScope(scopes []string) bool {
	for _, s := range scopes {
		if s == "openid" {
			return true
		}
	}
	return false
}
