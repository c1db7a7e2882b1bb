package grant

import (
	"context"
	"errors"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// RefreshToken exchanges a refresh token for a new token pair. With rotation
// enabled the presented handle is consumed atomically and a replacement is
// issued; a handle presented after rotation already consumed it is treated
// as theft and the tokens chained to it are revoked.
type RefreshToken struct {
	config        *oauthkit.Config
	refreshTokens storage.RefreshTokenStore
	accessTokens  storage.AccessTokenStore
	issuer        *Issuer
	auditor       *security.Auditor

	now func() time.Time
}

// NewRefreshToken creates the refresh_token grant handler.
func NewRefreshToken(config *oauthkit.Config, store storage.Store, issuer *Issuer, auditor *security.Auditor) *RefreshToken {
	return &RefreshToken{
		config:        config,
		refreshTokens: store,
		accessTokens:  store,
		issuer:        issuer,
		auditor:       auditor,
		now:           time.Now,
	}
}

func (g *RefreshToken) Name() string { return TypeRefreshToken }

func (g *RefreshToken) Handle(ctx context.Context, req *oauthkit.Request, client *storage.Client) (*oauthkit.TokenResponse, error) {
	handle := req.FormValue("refresh_token")
	if handle == "" {
		return nil, oauthkit.ErrInvalidRequest("The refresh_token parameter is required.")
	}

	token, err := g.claim(ctx, handle)
	if err != nil {
		return nil, err
	}
	if token.ClientID != client.ID {
		return nil, oauthkit.ErrInvalidGrant("The refresh token was issued to another client.")
	}
	if g.now().After(token.ExpiresAt) {
		return nil, oauthkit.ErrInvalidGrant("The refresh token is invalid or expired.")
	}

	scopes, err := g.narrowScopes(token, req.FormValue("scope"))
	if err != nil {
		return nil, err
	}

	accessToken, err := g.issuer.IssueAccessToken(ctx, client, token.UserID, scopes, TypeRefreshToken, token.AuthorizationCode)
	if err != nil {
		return nil, err
	}

	resp := g.issuer.TokenResponse(accessToken, nil, "")
	if !g.config.DisableRefreshTokenRotation {
		// The old handle is already consumed; retire its access token and
		// hand out a replacement refresh token.
		if token.AccessToken != "" {
			_ = g.accessTokens.RevokeAccessToken(ctx, token.AccessToken)
		}
		next, err := g.issuer.IssueRefreshToken(ctx, client, token.UserID, token.Scopes, accessToken.Token, token.AuthorizationCode)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = next.Token
	} else {
		resp.RefreshToken = token.Token
	}

	g.auditor.LogTokenRefreshed(token.UserID, client.ID, !g.config.DisableRefreshTokenRotation)
	return resp, nil
}

// claim consumes the handle under rotation, or reads it without consuming
// otherwise. Rotation reuse revokes the access token linked to the stale
// handle before failing.
func (g *RefreshToken) claim(ctx context.Context, handle string) (*storage.RefreshToken, error) {
	if g.config.DisableRefreshTokenRotation {
		token, err := g.refreshTokens.GetRefreshToken(ctx, handle)
		if err != nil {
			return nil, oauthkit.ErrInvalidGrant("The refresh token is invalid or expired.")
		}
		return token, nil
	}

	token, err := g.refreshTokens.AtomicClaimRefreshToken(ctx, handle)
	if errors.Is(err, storage.ErrRevoked) && token != nil {
		g.auditor.LogRefreshReuse(token.UserID, token.ClientID)
		if !g.config.DisableReuseRevocation && token.AccessToken != "" {
			_ = g.accessTokens.RevokeAccessToken(ctx, token.AccessToken)
		}
		return nil, oauthkit.ErrInvalidGrant("The refresh token has already been rotated.")
	}
	if err != nil {
		return nil, oauthkit.ErrInvalidGrant("The refresh token is invalid or expired.")
	}
	return token, nil
}

// narrowScopes applies the optional scope parameter, which may only shrink
// the originally granted set (RFC 6749 section 6).
func (g *RefreshToken) narrowScopes(token *storage.RefreshToken, requested string) ([]string, error) {
	if requested == "" {
		return token.Scopes, nil
	}
	scopes := oauthkit.SplitScopes(requested)
	if !oauthkit.ScopesContain(token.Scopes, scopes) {
		return nil, oauthkit.ErrInvalidScope("The requested scope exceeds the originally granted scope.")
	}
	return scopes, nil
}
