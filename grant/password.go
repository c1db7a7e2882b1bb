package grant

import (
	"context"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// Password exchanges resource owner credentials for tokens. The grant is
// legacy (deprecated by OAuth 2.1) but kept for first-party clients that
// still depend on it; registration must opt in explicitly.
type Password struct {
	users   storage.UserStore
	issuer  *Issuer
	auditor *security.Auditor
}

// NewPassword creates the password grant handler.
func NewPassword(users storage.UserStore, issuer *Issuer, auditor *security.Auditor) *Password {
	return &Password{users: users, issuer: issuer, auditor: auditor}
}

func (g *Password) Name() string { return TypePassword }

func (g *Password) Handle(ctx context.Context, req *oauthkit.Request, client *storage.Client) (*oauthkit.TokenResponse, error) {
	username := req.FormValue("username")
	password := req.FormValue("password")
	if username == "" || password == "" {
		return nil, oauthkit.ErrInvalidRequest("The username and password parameters are required.")
	}

	user, err := g.users.AuthenticateUser(ctx, username, password)
	if err != nil {
		g.auditor.LogAuthFailure(username, client.ID, "password_grant_credentials")
		return nil, oauthkit.ErrInvalidGrant("The resource owner credentials are invalid.")
	}

	scopes, err := oauthkit.AllowedScopes(client, req.FormValue("scope"))
	if err != nil {
		return nil, err
	}

	accessToken, err := g.issuer.IssueAccessToken(ctx, client, user.ID, scopes, TypePassword, "")
	if err != nil {
		return nil, err
	}
	var refreshToken *storage.RefreshToken
	if refreshEligible(client) {
		refreshToken, err = g.issuer.IssueRefreshToken(ctx, client, user.ID, scopes, accessToken.Token, "")
		if err != nil {
			return nil, err
		}
	}

	g.auditor.LogTokenIssued(user.ID, client.ID, TypePassword, oauthkit.JoinScopes(scopes))
	return g.issuer.TokenResponse(accessToken, refreshToken, ""), nil
}
