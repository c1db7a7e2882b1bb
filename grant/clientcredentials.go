package grant

import (
	"context"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// ClientCredentials issues tokens for the client's own account. Only
// confidential clients qualify, no resource owner is involved and no refresh
// token is ever issued (RFC 6749 section 4.4.3).
type ClientCredentials struct {
	issuer  *Issuer
	auditor *security.Auditor
}

// NewClientCredentials creates the client_credentials grant handler.
func NewClientCredentials(issuer *Issuer, auditor *security.Auditor) *ClientCredentials {
	return &ClientCredentials{issuer: issuer, auditor: auditor}
}

func (g *ClientCredentials) Name() string { return TypeClientCredentials }

func (g *ClientCredentials) Handle(ctx context.Context, req *oauthkit.Request, client *storage.Client) (*oauthkit.TokenResponse, error) {
	if client.IsPublic() {
		return nil, oauthkit.ErrUnauthorizedClient("Public clients may not use the client_credentials grant.")
	}

	scopes, err := oauthkit.AllowedScopes(client, req.FormValue("scope"))
	if err != nil {
		return nil, err
	}

	accessToken, err := g.issuer.IssueAccessToken(ctx, client, "", scopes, TypeClientCredentials, "")
	if err != nil {
		return nil, err
	}

	g.auditor.LogTokenIssued("", client.ID, TypeClientCredentials, oauthkit.JoinScopes(scopes))
	return g.issuer.TokenResponse(accessToken, nil, ""), nil
}
