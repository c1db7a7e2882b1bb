package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/clientauth"
	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// Revoke is the token revocation endpoint (RFC 7009). Revocation is
// idempotent: unknown tokens and tokens belonging to other clients answer
// 200 with an empty body, revealing nothing.
type Revoke struct {
	selector      *clientauth.Selector
	accessTokens  storage.AccessTokenStore
	refreshTokens storage.RefreshTokenStore
	auditor       *security.Auditor
	metrics       *instrumentation.Metrics
}

// NewRevoke creates the revocation endpoint.
func NewRevoke(selector *clientauth.Selector, store storage.Store, auditor *security.Auditor, metrics *instrumentation.Metrics) *Revoke {
	return &Revoke{
		selector:      selector,
		accessTokens:  store,
		refreshTokens: store,
		auditor:       auditor,
		metrics:       metrics,
	}
}

func (e *Revoke) Name() string      { return "revoke" }
func (e *Revoke) Path() string      { return "/oauth/revoke" }
func (e *Revoke) Methods() []string { return []string{http.MethodPost} }

func (e *Revoke) Handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	started := time.Now()
	resp := e.handle(ctx, req)
	e.metrics.RecordHTTPRequest(ctx, req.Method, e.Path(), resp.Status, float64(time.Since(started).Milliseconds()))
	return resp
}

func (e *Revoke) handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	client, err := e.selector.Authenticate(ctx, req)
	if err != nil {
		return errorJSON(err)
	}

	token := req.FormValue("token")
	if token == "" {
		return errorJSON(oauthkit.ErrInvalidRequest("The token parameter is required."))
	}

	revoked := e.revoke(ctx, client, token, req.FormValue("token_type_hint"))
	if revoked != "" {
		e.auditor.LogTokenRevoked("", client.ID, revoked)
		e.metrics.RecordTokenRevocation(ctx, revoked)
	}
	return oauthkit.NewResponse(http.StatusOK)
}

// revoke finds the token in hint order and revokes it when it belongs to
// the authenticated client. Returns the kind revoked, or empty.
func (e *Revoke) revoke(ctx context.Context, client *storage.Client, token, hint string) string {
	kinds := []string{"refresh_token", "access_token"}
	if hint == "access_token" {
		kinds = []string{"access_token", "refresh_token"}
	}
	for _, kind := range kinds {
		switch kind {
		case "refresh_token":
			rt, err := e.refreshTokens.GetRefreshToken(ctx, token)
			if err != nil || rt.ClientID != client.ID {
				continue
			}
			_ = e.refreshTokens.RevokeRefreshToken(ctx, token)
			// Retire the access token it chains to as well (RFC 7009
			// section 2.1 recommendation).
			if rt.AccessToken != "" {
				_ = e.accessTokens.RevokeAccessToken(ctx, rt.AccessToken)
			}
			return "refresh_token"
		case "access_token":
			at, err := e.accessTokens.GetAccessToken(ctx, token)
			if err != nil || at.ClientID != client.ID {
				continue
			}
			_ = e.accessTokens.RevokeAccessToken(ctx, token)
			return "access_token"
		}
	}
	return ""
}
