package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/clientauth"
	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/storage"
)

// Introspect is the token introspection endpoint (RFC 7662). Dead tokens of
// any kind answer {"active": false} rather than an error, so callers cannot
// distinguish expired from revoked from never-issued.
type Introspect struct {
	selector      *clientauth.Selector
	accessTokens  storage.AccessTokenStore
	refreshTokens storage.RefreshTokenStore
	users         storage.UserStore
	issuer        string
	metrics       *instrumentation.Metrics

	now func() time.Time
}

// NewIntrospect creates the introspection endpoint. issuer is reported as
// the iss of active tokens.
func NewIntrospect(selector *clientauth.Selector, store storage.Store, issuer string, metrics *instrumentation.Metrics) *Introspect {
	return &Introspect{
		selector:      selector,
		accessTokens:  store,
		refreshTokens: store,
		users:         store,
		issuer:        issuer,
		metrics:       metrics,
		now:           time.Now,
	}
}

func (e *Introspect) Name() string      { return "introspect" }
func (e *Introspect) Path() string      { return "/oauth/introspect" }
func (e *Introspect) Methods() []string { return []string{http.MethodPost} }

func (e *Introspect) Handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	started := time.Now()
	resp := e.handle(ctx, req)
	e.metrics.RecordHTTPRequest(ctx, req.Method, e.Path(), resp.Status, float64(time.Since(started).Milliseconds()))
	return resp
}

func (e *Introspect) handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	if _, err := e.selector.Authenticate(ctx, req); err != nil {
		return errorJSON(err)
	}

	token := req.FormValue("token")
	if token == "" {
		return errorJSON(oauthkit.ErrInvalidRequest("The token parameter is required."))
	}

	result := e.lookup(ctx, token, req.FormValue("token_type_hint"))
	e.metrics.RecordIntrospection(ctx, result.Active)
	return oauthkit.JSONResponse(http.StatusOK, result)
}

// lookup tries token kinds in hint order, falling back to the other kind
// when the hinted one misses (RFC 7662 section 2.1).
func (e *Introspect) lookup(ctx context.Context, token, hint string) *oauthkit.IntrospectionResponse {
	kinds := []string{"access_token", "refresh_token"}
	if hint == "refresh_token" {
		kinds = []string{"refresh_token", "access_token"}
	}
	for _, kind := range kinds {
		if resp := e.lookupKind(ctx, token, kind); resp != nil {
			return resp
		}
	}
	return &oauthkit.IntrospectionResponse{Active: false}
}

func (e *Introspect) lookupKind(ctx context.Context, token, kind string) *oauthkit.IntrospectionResponse {
	now := e.now()
	switch kind {
	case "access_token":
		at, err := e.accessTokens.GetAccessToken(ctx, token)
		if err != nil || at.Revoked || now.After(at.ExpiresAt) {
			return nil
		}
		resp := &oauthkit.IntrospectionResponse{
			Active:    true,
			Scope:     oauthkit.JoinScopes(at.Scopes),
			ClientID:  at.ClientID,
			TokenType: "Bearer",
			Exp:       at.ExpiresAt.Unix(),
			Iat:       at.IssuedAt.Unix(),
			Nbf:       at.NotBefore.Unix(),
			Sub:       at.UserID,
			Iss:       e.issuer,
		}
		if len(at.Audience) > 0 {
			resp.Aud = at.Audience[0]
		}
		e.fillUsername(ctx, resp, at.UserID)
		return resp
	case "refresh_token":
		rt, err := e.refreshTokens.GetRefreshToken(ctx, token)
		if err != nil || rt.Revoked || now.After(rt.ExpiresAt) {
			return nil
		}
		resp := &oauthkit.IntrospectionResponse{
			Active:    true,
			Scope:     oauthkit.JoinScopes(rt.Scopes),
			ClientID:  rt.ClientID,
			TokenType: "refresh_token",
			Exp:       rt.ExpiresAt.Unix(),
			Iat:       rt.IssuedAt.Unix(),
			Sub:       rt.UserID,
			Iss:       e.issuer,
		}
		e.fillUsername(ctx, resp, rt.UserID)
		return resp
	}
	return nil
}

func (e *Introspect) fillUsername(ctx context.Context, resp *oauthkit.IntrospectionResponse, userID string) {
	if userID == "" {
		return
	}
	if user, err := e.users.GetUser(ctx, userID); err == nil {
		resp.Username = user.Username
	}
}
