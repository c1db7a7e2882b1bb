package endpoint

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/storage"
)

// scopeClaims maps OpenID Connect scope values to the claims they release
// (OpenID Connect Core section 5.4).
var scopeClaims = map[string][]string{
	"profile": {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	"email":   {"email", "email_verified"},
	"address": {"address"},
	"phone":   {"phone_number", "phone_number_verified"},
}

// Userinfo is the OpenID Connect userinfo endpoint. It accepts a bearer
// access token and returns the user claims released by the token's scopes;
// sub is always present.
type Userinfo struct {
	accessTokens storage.AccessTokenStore
	users        storage.UserStore
	metrics      *instrumentation.Metrics

	now func() time.Time
}

// NewUserinfo creates the userinfo endpoint.
func NewUserinfo(store storage.Store, metrics *instrumentation.Metrics) *Userinfo {
	return &Userinfo{accessTokens: store, users: store, metrics: metrics, now: time.Now}
}

func (e *Userinfo) Name() string      { return "userinfo" }
func (e *Userinfo) Path() string      { return "/oauth/userinfo" }
func (e *Userinfo) Methods() []string { return []string{http.MethodGet, http.MethodPost} }

func (e *Userinfo) Handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	started := time.Now()
	resp := e.handle(ctx, req)
	e.metrics.RecordHTTPRequest(ctx, req.Method, e.Path(), resp.Status, float64(time.Since(started).Milliseconds()))
	return resp
}

func (e *Userinfo) handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	handle := bearerToken(req)
	if handle == "" {
		return bearerError(oauthkit.ErrInvalidToken("A bearer access token is required."))
	}

	token, err := e.accessTokens.GetAccessToken(ctx, handle)
	if err != nil || token.Revoked || e.now().After(token.ExpiresAt) {
		return bearerError(oauthkit.ErrInvalidToken("The access token is invalid or expired."))
	}
	if !oauthkit.ScopesContain(token.Scopes, []string{"openid"}) {
		return bearerError(oauthkit.ErrInsufficientScope("The access token lacks the openid scope."))
	}
	if token.UserID == "" {
		return bearerError(oauthkit.ErrInvalidToken("The access token has no associated resource owner."))
	}

	user, err := e.users.GetUser(ctx, token.UserID)
	if err != nil {
		return bearerError(oauthkit.ErrInvalidToken("The access token's resource owner no longer exists."))
	}

	return oauthkit.JSONResponse(http.StatusOK, filterClaims(user, token.Scopes))
}

// filterClaims releases the claims the token's scopes permit. sub always
// reflects the stored user identifier, regardless of stored claims.
func filterClaims(user *storage.User, scopes []string) map[string]any {
	claims := map[string]any{"sub": user.ID}
	for _, scope := range scopes {
		for _, name := range scopeClaims[scope] {
			if v, ok := user.Claims[name]; ok {
				claims[name] = v
			}
		}
	}
	return claims
}

// bearerToken extracts the token from the Authorization header, falling
// back to the form body per RFC 6750 section 2.2.
func bearerToken(req *oauthkit.Request) string {
	auth := req.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return req.FormValue("access_token")
}
