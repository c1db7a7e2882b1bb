package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/clientauth"
	"github.com/oauthkit/oauthkit/grant"
	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/security"
)

// Token is the token endpoint (RFC 6749 section 3.2). It authenticates the
// client, checks grant registration and dispatches to the grant type state
// machine. All token endpoint errors render as JSON bodies, never redirects.
type Token struct {
	selector *clientauth.Selector
	grants   *grant.Registry
	limiter  *security.RateLimiter
	auditor  *security.Auditor
	metrics  *instrumentation.Metrics
}

// NewToken creates the token endpoint. limiter keys on the client identifier
// when present and the remote address otherwise.
func NewToken(selector *clientauth.Selector, grants *grant.Registry, limiter *security.RateLimiter, auditor *security.Auditor, metrics *instrumentation.Metrics) *Token {
	return &Token{selector: selector, grants: grants, limiter: limiter, auditor: auditor, metrics: metrics}
}

func (e *Token) Name() string      { return "token" }
func (e *Token) Path() string      { return "/oauth/token" }
func (e *Token) Methods() []string { return []string{http.MethodPost} }

func (e *Token) Handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	started := time.Now()
	resp := e.handle(ctx, req)
	e.metrics.RecordHTTPRequest(ctx, req.Method, e.Path(), resp.Status, float64(time.Since(started).Milliseconds()))
	return resp
}

func (e *Token) handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	if !e.limiter.Allow(rateLimitKey(req)) {
		e.auditor.LogRateLimitExceeded(req.FormValue("client_id"))
		e.metrics.RecordRateLimitExceeded(ctx, "token")
		return errorJSON(oauthkit.ErrTemporarilyUnavailable("Too many requests; retry later."))
	}

	grantType := req.FormValue("grant_type")
	if grantType == "" {
		return errorJSON(oauthkit.ErrInvalidRequest("The grant_type parameter is required."))
	}

	client, err := e.selector.Authenticate(ctx, req)
	if err != nil {
		e.auditor.LogAuthFailure("", req.FormValue("client_id"), "client_authentication")
		return errorJSON(err)
	}

	handler := e.grants.Get(grantType)
	if handler == nil {
		return errorJSON(oauthkit.ErrUnsupportedGrantType("The grant type is not supported by this server."))
	}
	if !client.HasGrantType(grantType) {
		return errorJSON(oauthkit.ErrUnauthorizedClient("The client is not registered for this grant type."))
	}

	token, err := handler.Handle(ctx, req, client)
	if err != nil {
		oe := oauthkit.AsError(err)
		e.metrics.RecordGrantError(ctx, grantType, oe.Code)
		if grantType == grant.TypeDeviceCode {
			e.metrics.RecordDevicePoll(ctx, oe.Code)
		}
		return errorJSON(oe)
	}

	e.metrics.RecordTokenIssued(ctx, grantType)
	if grantType == grant.TypeDeviceCode {
		e.metrics.RecordDevicePoll(ctx, "issued")
	}
	return oauthkit.JSONResponse(http.StatusOK, token)
}

// rateLimitKey identifies the caller for rate limiting: the claimed client
// identifier when supplied, the remote address otherwise.
func rateLimitKey(req *oauthkit.Request) string {
	if id := req.FormValue("client_id"); id != "" {
		return id
	}
	return req.RemoteAddr
}
