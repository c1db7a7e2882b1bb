package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/responsemode"
	"github.com/oauthkit/oauthkit/responsetype"
	"github.com/oauthkit/oauthkit/storage"
)

// Authorize is the authorization endpoint (RFC 6749 section 3.1). Errors
// before the client and redirect URI are validated render as direct JSON;
// everything after is delivered to the redirect URI through the selected
// response mode so the client application sees it.
type Authorize struct {
	clients       storage.ClientStore
	users         storage.UserStore
	sessions      storage.GrantSessionStore
	responseTypes *responsetype.Registry
	responseModes *responsemode.Registry
	userSource    oauthkit.UserSource
	metrics       *instrumentation.Metrics
}

// NewAuthorize creates the authorization endpoint.
func NewAuthorize(store storage.Store, responseTypes *responsetype.Registry, responseModes *responsemode.Registry, userSource oauthkit.UserSource, metrics *instrumentation.Metrics) *Authorize {
	return &Authorize{
		clients:       store,
		users:         store,
		sessions:      store,
		responseTypes: responseTypes,
		responseModes: responseModes,
		userSource:    userSource,
		metrics:       metrics,
	}
}

func (e *Authorize) Name() string      { return "authorize" }
func (e *Authorize) Path() string      { return "/oauth/authorize" }
func (e *Authorize) Methods() []string { return []string{http.MethodGet, http.MethodPost} }

func (e *Authorize) Handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	started := time.Now()
	resp := e.handle(ctx, req)
	e.metrics.RecordHTTPRequest(ctx, req.Method, e.Path(), resp.Status, float64(time.Since(started).Milliseconds()))
	return resp
}

func (e *Authorize) handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	ar := parseAuthorizeRequest(req)

	if ar.ClientID == "" {
		return errorJSON(oauthkit.ErrInvalidRequest("The client_id parameter is required."))
	}
	client, err := e.clients.GetClient(ctx, ar.ClientID)
	if err != nil {
		return errorJSON(oauthkit.ErrInvalidRequest("The client is unknown."))
	}
	if err := resolveRedirectURI(ar, client); err != nil {
		// Never redirect to an unvalidated URI (RFC 6749 section 3.1.2.4).
		return errorJSON(err)
	}

	e.metrics.RecordAuthorizationStarted(ctx, ar.ResponseType)

	handler := e.responseTypes.Get(ar.ResponseType)
	if handler == nil {
		return e.redirectError(ctx, ar, client, nil,
			oauthkit.ErrUnsupportedResponseType("The response type is not supported by this server."))
	}
	normalized := responsetype.Normalize(ar.ResponseType)
	if !client.HasResponseType(normalized) {
		return e.redirectError(ctx, ar, client, handler,
			oauthkit.ErrUnsupportedResponseType("The client is not registered for this response type."))
	}

	mode, err := e.responseModes.Resolve(ar.ResponseMode, handler.DefaultResponseMode())
	if err != nil {
		return e.redirectError(ctx, ar, client, handler, err)
	}
	mode = bindAudience(mode, client)

	user, ar2, err := e.resolveUser(ctx, req, ar)
	if err != nil {
		return e.renderError(ar, mode, err)
	}
	ar = ar2

	params, err := handler.Authorize(ctx, ar, client, user)
	if err != nil {
		return e.renderError(ar, mode, err)
	}
	params["state"] = ar.State

	resp, err := mode.Render(ar.RedirectURI, params)
	if err != nil {
		return errorJSON(err)
	}
	return resp
}

// resolveUser finds the authenticated resource owner. A consent_challenge
// parameter resumes a login/consent hand-off; otherwise the embedding
// application's UserSource is consulted.
func (e *Authorize) resolveUser(ctx context.Context, req *oauthkit.Request, ar *oauthkit.AuthorizeRequest) (*storage.User, *oauthkit.AuthorizeRequest, error) {
	challenge := req.Param("consent_challenge")
	if challenge == "" {
		user, err := e.userSource.ResolveUser(ctx, req, ar)
		if err != nil {
			return nil, ar, oauthkit.ErrAccessDenied("The resource owner denied or failed authentication.")
		}
		return user, ar, nil
	}

	session, err := e.sessions.GetGrantSessionByConsentChallenge(ctx, challenge)
	if err != nil {
		return nil, ar, oauthkit.ErrAccessDenied("The consent session is unknown or expired.")
	}
	defer func() { _ = e.sessions.DeleteGrantSession(ctx, session.LoginChallenge) }()

	if session.ClientID != ar.ClientID {
		return nil, ar, oauthkit.ErrAccessDenied("The consent session belongs to another client.")
	}
	if !session.Granted {
		return nil, ar, oauthkit.ErrAccessDenied("The resource owner denied the request.")
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, ar, oauthkit.ErrAccessDenied("The consent session is unknown or expired.")
	}

	user, err := e.users.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, ar, oauthkit.ErrServerError("The resource owner could not be resolved.")
	}

	// Consent narrows the request to what was actually granted.
	if len(session.GrantedScopes) > 0 {
		narrowed := *ar
		narrowed.Scope = oauthkit.JoinScopes(session.GrantedScopes)
		ar = &narrowed
	}
	return user, ar, nil
}

// redirectError delivers an error through the response mode once the
// redirect URI is validated. With no handler yet resolved the response
// type's default mode is unknown, so query is used.
func (e *Authorize) redirectError(ctx context.Context, ar *oauthkit.AuthorizeRequest, client *storage.Client, handler oauthkit.ResponseTypeHandler, err error) *oauthkit.Response {
	defaultMode := responsemode.ModeQuery
	if handler != nil {
		defaultMode = handler.DefaultResponseMode()
	}
	mode, modeErr := e.responseModes.Resolve(ar.ResponseMode, defaultMode)
	if modeErr != nil {
		mode = e.responseModes.Get(defaultMode)
	}
	mode = bindAudience(mode, client)
	return e.renderError(ar, mode, err)
}

// renderError encodes the error as redirect parameters through the mode.
func (e *Authorize) renderError(ar *oauthkit.AuthorizeRequest, mode oauthkit.ResponseMode, err error) *oauthkit.Response {
	oe := oauthkit.AsError(err)
	if mode == nil {
		return errorJSON(oe)
	}
	params := map[string]string{
		"error":             oe.Code,
		"error_description": oe.Description,
		"state":             ar.State,
	}
	resp, renderErr := mode.Render(ar.RedirectURI, params)
	if renderErr != nil {
		return errorJSON(renderErr)
	}
	return resp
}

// bindAudience stamps the client identifier into JWT-secured response
// objects so their aud claim names the receiving client.
func bindAudience(mode oauthkit.ResponseMode, client *storage.Client) oauthkit.ResponseMode {
	if jm, ok := mode.(*responsemode.JWTMode); ok {
		return jm.WithAudience(client.ID)
	}
	return mode
}

func parseAuthorizeRequest(req *oauthkit.Request) *oauthkit.AuthorizeRequest {
	return &oauthkit.AuthorizeRequest{
		ClientID:            req.Param("client_id"),
		RedirectURI:         req.Param("redirect_uri"),
		ResponseType:        req.Param("response_type"),
		ResponseMode:        req.Param("response_mode"),
		Scope:               req.Param("scope"),
		State:               req.Param("state"),
		Nonce:               req.Param("nonce"),
		CodeChallenge:       req.Param("code_challenge"),
		CodeChallengeMethod: req.Param("code_challenge_method"),
	}
}

// resolveRedirectURI validates the requested redirect URI against the
// client's registration, defaulting to a sole registered URI when the
// request omits one.
func resolveRedirectURI(ar *oauthkit.AuthorizeRequest, client *storage.Client) error {
	if ar.RedirectURI == "" {
		if len(client.RedirectURIs) != 1 {
			return oauthkit.ErrInvalidRequest("The redirect_uri parameter is required.")
		}
		ar.RedirectURI = client.RedirectURIs[0]
		return nil
	}
	if !client.HasRedirectURI(ar.RedirectURI) {
		return oauthkit.ErrInvalidRequest("The redirect_uri is not registered for the client.")
	}
	return nil
}
