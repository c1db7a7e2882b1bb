package oauthkit

import (
	"context"

	"github.com/oauthkit/oauthkit/storage"
)

// Endpoint is a protocol endpoint handled by the engine. Endpoints validate
// inputs, select the appropriate strategy and translate typed errors into
// protocol responses; they are the only place errors are rendered.
type Endpoint interface {
	Name() string
	Path() string
	Methods() []string
	Handle(ctx context.Context, req *Request) *Response
}

// ClientAuthenticator is a client authentication strategy. Matches detects
// whether the request used this method; exactly one strategy may match a
// request, otherwise the endpoint fails invalid_client.
type ClientAuthenticator interface {
	Name() string
	Matches(req *Request) bool
	Authenticate(ctx context.Context, req *Request) (*storage.Client, error)
}

// GrantHandler is a token endpoint grant type state machine.
type GrantHandler interface {
	Name() string
	Handle(ctx context.Context, req *Request, client *storage.Client) (*TokenResponse, error)
}

// AuthorizeRequest is a parsed authorization request.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	ResponseMode        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ResponseTypeHandler decides which authorization response parameters are
// issued for an authorization request and requests the corresponding
// artifacts from the stores. Parameters with empty values are dropped by the
// response mode before encoding.
type ResponseTypeHandler interface {
	Name() string
	DefaultResponseMode() string
	Authorize(ctx context.Context, ar *AuthorizeRequest, client *storage.Client, user *storage.User) (map[string]string, error)
}

// ResponseMode places a flat parameter set into an HTTP response delivered
// to the redirect URI: query, fragment, form_post, or a JWT-secured variant.
type ResponseMode interface {
	Name() string
	Render(redirectURI string, params map[string]string) (*Response, error)
}

// UserSource resolves the authenticated resource owner for an authorization
// request when no consent challenge hand-off is in play. Implementations sit
// outside the engine (session cookies, login forms). Returning an error
// yields access_denied through the selected response mode.
type UserSource interface {
	ResolveUser(ctx context.Context, req *Request, ar *AuthorizeRequest) (*storage.User, error)
}
