// Package oauthkit is an embeddable OAuth 2.0 / OpenID Connect authorization
// server engine. It implements the authorization, token, introspection,
// revocation, userinfo and device authorization flows of RFC 6749 and its
// extensions (PKCE, JWT bearer assertions, device grant, JARM) on top of
// pluggable storage, JOSE and user-authentication collaborators.
package oauthkit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oauthkit/oauthkit/security"
)

// AuthorizationServer routes abstract HTTP requests to the registered
// endpoints by name. It holds no per-request state; every request is an
// independent execution.
type AuthorizationServer struct {
	config    *Config
	endpoints map[string]Endpoint
	logger    *slog.Logger
}

// NewAuthorizationServer creates the facade over an endpoint set. Endpoint
// names must be unique.
func NewAuthorizationServer(config *Config, logger *slog.Logger, endpoints ...Endpoint) (*AuthorizationServer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.ApplyDefaults(logger)

	byName := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		if _, dup := byName[ep.Name()]; dup {
			return nil, fmt.Errorf("duplicate endpoint %q", ep.Name())
		}
		byName[ep.Name()] = ep
	}
	return &AuthorizationServer{config: config, endpoints: byName, logger: logger}, nil
}

// Endpoint returns the endpoint registered under name, or nil.
func (s *AuthorizationServer) Endpoint(name string) Endpoint {
	return s.endpoints[name]
}

// Handle dispatches a request to the named endpoint. Unknown endpoint names
// and disallowed methods are rendered as protocol errors so transport
// adapters never need their own error shapes.
func (s *AuthorizationServer) Handle(ctx context.Context, name string, req *Request) *Response {
	ep := s.endpoints[name]
	if ep == nil {
		oe := ErrInvalidRequest(fmt.Sprintf("Unknown endpoint %q.", name))
		return JSONResponse(oe.Status, ErrorResponse{Error: oe.Code, ErrorDescription: oe.Description})
	}
	if !methodAllowed(ep, req.Method) {
		oe := ErrInvalidRequest(fmt.Sprintf("HTTP method %s is not allowed on the %s endpoint.", req.Method, name))
		resp := JSONResponse(http.StatusMethodNotAllowed, ErrorResponse{Error: oe.Code, ErrorDescription: oe.Description})
		resp.Header.Set("Allow", strings.Join(ep.Methods(), ", "))
		return resp
	}
	return ep.Handle(ctx, req)
}

func methodAllowed(ep Endpoint, method string) bool {
	for _, m := range ep.Methods() {
		if m == method {
			return true
		}
	}
	return false
}

// ServeMux builds a net/http mux binding every endpoint at its configured
// path, plus the RFC 8414 metadata document. This is a convenience adapter;
// embedders with their own routing call Handle directly.
func (s *AuthorizationServer) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	for name, ep := range s.endpoints {
		name, ep := name, ep
		mux.HandleFunc(ep.Path(), func(w http.ResponseWriter, r *http.Request) {
			resp := s.Handle(r.Context(), name, NewRequest(r))
			WriteResponse(w, resp)
		})
	}
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		WriteResponse(w, JSONResponse(http.StatusOK, s.Metadata()))
	})
	return mux
}

// Handler wraps ServeMux with the transport middleware every deployment
// wants: request ID propagation, security headers, and client address
// resolution honoring the configured proxy trust.
func (s *AuthorizationServer) Handler() http.Handler {
	mux := s.ServeMux()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetSecurityHeaders(w, s.config.Issuer)
		r.RemoteAddr = security.GetClientIP(r, s.config.TrustProxy, s.config.TrustedProxyCount)
		mux.ServeHTTP(w, r)
	})
	return security.RequestIDMiddleware(inner)
}

// Metadata builds the authorization server metadata document from the
// configuration and the registered endpoints.
func (s *AuthorizationServer) Metadata() *ServerMetadata {
	md := &ServerMetadata{
		Issuer:                 s.config.Issuer,
		ScopesSupported:        s.config.SupportedScopes,
		ResponseTypesSupported: []string{"code", "token", "id_token", "code id_token", "code token", "id_token token", "code id_token token"},
		ResponseModesSupported: []string{"query", "fragment", "form_post", "jwt", "query.jwt", "fragment.jwt", "form_post.jwt"},
		GrantTypesSupported: []string{
			"authorization_code", "client_credentials", "password", "refresh_token",
			"urn:ietf:params:oauth:grant-type:jwt-bearer",
			"urn:ietf:params:oauth:grant-type:device_code",
		},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "client_secret_jwt", "private_key_jwt", "none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	}
	if s.config.AllowPKCEPlain {
		md.CodeChallengeMethodsSupported = append(md.CodeChallengeMethodsSupported, "plain")
	}

	base := strings.TrimRight(s.config.Issuer, "/")
	set := func(dst *string, name string) {
		if ep := s.endpoints[name]; ep != nil {
			*dst = base + ep.Path()
		}
	}
	set(&md.AuthorizationEndpoint, "authorize")
	set(&md.TokenEndpoint, "token")
	set(&md.IntrospectionEndpoint, "introspect")
	set(&md.RevocationEndpoint, "revoke")
	set(&md.UserinfoEndpoint, "userinfo")
	set(&md.DeviceAuthorizationEndpoint, "device_authorization")
	set(&md.RegistrationEndpoint, "register")
	return md
}

// Config exposes the server configuration to endpoints and adapters.
func (s *AuthorizationServer) Config() *Config {
	return s.config
}
