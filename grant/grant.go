// Package grant implements the token endpoint grant type state machines:
// authorization_code, client_credentials, password, refresh_token,
// jwt-bearer and device_code. Every handler shares the common contract of
// failing unauthorized_client when the client is not registered for the
// grant and invalid_scope when the requested scope exceeds its allowance.
package grant

import (
	"github.com/oauthkit/oauthkit"
)

// Grant type identifiers, matching the grant_type request parameter values.
const (
	TypeAuthorizationCode = "authorization_code"
	TypeClientCredentials = "client_credentials"
	TypePassword          = "password"
	TypeRefreshToken      = "refresh_token"
	TypeJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	TypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// Registry maps grant_type values to handlers. It is resolved once at
// startup; the token endpoint does a direct lookup per request.
type Registry struct {
	handlers map[string]oauthkit.GrantHandler
}

// NewRegistry creates a registry over the given handlers.
func NewRegistry(handlers ...oauthkit.GrantHandler) *Registry {
	r := &Registry{handlers: make(map[string]oauthkit.GrantHandler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Name()] = h
	}
	return r
}

// Get returns the handler for the grant type, or nil.
func (r *Registry) Get(grantType string) oauthkit.GrantHandler {
	return r.handlers[grantType]
}

// Names lists the registered grant types.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
