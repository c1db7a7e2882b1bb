// Package responsetype implements the authorization endpoint response type
// strategies: code, token, id_token and their hybrid combinations. A strategy
// decides which response parameters an authorization produces; delivery is
// the response mode's job.
package responsetype

import (
	"sort"
	"strings"

	"github.com/oauthkit/oauthkit"
)

// Canonical response type names. Combined types are space-separated and
// normalized to a fixed component order.
const (
	TypeCode             = "code"
	TypeToken            = "token"
	TypeIDToken          = "id_token"
	TypeCodeToken        = "code token"
	TypeCodeIDToken      = "code id_token"
	TypeIDTokenToken     = "id_token token"
	TypeCodeIDTokenToken = "code id_token token"
)

// Normalize canonicalizes a response_type parameter: components are
// deduplicated and sorted so "token code" and "code token" name the same
// strategy. The empty string stays empty.
func Normalize(responseType string) string {
	parts := strings.Fields(responseType)
	if len(parts) < 2 {
		return strings.TrimSpace(responseType)
	}
	seen := make(map[string]bool, len(parts))
	unique := parts[:0]
	for _, p := range parts {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}
	sort.Strings(unique)
	return strings.Join(unique, " ")
}

// Registry maps normalized response_type values to handlers.
type Registry struct {
	handlers map[string]oauthkit.ResponseTypeHandler
}

// NewRegistry creates a registry over the given handlers.
func NewRegistry(handlers ...oauthkit.ResponseTypeHandler) *Registry {
	r := &Registry{handlers: make(map[string]oauthkit.ResponseTypeHandler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Name()] = h
	}
	return r
}

// Get returns the handler for the response_type after normalization, or nil.
func (r *Registry) Get(responseType string) oauthkit.ResponseTypeHandler {
	return r.handlers[Normalize(responseType)]
}

// Names lists the registered response types.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
