package oauthkit

import (
	"fmt"
	"strings"

	"github.com/oauthkit/oauthkit/storage"
)

// AllowedScopes resolves the scope string of a request against the client's
// registered scopes. Every requested element must be registered for the
// client; the first violation fails invalid_scope naming the offending value.
// An empty request defaults to the client's full registered scope set, or
// fails invalid_request if the client has none.
func AllowedScopes(client *storage.Client, requested string) ([]string, error) {
	if strings.TrimSpace(requested) == "" {
		if len(client.Scopes) == 0 {
			return nil, ErrInvalidRequest("The request omits scope and the client has no default scopes.")
		}
		scopes := make([]string, len(client.Scopes))
		copy(scopes, client.Scopes)
		return scopes, nil
	}

	requestedScopes := strings.Fields(requested)
	for _, scope := range requestedScopes {
		if !client.HasScope(scope) {
			return nil, ErrInvalidScope(fmt.Sprintf("The client is not allowed to request scope %q.", scope))
		}
	}
	return requestedScopes, nil
}

// ScopesContain reports whether every element of want is present in have.
// Used for subset checks on refresh and introspection paths.
func ScopesContain(have []string, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// JoinScopes renders a scope slice as the space-separated wire form.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// SplitScopes parses the space-separated wire form into a slice.
func SplitScopes(scope string) []string {
	return strings.Fields(scope)
}
