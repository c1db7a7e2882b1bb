// Package clientauth implements the token endpoint client authentication
// strategies: client_secret_basic, client_secret_post, none,
// client_secret_jwt and private_key_jwt. The endpoint selects the single
// strategy whose Matches reports true; zero or more than one match fails
// invalid_client.
package clientauth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/storage"
)

// Method name constants, matching the token_endpoint_auth_method metadata
// values of RFC 7591.
const (
	MethodSecretBasic   = "client_secret_basic"
	MethodSecretPost    = "client_secret_post"
	MethodNone          = "none"
	MethodSecretJWT     = "client_secret_jwt"
	MethodPrivateKeyJWT = "private_key_jwt"
)

// dummyBcryptHash is compared against when the client does not exist or has
// no secret, so authentication cost does not reveal client existence.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Selector picks and runs the one authentication strategy a request used.
type Selector struct {
	methods []oauthkit.ClientAuthenticator
}

// NewSelector creates a selector over the given strategies, consulted in
// order for Matches.
func NewSelector(methods ...oauthkit.ClientAuthenticator) *Selector {
	return &Selector{methods: methods}
}

// Authenticate finds the single matching strategy and runs it. Ambiguous
// requests (multiple credential mechanisms at once) are rejected, as are
// requests carrying no recognizable client credentials.
func (s *Selector) Authenticate(ctx context.Context, req *oauthkit.Request) (*storage.Client, error) {
	var matched oauthkit.ClientAuthenticator
	for _, m := range s.methods {
		if !m.Matches(req) {
			continue
		}
		if matched != nil {
			return nil, oauthkit.ErrInvalidClient("The request uses more than one client authentication method.")
		}
		matched = m
	}
	if matched == nil {
		return nil, oauthkit.ErrInvalidClient("No client authentication method matched the request.")
	}
	return matched.Authenticate(ctx, req)
}

// verifyClientSecret compares a presented secret against the stored bcrypt
// hash. The bcrypt comparison always runs, against a dummy hash when the
// client is unknown or has no secret stored.
func verifyClientSecret(client *storage.Client, clientErr error, presented string) error {
	hash := dummyBcryptHash
	if clientErr == nil && client != nil && client.SecretHash != "" {
		hash = client.SecretHash
	}

	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented))

	if clientErr != nil || client == nil {
		return oauthkit.ErrInvalidClient("Client authentication failed.")
	}
	if client.SecretHash == "" || bcryptErr != nil {
		return oauthkit.ErrInvalidClient("Client authentication failed.")
	}
	if client.SecretExpired(time.Now()) {
		return oauthkit.ErrInvalidClient("The client secret has expired.")
	}
	return nil
}

// requireAuthMethod checks the client is registered for the method that was
// actually used.
func requireAuthMethod(client *storage.Client, method string) error {
	if client.TokenEndpointAuthMethod != method {
		return oauthkit.ErrInvalidClient("The client is not registered for this authentication method.")
	}
	return nil
}
