package clientauth

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/storage"
)

// SecretBasic authenticates clients via the HTTP Basic authorization header
// (RFC 6749 section 2.3.1). Identifier and secret are form-urlencoded inside
// the credentials.
type SecretBasic struct {
	clients storage.ClientStore
}

// NewSecretBasic creates the client_secret_basic strategy.
func NewSecretBasic(clients storage.ClientStore) *SecretBasic {
	return &SecretBasic{clients: clients}
}

func (b *SecretBasic) Name() string { return MethodSecretBasic }

func (b *SecretBasic) Matches(req *oauthkit.Request) bool {
	auth := req.Header.Get("Authorization")
	return strings.HasPrefix(strings.ToLower(auth), "basic ")
}

func (b *SecretBasic) Authenticate(ctx context.Context, req *oauthkit.Request) (*storage.Client, error) {
	clientID, secret, ok := decodeBasicAuth(req.Header.Get("Authorization"))
	if !ok {
		return nil, oauthkit.ErrInvalidClient("Malformed Basic authorization header.")
	}

	client, err := b.clients.GetClient(ctx, clientID)
	if verr := verifyClientSecret(client, err, secret); verr != nil {
		return nil, verr
	}
	if err := requireAuthMethod(client, MethodSecretBasic); err != nil {
		return nil, err
	}
	return client, nil
}

func decodeBasicAuth(header string) (clientID, secret string, ok bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "basic") {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", "", false
	}
	id, pw, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", false
	}
	// RFC 6749 requires both halves to be form-urlencoded.
	decodedID, err := url.QueryUnescape(id)
	if err != nil {
		return "", "", false
	}
	decodedPW, err := url.QueryUnescape(pw)
	if err != nil {
		return "", "", false
	}
	return decodedID, decodedPW, decodedID != ""
}

// SecretPost authenticates clients via client_id and client_secret form
// body parameters.
type SecretPost struct {
	clients storage.ClientStore
}

// NewSecretPost creates the client_secret_post strategy.
func NewSecretPost(clients storage.ClientStore) *SecretPost {
	return &SecretPost{clients: clients}
}

func (p *SecretPost) Name() string { return MethodSecretPost }

func (p *SecretPost) Matches(req *oauthkit.Request) bool {
	return req.FormValue("client_id") != "" && req.FormValue("client_secret") != ""
}

func (p *SecretPost) Authenticate(ctx context.Context, req *oauthkit.Request) (*storage.Client, error) {
	clientID := req.FormValue("client_id")
	secret := req.FormValue("client_secret")

	client, err := p.clients.GetClient(ctx, clientID)
	if verr := verifyClientSecret(client, err, secret); verr != nil {
		return nil, verr
	}
	if err := requireAuthMethod(client, MethodSecretPost); err != nil {
		return nil, err
	}
	return client, nil
}

// None authenticates public clients, which present only their client_id.
// Only clients registered with method "none" pass.
type None struct {
	clients storage.ClientStore
}

// NewNone creates the none strategy.
func NewNone(clients storage.ClientStore) *None {
	return &None{clients: clients}
}

func (n *None) Name() string { return MethodNone }

func (n *None) Matches(req *oauthkit.Request) bool {
	if req.FormValue("client_id") == "" {
		return false
	}
	if req.FormValue("client_secret") != "" || req.FormValue("client_assertion") != "" {
		return false
	}
	return !strings.HasPrefix(strings.ToLower(req.Header.Get("Authorization")), "basic ")
}

func (n *None) Authenticate(ctx context.Context, req *oauthkit.Request) (*storage.Client, error) {
	client, err := n.clients.GetClient(ctx, req.FormValue("client_id"))
	if err != nil {
		return nil, oauthkit.ErrInvalidClient("Client authentication failed.")
	}
	if !client.IsPublic() {
		return nil, oauthkit.ErrInvalidClient("The client is confidential and must authenticate.")
	}
	return client, nil
}
