package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/clientauth"
	"github.com/oauthkit/oauthkit/grant"
	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/responsetype"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// Register is the dynamic client registration endpoint (RFC 7591). Secrets
// are generated server-side and returned exactly once; only the bcrypt hash
// is stored for basic/post authentication.
type Register struct {
	config  *oauthkit.Config
	clients storage.ClientStore
	limiter *security.ClientRegistrationRateLimiter
	auditor *security.Auditor
	metrics *instrumentation.Metrics

	now func() time.Time
}

// NewRegister creates the registration endpoint. The limiter keys on the
// remote address; registration is the one operation an unauthenticated
// caller can use to grow storage.
func NewRegister(config *oauthkit.Config, store storage.Store, limiter *security.ClientRegistrationRateLimiter, auditor *security.Auditor, metrics *instrumentation.Metrics) *Register {
	return &Register{
		config:  config,
		clients: store,
		limiter: limiter,
		auditor: auditor,
		metrics: metrics,
		now:     time.Now,
	}
}

func (e *Register) Name() string      { return "register" }
func (e *Register) Path() string      { return "/oauth/register" }
func (e *Register) Methods() []string { return []string{http.MethodPost} }

func (e *Register) Handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	started := time.Now()
	resp := e.handle(ctx, req)
	e.metrics.RecordHTTPRequest(ctx, req.Method, e.Path(), resp.Status, float64(time.Since(started).Milliseconds()))
	return resp
}

func (e *Register) handle(ctx context.Context, req *oauthkit.Request) *oauthkit.Response {
	if !e.limiter.Allow(req.RemoteAddr) {
		e.metrics.RecordRateLimitExceeded(ctx, "register")
		return errorJSON(oauthkit.ErrTemporarilyUnavailable("Too many registration requests; retry later."))
	}

	var reg oauthkit.ClientRegistrationRequest
	if err := json.Unmarshal(req.Body, &reg); err != nil {
		return errorJSON(oauthkit.ErrInvalidRequest("The registration document is not valid JSON."))
	}
	if err := validateRegistration(&reg, e.config.SupportedScopes); err != nil {
		return errorJSON(err)
	}

	authMethod := reg.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = clientauth.MethodSecretBasic
	}

	now := e.now()
	client := &storage.Client{
		ID:                      uuid.NewString(),
		RedirectURIs:            reg.RedirectURIs,
		GrantTypes:              reg.GrantTypes,
		ResponseTypes:           reg.ResponseTypes,
		Scopes:                  oauthkit.SplitScopes(reg.Scope),
		TokenEndpointAuthMethod: authMethod,
		Name:                    reg.ClientName,
		CreatedAt:               now,
	}
	if len(client.GrantTypes) == 0 {
		client.GrantTypes = []string{grant.TypeAuthorizationCode, grant.TypeRefreshToken}
	}
	if len(client.ResponseTypes) == 0 {
		client.ResponseTypes = []string{responsetype.TypeCode}
	}
	if len(client.Scopes) == 0 {
		client.Scopes = e.config.SupportedScopes
	}

	var secret string
	if authMethod != clientauth.MethodNone {
		secret = grant.NewHandle()
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return errorJSON(oauthkit.ErrServerError("The client secret could not be generated."))
		}
		client.SecretHash = string(hash)
		client.SecretIssuedAt = now
		if authMethod == clientauth.MethodSecretJWT {
			// HMAC assertions need the shared secret itself.
			client.Secret = secret
		}
	}

	if err := e.clients.SaveClient(ctx, client); err != nil {
		return errorJSON(oauthkit.ErrServerError("The client could not be persisted."))
	}

	clientType := "confidential"
	if client.IsPublic() {
		clientType = "public"
	}
	e.auditor.LogClientRegistered(client.ID, clientType)
	e.metrics.RecordClientRegistration(ctx, clientType)

	return oauthkit.JSONResponse(http.StatusCreated, &oauthkit.ClientRegistrationResponse{
		ClientID:                client.ID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        now.Unix(),
		ClientSecretExpiresAt:   0,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		ClientName:              client.Name,
		Scope:                   oauthkit.JoinScopes(client.Scopes),
	})
}

// validateRegistration checks the registration document: redirect URIs must
// be absolute and fragment-free, the auth method must be a known one, and
// requested scopes must fall within the server's supported set.
func validateRegistration(reg *oauthkit.ClientRegistrationRequest, supportedScopes []string) error {
	for _, raw := range reg.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return oauthkit.ErrInvalidRequest("Redirect URIs must be absolute.")
		}
		if u.Fragment != "" {
			return oauthkit.ErrInvalidRequest("Redirect URIs must not contain a fragment.")
		}
	}
	switch reg.TokenEndpointAuthMethod {
	case "", clientauth.MethodSecretBasic, clientauth.MethodSecretPost, clientauth.MethodNone,
		clientauth.MethodSecretJWT, clientauth.MethodPrivateKeyJWT:
	default:
		return oauthkit.ErrInvalidRequest("The token_endpoint_auth_method is not supported.")
	}
	if len(supportedScopes) > 0 && reg.Scope != "" {
		if !oauthkit.ScopesContain(supportedScopes, oauthkit.SplitScopes(reg.Scope)) {
			return oauthkit.ErrInvalidScope("The requested scope is not supported by this server.")
		}
	}
	return nil
}
