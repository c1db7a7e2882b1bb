// Package compose wires the engine's strategies, endpoints and cross-cutting
// concerns into a ready AuthorizationServer. It is the one place that knows
// every concrete type; embedders needing a different composition can use it
// as a template and assemble the pieces themselves.
package compose

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/clientauth"
	"github.com/oauthkit/oauthkit/endpoint"
	"github.com/oauthkit/oauthkit/grant"
	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/jose"
	"github.com/oauthkit/oauthkit/pkce"
	"github.com/oauthkit/oauthkit/responsemode"
	"github.com/oauthkit/oauthkit/responsetype"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

// Options collects the collaborators the engine cannot provide itself.
type Options struct {
	// Config is the engine configuration. Required.
	Config *oauthkit.Config

	// Store is the persistence backend. Required.
	Store storage.Store

	// Signer signs id_tokens and JARM response objects. Optional; without it
	// the id_token response types and JWT response modes are not registered.
	Signer jose.Signer

	// UserSource resolves the resource owner on authorization requests when
	// no consent hand-off is in play. Required for the authorization
	// endpoint's interactive flow.
	UserSource oauthkit.UserSource

	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Instrumentation provides metrics and tracing. Optional; when nil a
	// disabled instance is created.
	Instrumentation *instrumentation.Instrumentation

	// AuditEnabled turns on security audit logging. Default false.
	AuditEnabled bool

	// TokenRequestsPerSecond rate limits the token endpoint per client.
	// Zero disables the default of 10 requests per second with burst 20.
	TokenRequestsPerSecond int

	// RegistrationsPerMinute rate limits dynamic client registration per
	// remote address. Zero means the default of 6 per minute.
	RegistrationsPerMinute int
}

// New assembles a complete authorization server: every grant type, client
// authentication method, response type and response mode the engine
// implements, plus all seven protocol endpoints.
func New(opts Options) (*oauthkit.AuthorizationServer, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("compose: Config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("compose: Store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.Config.ApplyDefaults(logger)

	inst := opts.Instrumentation
	if inst == nil {
		var err error
		inst, err = instrumentation.New(instrumentation.Config{Enabled: false})
		if err != nil {
			return nil, fmt.Errorf("compose: instrumentation: %w", err)
		}
	}
	metrics := inst.Metrics()

	auditor := security.NewAuditor(logger, opts.AuditEnabled)
	auditor.SetMetrics(metrics)

	tokenRPS := opts.TokenRequestsPerSecond
	if tokenRPS <= 0 {
		tokenRPS = 10
	}
	tokenLimiter := security.NewRateLimiter(tokenRPS, tokenRPS*2, logger)

	regPerMinute := opts.RegistrationsPerMinute
	if regPerMinute <= 0 {
		regPerMinute = 6
	}
	regLimiter := security.NewClientRegistrationRateLimiterWithConfig(
		regPerMinute, time.Minute, security.DefaultMaxRegistrationEntries, logger)

	pkceRegistry := pkce.NewRegistry()

	selector := clientauth.NewSelector(
		clientauth.NewSecretBasic(opts.Store),
		clientauth.NewSecretPost(opts.Store),
		clientauth.NewSecretJWT(opts.Store, opts.Store, opts.Config.Issuer),
		clientauth.NewPrivateKeyJWT(opts.Store, opts.Store, opts.Config.Issuer),
		clientauth.NewNone(opts.Store),
	)

	issuer := grant.NewIssuer(opts.Config, opts.Store, opts.Store, opts.Signer)

	grants := grant.NewRegistry(
		grant.NewAuthorizationCode(opts.Config, opts.Store, pkceRegistry, issuer, auditor),
		grant.NewClientCredentials(issuer, auditor),
		grant.NewPassword(opts.Store, issuer, auditor),
		grant.NewRefreshToken(opts.Config, opts.Store, issuer, auditor),
		grant.NewJWTBearer(opts.Store, opts.Store, issuer, auditor, opts.Config.Issuer),
		grant.NewDeviceCode(opts.Config, opts.Store, issuer, auditor),
	)

	strategy := responsetype.NewStrategy(opts.Config, opts.Store, pkceRegistry, issuer)
	handlers := strategy.Handlers()
	if opts.Signer == nil {
		// Without a signer id_tokens cannot be issued; code and token
		// response types stay available.
		kept := handlers[:0]
		for _, h := range handlers {
			if !strings.Contains(h.Name(), responsetype.TypeIDToken) {
				kept = append(kept, h)
			}
		}
		handlers = kept
	}
	responseTypes := responsetype.NewRegistry(handlers...)

	modes := []oauthkit.ResponseMode{
		responsemode.Query{},
		responsemode.Fragment{},
		responsemode.FormPost{},
	}
	if opts.Signer != nil {
		for _, inner := range []oauthkit.ResponseMode{responsemode.Query{}, responsemode.Fragment{}, responsemode.FormPost{}} {
			modes = append(modes, responsemode.NewJWTMode(inner, opts.Signer, opts.Config.Issuer, opts.Config.JWTResponseModeTTL))
		}
	}
	responseModes := responsemode.NewRegistry(modes...)

	return oauthkit.NewAuthorizationServer(opts.Config, logger,
		endpoint.NewAuthorize(opts.Store, responseTypes, responseModes, opts.UserSource, metrics),
		endpoint.NewToken(selector, grants, tokenLimiter, auditor, metrics),
		endpoint.NewIntrospect(selector, opts.Store, opts.Config.Issuer, metrics),
		endpoint.NewRevoke(selector, opts.Store, auditor, metrics),
		endpoint.NewUserinfo(opts.Store, metrics),
		endpoint.NewDevice(opts.Config, selector, opts.Store, auditor, metrics),
		endpoint.NewRegister(opts.Config, opts.Store, regLimiter, auditor, metrics),
	)
}
