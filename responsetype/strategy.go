package responsetype

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/oauthkit/oauthkit"
	"github.com/oauthkit/oauthkit/grant"
	"github.com/oauthkit/oauthkit/pkce"
	"github.com/oauthkit/oauthkit/responsemode"
	"github.com/oauthkit/oauthkit/storage"
)

// Strategy holds the shared dependencies of every response type handler.
// Individual handlers are thin views over it: each enables some subset of
// code, access token and id_token issuance.
type Strategy struct {
	config *oauthkit.Config
	codes  storage.AuthorizationCodeStore
	pkce   *pkce.Registry
	issuer *grant.Issuer

	now func() time.Time
}

// NewStrategy creates the shared strategy state.
func NewStrategy(config *oauthkit.Config, codes storage.AuthorizationCodeStore, pkceRegistry *pkce.Registry, issuer *grant.Issuer) *Strategy {
	return &Strategy{
		config: config,
		codes:  codes,
		pkce:   pkceRegistry,
		issuer: issuer,
		now:    time.Now,
	}
}

// Handlers returns every standard response type handler backed by the
// strategy: the three primitives and the four hybrid combinations.
func (s *Strategy) Handlers() []oauthkit.ResponseTypeHandler {
	return []oauthkit.ResponseTypeHandler{
		&handler{s: s, name: TypeCode, withCode: true, defaultMode: responsemode.ModeQuery},
		&handler{s: s, name: TypeToken, withToken: true, defaultMode: responsemode.ModeFragment},
		&handler{s: s, name: TypeIDToken, withIDToken: true, defaultMode: responsemode.ModeFragment},
		&handler{s: s, name: TypeCodeToken, withCode: true, withToken: true, defaultMode: responsemode.ModeFragment},
		&handler{s: s, name: TypeCodeIDToken, withCode: true, withIDToken: true, defaultMode: responsemode.ModeFragment},
		&handler{s: s, name: TypeIDTokenToken, withIDToken: true, withToken: true, defaultMode: responsemode.ModeFragment},
		&handler{s: s, name: TypeCodeIDTokenToken, withCode: true, withIDToken: true, withToken: true, defaultMode: responsemode.ModeFragment},
	}
}

type handler struct {
	s           *Strategy
	name        string
	withCode    bool
	withToken   bool
	withIDToken bool
	defaultMode string
}

func (h *handler) Name() string                { return h.name }
func (h *handler) DefaultResponseMode() string { return h.defaultMode }

func (h *handler) Authorize(ctx context.Context, ar *oauthkit.AuthorizeRequest, client *storage.Client, user *storage.User) (map[string]string, error) {
	scopes, err := oauthkit.AllowedScopes(client, ar.Scope)
	if err != nil {
		return nil, err
	}
	if h.withIDToken && ar.Nonce == "" {
		return nil, oauthkit.ErrInvalidRequest("The nonce parameter is required when id_token is requested.")
	}

	params := map[string]string{}

	var codeHandle string
	if h.withCode {
		codeHandle, err = h.s.issueCode(ctx, ar, client, user, scopes)
		if err != nil {
			return nil, err
		}
		params["code"] = codeHandle
	}

	var accessToken *storage.AccessToken
	if h.withToken {
		accessToken, err = h.s.issuer.IssueAccessToken(ctx, client, user.ID, scopes, "implicit", "")
		if err != nil {
			return nil, err
		}
		params["access_token"] = accessToken.Token
		params["token_type"] = "Bearer"
		params["expires_in"] = strconv.FormatInt(int64(time.Until(accessToken.ExpiresAt).Seconds()), 10)
		params["scope"] = oauthkit.JoinScopes(scopes)
	}

	if h.withIDToken {
		idToken, err := h.s.issueIDToken(client, user, ar.Nonce, accessToken, codeHandle)
		if err != nil {
			return nil, err
		}
		params["id_token"] = idToken
	}

	return params, nil
}

// issueCode validates the PKCE challenge parameters and persists a new
// authorization code bound to the request.
func (s *Strategy) issueCode(ctx context.Context, ar *oauthkit.AuthorizeRequest, client *storage.Client, user *storage.User, scopes []string) (string, error) {
	if err := s.checkChallenge(ar); err != nil {
		return "", err
	}

	now := s.now()
	code := &storage.AuthorizationCode{
		Code:                grant.NewHandle(),
		ClientID:            client.ID,
		UserID:              user.ID,
		RedirectURI:         ar.RedirectURI,
		Scopes:              scopes,
		Nonce:               ar.Nonce,
		CodeChallenge:       ar.CodeChallenge,
		CodeChallengeMethod: ar.CodeChallengeMethod,
		IssuedAt:            now,
		ExpiresAt:           now.Add(s.config.AuthorizationCodeTTL),
	}
	if err := s.codes.SaveAuthorizationCode(ctx, code); err != nil {
		return "", oauthkit.ErrServerError("The authorization code could not be persisted.")
	}
	return code.Code, nil
}

// checkChallenge enforces the server's PKCE policy on the authorization
// request: presence when required, a registered method, and plain only when
// explicitly allowed.
func (s *Strategy) checkChallenge(ar *oauthkit.AuthorizeRequest) error {
	if ar.CodeChallenge == "" {
		if ar.CodeChallengeMethod != "" {
			return oauthkit.ErrInvalidRequest("code_challenge_method was supplied without a code_challenge.")
		}
		if !s.config.DisablePKCE {
			return oauthkit.ErrInvalidRequest("The code_challenge parameter is required.")
		}
		return nil
	}

	method := ar.CodeChallengeMethod
	if method == "" {
		method = pkce.MethodPlain
	}
	if !s.pkce.Supports(method) {
		return oauthkit.ErrInvalidRequest("The code_challenge_method is not supported.")
	}
	if method == pkce.MethodPlain && !s.config.AllowPKCEPlain {
		return oauthkit.ErrInvalidRequest("The plain code_challenge_method is not allowed; use S256.")
	}
	return nil
}

// issueIDToken signs an id_token carrying at_hash and c_hash when an access
// token or code is issued alongside it (OpenID Connect Core sections
// 3.2.2.10 and 3.3.2.11).
func (s *Strategy) issueIDToken(client *storage.Client, user *storage.User, nonce string, accessToken *storage.AccessToken, code string) (string, error) {
	extra := map[string]string{}
	if accessToken != nil {
		extra["at_hash"] = leftmostHash(accessToken.Token)
	}
	if code != "" {
		extra["c_hash"] = leftmostHash(code)
	}
	return s.issuer.IssueIDTokenWithClaims(client, user, nonce, extra)
}

// leftmostHash is the OIDC token hash: base64url of the left half of the
// SHA-256 digest, matching the RS256/HS256 signing algorithms in use here.
func leftmostHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
