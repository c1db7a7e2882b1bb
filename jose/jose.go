// Package jose is the engine's JSON Web Token collaborator. It signs and
// verifies the tokens the protocol engine needs (id_tokens, JARM response
// objects, client assertions, jwt-bearer assertions) on top of
// github.com/golang-jwt/jwt/v5. Key material handling stays behind the
// Signer interface so embedders can swap in an HSM-backed implementation.
package jose

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oauthkit/oauthkit/internal/util"
)

var (
	ErrInvalidSignature = errors.New("jose: invalid signature")
	ErrMalformedToken   = errors.New("jose: malformed token")
)

// Signer signs and verifies JWTs with the server's own key.
type Signer interface {
	// Algorithm is the JWS alg value this signer produces (e.g. RS256).
	Algorithm() string
	Sign(claims map[string]any) (string, error)
	Verify(token string) (map[string]any, error)
}

type hmacSigner struct {
	secret []byte
}

// NewHS256Signer creates a Signer using HMAC-SHA256 with a shared secret.
func NewHS256Signer(secret []byte) Signer {
	return &hmacSigner{secret: secret}
}

func (s *hmacSigner) Algorithm() string { return "HS256" }

func (s *hmacSigner) Sign(claims map[string]any) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
	return tok.SignedString(s.secret)
}

func (s *hmacSigner) Verify(token string) (map[string]any, error) {
	return VerifyWithKey(token, "HS256", s.secret)
}

type rsaSigner struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewRS256Signer creates a Signer using RSASSA-PKCS1-v1_5 with SHA-256.
// keyID, if non-empty, is emitted as the kid header.
func NewRS256Signer(key *rsa.PrivateKey, keyID string) Signer {
	return &rsaSigner{key: key, keyID: keyID}
}

func (s *rsaSigner) Algorithm() string { return "RS256" }

func (s *rsaSigner) Sign(claims map[string]any) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(claims))
	if s.keyID != "" {
		tok.Header["kid"] = s.keyID
	}
	return tok.SignedString(s.key)
}

func (s *rsaSigner) Verify(token string) (map[string]any, error) {
	return VerifyWithKey(token, "RS256", &s.key.PublicKey)
}

// VerifyWithKey verifies a compact JWS with an explicit algorithm and key.
// The algorithm allowlist is strict: a token signed with any other alg fails
// regardless of the key type.
func VerifyWithKey(token, alg string, key any) (map[string]any, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		switch key := key.(type) {
		case []byte, *rsa.PublicKey, *ecdsa.PublicKey:
			return key, nil
		case string:
			return []byte(key), nil
		default:
			return nil, fmt.Errorf("jose: unsupported key type %T", key)
		}
	}, jwt.WithValidMethods([]string{alg}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}
	return map[string]any(claims), nil
}

// Assertion is the validated claim set of a client assertion or jwt-bearer
// assertion.
type Assertion struct {
	Issuer    string
	Subject   string
	Audience  []string
	JTI       string
	ExpiresAt time.Time
	Claims    map[string]any
}

// ParseAssertion verifies the signature of an assertion JWT and extracts the
// registered claims. Signature, exp presence and exp validity are enforced
// here; iss/sub/aud/jti policy belongs to the caller.
func ParseAssertion(token, alg string, key any) (*Assertion, error) {
	claims, err := VerifyWithKey(token, alg, key)
	if err != nil {
		return nil, err
	}
	mc := jwt.MapClaims(claims)

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}
	iss, _ := mc.GetIssuer()
	sub, _ := mc.GetSubject()
	aud, _ := mc.GetAudience()

	a := &Assertion{
		Issuer:    iss,
		Subject:   sub,
		Audience:  aud,
		ExpiresAt: exp.Time,
		Claims:    claims,
	}
	if jti, ok := claims["jti"].(string); ok {
		a.JTI = jti
	}
	return a, nil
}

// HasAudience reports whether the assertion's aud claim contains the value.
// URLs compare with trailing slashes stripped so an issuer configured as
// "https://as.example.com/" still matches assertions minted against the
// bare host.
func (a *Assertion) HasAudience(aud string) bool {
	want := util.NormalizeURL(aud)
	for _, v := range a.Audience {
		if util.NormalizeURL(v) == want {
			return true
		}
	}
	return false
}
