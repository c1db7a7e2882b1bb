// Package pkce implements the Proof Key for Code Exchange verifiers of
// RFC 7636. Verification binds an authorization code to the client-generated
// secret presented at redemption.
package pkce

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// MethodPlain is the plain code_challenge_method. It is the RFC 7636
	// default when a stored code carries a challenge but no method.
	MethodPlain = "plain"

	// MethodS256 is the SHA-256 code_challenge_method.
	MethodS256 = "S256"
)

var (
	ErrMismatch          = errors.New("pkce: code_verifier does not match code_challenge")
	ErrUnsupportedMethod = errors.New("pkce: unsupported code_challenge_method")
	ErrMalformedVerifier = errors.New("pkce: malformed code_verifier")
)

// Verifier checks a code verifier against a stored challenge.
type Verifier interface {
	Name() string
	Verify(verifier, challenge string) bool
}

type plainVerifier struct{}

func (plainVerifier) Name() string { return MethodPlain }

func (plainVerifier) Verify(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
}

type s256Verifier struct{}

func (s256Verifier) Name() string { return MethodS256 }

func (s256Verifier) Verify(verifier, challenge string) bool {
	computed := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// Registry maps code_challenge_method names to verifiers.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry creates a registry with the standard plain and S256 verifiers.
func NewRegistry() *Registry {
	r := &Registry{verifiers: make(map[string]Verifier)}
	r.Register(plainVerifier{})
	r.Register(s256Verifier{})
	return r
}

// Register adds a verifier under its method name.
func (r *Registry) Register(v Verifier) {
	r.verifiers[v.Name()] = v
}

// Supports reports whether the method is registered.
func (r *Registry) Supports(method string) bool {
	_, ok := r.verifiers[method]
	return ok
}

// Verify checks the verifier against the challenge using the method recorded
// on the authorization code. An empty method selects plain per RFC 7636.
// The verifier must satisfy the RFC 7636 length and charset rules.
func (r *Registry) Verify(method, verifier, challenge string) error {
	if method == "" {
		method = MethodPlain
	}
	v, ok := r.verifiers[method]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	if err := CheckVerifierFormat(verifier); err != nil {
		return err
	}
	if !v.Verify(verifier, challenge) {
		return ErrMismatch
	}
	return nil
}

// CheckVerifierFormat enforces the RFC 7636 section 4.1 verifier rules:
// 43-128 characters from [A-Za-z0-9-._~].
func CheckVerifierFormat(verifier string) error {
	if len(verifier) < 43 || len(verifier) > 128 {
		return fmt.Errorf("%w: length %d outside 43..128", ErrMalformedVerifier, len(verifier))
	}
	for _, ch := range verifier {
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') &&
			ch != '-' && ch != '.' && ch != '_' && ch != '~' {
			return fmt.Errorf("%w: invalid character", ErrMalformedVerifier)
		}
	}
	return nil
}
