package jose

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return key
}

func TestHS256Signer_RoundTrip(t *testing.T) {
	signer := NewHS256Signer([]byte("0123456789abcdef0123456789abcdef"))
	if signer.Algorithm() != "HS256" {
		t.Errorf("Algorithm() = %q", signer.Algorithm())
	}

	token, err := signer.Sign(map[string]any{
		"iss": "https://as.example.com",
		"sub": "user-1",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims["sub"] != "user-1" {
		t.Errorf("sub = %v", claims["sub"])
	}
}

func TestRS256Signer_RoundTrip(t *testing.T) {
	key := testRSAKey(t)
	signer := NewRS256Signer(key, "key-1")
	if signer.Algorithm() != "RS256" {
		t.Errorf("Algorithm() = %q", signer.Algorithm())
	}

	token, err := signer.Sign(map[string]any{
		"iss": "https://as.example.com",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := signer.Verify(token); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	// Verification against a different public key fails.
	other := testRSAKey(t)
	if _, err := VerifyWithKey(token, "RS256", &other.PublicKey); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifyWithKey() with wrong key error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyWithKey_AlgorithmConfusion(t *testing.T) {
	// A token HMAC-signed with the public key material must not verify on
	// the RS256 path.
	key := testRSAKey(t)
	secret := []byte("shared")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := VerifyWithKey(signed, "RS256", &key.PublicKey); err == nil {
		t.Fatal("VerifyWithKey() accepted an HS256 token on the RS256 allowlist")
	}
}

func TestVerifyWithKey_Malformed(t *testing.T) {
	_, err := VerifyWithKey("not-a-jwt", "HS256", []byte("secret"))
	if !errors.Is(err, ErrMalformedToken) {
		t.Errorf("VerifyWithKey() error = %v, want ErrMalformedToken", err)
	}
}

func TestVerifyWithKey_Expired(t *testing.T) {
	signer := NewHS256Signer([]byte("secret"))
	token, err := signer.Sign(map[string]any{
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := signer.Verify(token); err == nil {
		t.Fatal("Verify() accepted an expired token")
	}
}

func TestParseAssertion(t *testing.T) {
	signer := NewHS256Signer([]byte("secret"))
	exp := time.Now().Add(time.Minute)
	token, err := signer.Sign(map[string]any{
		"iss": "client-1",
		"sub": "client-1",
		"aud": "https://as.example.com",
		"jti": "nonce-1",
		"exp": exp.Unix(),
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	a, err := ParseAssertion(token, "HS256", []byte("secret"))
	if err != nil {
		t.Fatalf("ParseAssertion() error = %v", err)
	}
	if a.Issuer != "client-1" || a.Subject != "client-1" {
		t.Errorf("iss/sub = %q/%q", a.Issuer, a.Subject)
	}
	if a.JTI != "nonce-1" {
		t.Errorf("JTI = %q", a.JTI)
	}
	if a.ExpiresAt.Unix() != exp.Unix() {
		t.Errorf("ExpiresAt = %v, want %v", a.ExpiresAt, exp)
	}
}

func TestParseAssertion_MissingExp(t *testing.T) {
	signer := NewHS256Signer([]byte("secret"))
	token, err := signer.Sign(map[string]any{"iss": "client-1"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := ParseAssertion(token, "HS256", []byte("secret")); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("ParseAssertion() error = %v, want ErrMalformedToken", err)
	}
}

func TestAssertion_HasAudience(t *testing.T) {
	a := &Assertion{Audience: []string{"https://as.example.com/", "other"}}

	tests := []struct {
		aud  string
		want bool
	}{
		{"https://as.example.com", true},
		{"https://as.example.com/", true},
		{"other", true},
		{"https://evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := a.HasAudience(tt.aud); got != tt.want {
			t.Errorf("HasAudience(%q) = %v, want %v", tt.aud, got, tt.want)
		}
	}
}
