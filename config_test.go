package oauthkit

import (
	"testing"
	"time"
)

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig("https://as.example.com")

	if c.Issuer != "https://as.example.com" {
		t.Errorf("Issuer = %q", c.Issuer)
	}
	if c.AuthorizationCodeTTL != 10*time.Minute {
		t.Errorf("AuthorizationCodeTTL = %v", c.AuthorizationCodeTTL)
	}
	if c.AccessTokenTTL != time.Hour {
		t.Errorf("AccessTokenTTL = %v", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL != 30*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v", c.RefreshTokenTTL)
	}
	if c.DeviceCodeTTL != 15*time.Minute {
		t.Errorf("DeviceCodeTTL = %v", c.DeviceCodeTTL)
	}
	if c.DevicePollInterval != 5*time.Second {
		t.Errorf("DevicePollInterval = %v", c.DevicePollInterval)
	}
	if c.DisableRefreshTokenRotation {
		t.Error("rotation should be on by default")
	}
	if c.DisableReuseRevocation {
		t.Error("reuse revocation should be on by default")
	}
	if c.DisablePKCE {
		t.Error("PKCE should be required by default")
	}
	if c.AllowPKCEPlain {
		t.Error("AllowPKCEPlain should default to false")
	}
}

func TestConfig_ZeroValueIsSecure(t *testing.T) {
	// Embedders passing a literal Config through ApplyDefaults must get the
	// same security posture as NewConfig: PKCE required, rotation on,
	// reuse revocation on.
	c := &Config{Issuer: "https://as.example.com"}
	c.ApplyDefaults(nil)

	if c.DisablePKCE {
		t.Error("zero-value config does not require PKCE")
	}
	if c.DisableRefreshTokenRotation {
		t.Error("zero-value config does not rotate refresh tokens")
	}
	if c.DisableReuseRevocation {
		t.Error("zero-value config does not revoke on rotation reuse")
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	c := &Config{
		Issuer:         "https://as.example.com",
		AccessTokenTTL: 5 * time.Minute,
	}
	c.ApplyDefaults(nil)

	if c.AccessTokenTTL != 5*time.Minute {
		t.Errorf("AccessTokenTTL = %v, explicit value overwritten", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL != 30*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, default not applied", c.RefreshTokenTTL)
	}
}
