package security

import "time"

const (
	// DefaultClockSkewGracePeriod is how far past its stated expiry a token
	// or code is still accepted, absorbing NTP drift between the machines
	// involved. 5 seconds covers typical drift without materially extending
	// token lifetime.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsTokenExpired reports whether expiresAt has passed, applying the default
// clock skew grace period.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod reports whether expiresAt has passed by more
// than gracePeriod. A zero expiresAt means no expiration.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}

// IsTokenExpiringSoon reports whether expiresAt falls within threshold from
// now.
func IsTokenExpiringSoon(expiresAt time.Time, threshold time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}

	return time.Now().Add(threshold).After(expiresAt)
}
