// Package storage defines the data model and service interfaces the engine
// persists through. It supports various backend implementations including
// in-memory and Redis.
//
// Correctness under concurrent redemption depends entirely on the atomic
// claim primitives (AtomicClaim*): each returns success at most once per
// handle, and every other caller observes a typed error the engine maps to
// invalid_grant. The engine itself performs no locking.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by stores. Callers match with errors.Is.
var (
	ErrNotFound = errors.New("storage: not found")
	ErrExpired  = errors.New("storage: expired")
	ErrRevoked  = errors.New("storage: revoked")

	// ErrAlreadyUsed signals that a single-use artifact was claimed a second
	// time. For authorization codes the store still returns the code record
	// alongside this error so the caller can revoke everything issued from it.
	ErrAlreadyUsed = errors.New("storage: already used")

	// ErrReplayed signals that a jti was presented more than once.
	ErrReplayed = errors.New("storage: assertion replayed")
)

// IsNotFound reports whether err is any of the "token is dead" conditions
// that must surface as invalid_grant without leaking which one applied.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) || errors.Is(err, ErrRevoked)
}

// ClientStore persists registered OAuth clients.
type ClientStore interface {
	SaveClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	ListClients(ctx context.Context) ([]*Client, error)
}

// UserStore resolves resource owners. AuthenticateUser backs the password
// grant; implementations decide how credentials are checked.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*User, error)
}

// AuthorizationCodeStore persists authorization codes.
type AuthorizationCodeStore interface {
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// AtomicClaimAuthorizationCode atomically checks that the code is unused
	// and marks it used. Exactly one concurrent caller succeeds. On
	// ErrAlreadyUsed the stored code is returned anyway so the caller can
	// run reuse detection (revoke everything chained to it).
	AtomicClaimAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	RevokeAuthorizationCode(ctx context.Context, code string) error
}

// AccessTokenStore persists access token handles.
type AccessTokenStore interface {
	SaveAccessToken(ctx context.Context, token *AccessToken) error
	GetAccessToken(ctx context.Context, handle string) (*AccessToken, error)
	RevokeAccessToken(ctx context.Context, handle string) error

	// RevokeAccessTokensByCode revokes every access token issued from the
	// given authorization code. Returns the number of tokens revoked.
	RevokeAccessTokensByCode(ctx context.Context, code string) (int, error)
}

// RefreshTokenStore persists refresh token handles.
type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, handle string) (*RefreshToken, error)

	// AtomicClaimRefreshToken atomically retrieves and invalidates a refresh
	// token for rotation. Exactly one concurrent caller succeeds. A claim on
	// an already-consumed handle returns the stored token alongside
	// ErrRevoked so the caller can run reuse detection; dead handles return
	// ErrNotFound or ErrExpired.
	AtomicClaimRefreshToken(ctx context.Context, handle string) (*RefreshToken, error)

	RevokeRefreshToken(ctx context.Context, handle string) error

	// RevokeRefreshTokensByCode revokes every refresh token issued from the
	// given authorization code. Returns the number of tokens revoked.
	RevokeRefreshTokensByCode(ctx context.Context, code string) (int, error)
}

// DeviceCodeStore persists device codes for the device authorization grant.
type DeviceCodeStore interface {
	SaveDeviceCode(ctx context.Context, code *DeviceCode) error
	GetDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error)
	GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)

	// UpdateDeviceCode persists state transitions (authorized/denied) and
	// poll bookkeeping (LastPolledAt).
	UpdateDeviceCode(ctx context.Context, code *DeviceCode) error

	// AtomicClaimDeviceCode consumes an authorized device code exactly once.
	// A second claim returns ErrAlreadyUsed.
	AtomicClaimDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error)
}

// ReplayStore is the jti replay cache for JWT client assertions and
// jwt-bearer grant assertions.
type ReplayStore interface {
	// ClaimJTI records the jti if unseen; a second claim before expiresAt
	// returns ErrReplayed.
	ClaimJTI(ctx context.Context, jti string, expiresAt time.Time) error
}

// GrantSessionStore persists the login/consent hand-off records used by the
// authorization endpoint's interactive flow.
type GrantSessionStore interface {
	SaveGrantSession(ctx context.Context, session *GrantSession) error
	GetGrantSessionByLoginChallenge(ctx context.Context, challenge string) (*GrantSession, error)
	GetGrantSessionByConsentChallenge(ctx context.Context, challenge string) (*GrantSession, error)
	DeleteGrantSession(ctx context.Context, loginChallenge string) error
}

// Store aggregates every service interface the engine consumes. The memory
// and redis implementations satisfy the whole of it; callers that bring
// separate backends can compose individual interfaces instead.
type Store interface {
	ClientStore
	UserStore
	AuthorizationCodeStore
	AccessTokenStore
	RefreshTokenStore
	DeviceCodeStore
	ReplayStore
	GrantSessionStore
}
