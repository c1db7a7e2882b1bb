// Package redis implements storage.Store on Redis, for deployments where
// several server instances share token state. Single-use semantics rely on
// Redis-side atomic primitives (SET NX, GETDEL), so concurrent redemptions
// against different instances still resolve to one winner.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

const (
	keyClient       = "oauth:client:"
	keyUser         = "oauth:user:"
	keyUserByName   = "oauth:user_by_name:"
	keyPassword     = "oauth:password:"
	keyCode         = "oauth:code:"
	keyCodeClaim    = "oauth:code_claim:"
	keyAccessToken  = "oauth:at:"
	keyRefreshToken = "oauth:rt:"
	keyRefreshClaim = "oauth:rt_claim:"
	keyDeviceCode   = "oauth:dc:"
	keyDeviceClaim  = "oauth:dc_claim:"
	keyUserCode     = "oauth:uc:"
	keyJTI          = "oauth:jti:"
	keySession      = "oauth:session:"
	keyConsent      = "oauth:consent:"
	keyATByCode     = "oauth:at_by_code:"
	keyRTByCode     = "oauth:rt_by_code:"
	keyClientSet    = "oauth:clients"
)

// markerTTL bounds the claim markers that outlive their records so replays
// of long-dead handles still read as already-used rather than unknown.
const markerTTL = 24 * time.Hour

var _ storage.Store = (*Store)(nil)

// Store is a Redis-backed storage.Store.
type Store struct {
	client redis.UniversalClient
	enc    *security.Encryptor
}

// Option configures a Store.
type Option func(*Store)

// WithEncryptor encrypts every stored record at rest. Useful when the Redis
// deployment is shared with other tenants.
func WithEncryptor(enc *security.Encryptor) Option {
	return func(s *Store) { s.enc = enc }
}

// New creates a store over an established Redis client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func recordTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt) + security.DefaultClockSkewGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	payload := string(raw)
	if s.enc != nil {
		payload, err = s.enc.Encrypt(payload)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
	}
	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	if s.enc != nil {
		raw, err = s.enc.Decrypt(raw)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", key, err)
		}
	}
	return json.Unmarshal([]byte(raw), v)
}

// --- clients ---

func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if err := s.setJSON(ctx, keyClient+client.ID, client, 0); err != nil {
		return err
	}
	return s.client.SAdd(ctx, keyClientSet, client.ID).Err()
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var client storage.Client
	if err := s.getJSON(ctx, keyClient+clientID, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ids, err := s.client.SMembers(ctx, keyClientSet).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*storage.Client, 0, len(ids))
	for _, id := range ids {
		client, err := s.GetClient(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, client)
	}
	return out, nil
}

// --- users ---

// SaveUser registers a resource owner; the password, when non-empty, is
// stored as a bcrypt hash for the password grant.
func (s *Store) SaveUser(ctx context.Context, user *storage.User, password string) error {
	if err := s.setJSON(ctx, keyUser+user.ID, user, 0); err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyUserByName+user.Username, user.ID, 0).Err(); err != nil {
		return err
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		return s.client.Set(ctx, keyPassword+user.Username, hash, 0).Err()
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*storage.User, error) {
	var user storage.User
	if err := s.getJSON(ctx, keyUser+userID, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) AuthenticateUser(ctx context.Context, username, password string) (*storage.User, error) {
	hash, err := s.client.Get(ctx, keyPassword+username).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, storage.ErrNotFound
	}
	id, err := s.client.Get(ctx, keyUserByName+username).Result()
	if err != nil {
		return nil, storage.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

// --- authorization codes ---

func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	return s.setJSON(ctx, keyCode+code.Code, code, recordTTL(code.ExpiresAt))
}

func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var c storage.AuthorizationCode
	if err := s.getJSON(ctx, keyCode+code, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) AtomicClaimAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	c, err := s.GetAuthorizationCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if c.Revoked {
		return nil, storage.ErrRevoked
	}
	if security.IsTokenExpired(c.ExpiresAt) {
		return nil, storage.ErrExpired
	}

	// SET NX on the claim marker decides the single winner.
	won, err := s.client.SetNX(ctx, keyCodeClaim+code, 1, markerTTL).Result()
	if err != nil {
		return nil, err
	}
	if !won {
		c.Used = true
		return c, storage.ErrAlreadyUsed
	}
	c.Used = true
	if err := s.setJSON(ctx, keyCode+code, c, recordTTL(c.ExpiresAt)); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) RevokeAuthorizationCode(ctx context.Context, code string) error {
	c, err := s.GetAuthorizationCode(ctx, code)
	if err != nil {
		return err
	}
	c.Revoked = true
	return s.setJSON(ctx, keyCode+code, c, recordTTL(c.ExpiresAt))
}

// --- access tokens ---

func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if err := s.setJSON(ctx, keyAccessToken+token.Token, token, recordTTL(token.ExpiresAt)); err != nil {
		return err
	}
	if token.AuthorizationCode != "" {
		pipe := s.client.Pipeline()
		pipe.SAdd(ctx, keyATByCode+token.AuthorizationCode, token.Token)
		pipe.ExpireAt(ctx, keyATByCode+token.AuthorizationCode, token.ExpiresAt.Add(markerTTL))
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, handle string) (*storage.AccessToken, error) {
	var t storage.AccessToken
	if err := s.getJSON(ctx, keyAccessToken+handle, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) RevokeAccessToken(ctx context.Context, handle string) error {
	t, err := s.GetAccessToken(ctx, handle)
	if err != nil {
		return err
	}
	t.Revoked = true
	return s.setJSON(ctx, keyAccessToken+handle, t, recordTTL(t.ExpiresAt))
}

func (s *Store) RevokeAccessTokensByCode(ctx context.Context, code string) (int, error) {
	handles, err := s.client.SMembers(ctx, keyATByCode+code).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, h := range handles {
		if err := s.RevokeAccessToken(ctx, h); err == nil {
			n++
		}
	}
	return n, nil
}

// --- refresh tokens ---

func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if err := s.setJSON(ctx, keyRefreshToken+token.Token, token, recordTTL(token.ExpiresAt)); err != nil {
		return err
	}
	if token.AuthorizationCode != "" {
		pipe := s.client.Pipeline()
		pipe.SAdd(ctx, keyRTByCode+token.AuthorizationCode, token.Token)
		pipe.ExpireAt(ctx, keyRTByCode+token.AuthorizationCode, token.ExpiresAt.Add(markerTTL))
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, handle string) (*storage.RefreshToken, error) {
	var t storage.RefreshToken
	if err := s.getJSON(ctx, keyRefreshToken+handle, &t); err != nil {
		return nil, err
	}
	if t.Revoked {
		return nil, storage.ErrRevoked
	}
	return &t, nil
}

func (s *Store) AtomicClaimRefreshToken(ctx context.Context, handle string) (*storage.RefreshToken, error) {
	var t storage.RefreshToken
	if err := s.getJSON(ctx, keyRefreshToken+handle, &t); err != nil {
		return nil, err
	}
	if security.IsTokenExpired(t.ExpiresAt) {
		return nil, storage.ErrExpired
	}
	if t.Revoked {
		return &t, storage.ErrRevoked
	}

	won, err := s.client.SetNX(ctx, keyRefreshClaim+handle, 1, markerTTL).Result()
	if err != nil {
		return nil, err
	}
	if !won {
		return &t, storage.ErrRevoked
	}
	revoked := t
	revoked.Revoked = true
	if err := s.setJSON(ctx, keyRefreshToken+handle, &revoked, recordTTL(t.ExpiresAt)); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, handle string) error {
	var t storage.RefreshToken
	if err := s.getJSON(ctx, keyRefreshToken+handle, &t); err != nil {
		return err
	}
	t.Revoked = true
	return s.setJSON(ctx, keyRefreshToken+handle, &t, recordTTL(t.ExpiresAt))
}

func (s *Store) RevokeRefreshTokensByCode(ctx context.Context, code string) (int, error) {
	handles, err := s.client.SMembers(ctx, keyRTByCode+code).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, h := range handles {
		if err := s.RevokeRefreshToken(ctx, h); err == nil {
			n++
		}
	}
	return n, nil
}

// --- device codes ---

func (s *Store) SaveDeviceCode(ctx context.Context, code *storage.DeviceCode) error {
	ttl := recordTTL(code.ExpiresAt)
	if err := s.setJSON(ctx, keyDeviceCode+code.DeviceCode, code, ttl); err != nil {
		return err
	}
	return s.client.Set(ctx, keyUserCode+code.UserCode, code.DeviceCode, ttl).Err()
}

func (s *Store) GetDeviceCode(ctx context.Context, deviceCode string) (*storage.DeviceCode, error) {
	var c storage.DeviceCode
	if err := s.getJSON(ctx, keyDeviceCode+deviceCode, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*storage.DeviceCode, error) {
	handle, err := s.client.Get(ctx, keyUserCode+userCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetDeviceCode(ctx, handle)
}

func (s *Store) UpdateDeviceCode(ctx context.Context, code *storage.DeviceCode) error {
	if _, err := s.GetDeviceCode(ctx, code.DeviceCode); err != nil {
		return err
	}
	return s.setJSON(ctx, keyDeviceCode+code.DeviceCode, code, recordTTL(code.ExpiresAt))
}

func (s *Store) AtomicClaimDeviceCode(ctx context.Context, deviceCode string) (*storage.DeviceCode, error) {
	raw, err := s.client.GetDel(ctx, keyDeviceCode+deviceCode).Result()
	if errors.Is(err, redis.Nil) {
		// Distinguish a consumed code from one that never existed.
		if s.client.Exists(ctx, keyDeviceClaim+deviceCode).Val() > 0 {
			return nil, storage.ErrAlreadyUsed
		}
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.enc != nil {
		raw, err = s.enc.Decrypt(raw)
		if err != nil {
			return nil, fmt.Errorf("decrypt device code: %w", err)
		}
	}
	var c storage.DeviceCode
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	if security.IsTokenExpired(c.ExpiresAt) {
		return nil, storage.ErrExpired
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, keyDeviceClaim+deviceCode, 1, markerTTL)
	pipe.Del(ctx, keyUserCode+c.UserCode)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- jti replay cache ---

func (s *Store) ClaimJTI(ctx context.Context, jti string, expiresAt time.Time) error {
	won, err := s.client.SetNX(ctx, keyJTI+jti, 1, recordTTL(expiresAt)).Result()
	if err != nil {
		return err
	}
	if !won {
		return storage.ErrReplayed
	}
	return nil
}

// --- grant sessions ---

func (s *Store) SaveGrantSession(ctx context.Context, session *storage.GrantSession) error {
	ttl := recordTTL(session.ExpiresAt)
	if err := s.setJSON(ctx, keySession+session.LoginChallenge, session, ttl); err != nil {
		return err
	}
	if session.ConsentChallenge != "" {
		return s.client.Set(ctx, keyConsent+session.ConsentChallenge, session.LoginChallenge, ttl).Err()
	}
	return nil
}

func (s *Store) GetGrantSessionByLoginChallenge(ctx context.Context, challenge string) (*storage.GrantSession, error) {
	var sess storage.GrantSession
	if err := s.getJSON(ctx, keySession+challenge, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) GetGrantSessionByConsentChallenge(ctx context.Context, challenge string) (*storage.GrantSession, error) {
	login, err := s.client.Get(ctx, keyConsent+challenge).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetGrantSessionByLoginChallenge(ctx, login)
}

func (s *Store) DeleteGrantSession(ctx context.Context, loginChallenge string) error {
	sess, err := s.GetGrantSessionByLoginChallenge(ctx, loginChallenge)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, keySession+loginChallenge)
	if sess.ConsentChallenge != "" {
		pipe.Del(ctx, keyConsent+sess.ConsentChallenge)
	}
	_, err = pipe.Exec(ctx)
	return err
}
