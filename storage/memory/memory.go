// Package memory implements storage.Store in process memory. It is the
// default backend for development, tests and single-instance deployments;
// multi-instance deployments should use the redis backend instead.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

const cleanupInterval = 5 * time.Minute

var _ storage.Store = (*Store)(nil)

// Store is an in-memory storage.Store. All methods are safe for concurrent
// use; the atomic claim primitives hold the write lock across check and
// mutation, which is what makes single-use semantics hold under races.
type Store struct {
	mu            sync.RWMutex
	clients       map[string]*storage.Client
	users         map[string]*storage.User
	passwords     map[string]string
	codes         map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.AccessToken
	refreshTokens map[string]*storage.RefreshToken
	deviceCodes   map[string]*storage.DeviceCode
	userCodes     map[string]string
	jtis          map[string]time.Time
	sessions      map[string]*storage.GrantSession
	byConsent     map[string]string

	logger      *slog.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// New creates an empty store and starts its expiry cleanup loop. Call Close
// when done to stop the loop.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		clients:       make(map[string]*storage.Client),
		users:         make(map[string]*storage.User),
		passwords:     make(map[string]string),
		codes:         make(map[string]*storage.AuthorizationCode),
		accessTokens:  make(map[string]*storage.AccessToken),
		refreshTokens: make(map[string]*storage.RefreshToken),
		deviceCodes:   make(map[string]*storage.DeviceCode),
		userCodes:     make(map[string]string),
		jtis:          make(map[string]time.Time),
		sessions:      make(map[string]*storage.GrantSession),
		byConsent:     make(map[string]string),
		logger:        logger,
		stopCleanup:   make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Close stops the cleanup loop.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// SetInstrumentation registers storage size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) error {
	return inst.RegisterStoreSizeCallbacks(
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.clients)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.codes)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.accessTokens)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.refreshTokens)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.deviceCodes)) },
	)
}

// --- clients ---

func (s *Store) SaveClient(_ context.Context, client *storage.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *client
	s.clients[client.ID] = &cp
	return nil
}

func (s *Store) GetClient(_ context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *client
	return &cp, nil
}

func (s *Store) ListClients(_ context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.Client, 0, len(s.clients))
	for _, c := range s.clients {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// --- users ---

// SaveUser registers a resource owner with a password usable by the password
// grant. The password is stored as a bcrypt hash.
func (s *Store) SaveUser(_ context.Context, user *storage.User, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		s.passwords[user.Username] = string(hash)
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *Store) AuthenticateUser(_ context.Context, username, password string) (*storage.User, error) {
	s.mu.RLock()
	hash, ok := s.passwords[username]
	var found *storage.User
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			found = &cp
			break
		}
	}
	s.mu.RUnlock()

	if !ok || found == nil {
		return nil, storage.ErrNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

// --- authorization codes ---

func (s *Store) SaveAuthorizationCode(_ context.Context, code *storage.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.codes[code.Code] = &cp
	return nil
}

func (s *Store) GetAuthorizationCode(_ context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) AtomicClaimAuthorizationCode(_ context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	if c.Used {
		return &cp, storage.ErrAlreadyUsed
	}
	if c.Revoked {
		return nil, storage.ErrRevoked
	}
	if security.IsTokenExpired(c.ExpiresAt) {
		return nil, storage.ErrExpired
	}
	c.Used = true
	cp.Used = true
	return &cp, nil
}

func (s *Store) RevokeAuthorizationCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return storage.ErrNotFound
	}
	c.Revoked = true
	return nil
}

// --- access tokens ---

func (s *Store) SaveAccessToken(_ context.Context, token *storage.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.accessTokens[token.Token] = &cp
	return nil
}

func (s *Store) GetAccessToken(_ context.Context, handle string) (*storage.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.accessTokens[handle]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) RevokeAccessToken(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.accessTokens[handle]
	if !ok {
		return storage.ErrNotFound
	}
	t.Revoked = true
	return nil
}

func (s *Store) RevokeAccessTokensByCode(_ context.Context, code string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.accessTokens {
		if t.AuthorizationCode == code && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

// --- refresh tokens ---

func (s *Store) SaveRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.refreshTokens[token.Token] = &cp
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, handle string) (*storage.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.refreshTokens[handle]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if t.Revoked {
		return nil, storage.ErrRevoked
	}
	cp := *t
	return &cp, nil
}

func (s *Store) AtomicClaimRefreshToken(_ context.Context, handle string) (*storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTokens[handle]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	if t.Revoked {
		// Keep the record so reuse detection can chase the token family.
		return &cp, storage.ErrRevoked
	}
	if security.IsTokenExpired(t.ExpiresAt) {
		return nil, storage.ErrExpired
	}
	t.Revoked = true
	return &cp, nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTokens[handle]
	if !ok {
		return storage.ErrNotFound
	}
	t.Revoked = true
	return nil
}

func (s *Store) RevokeRefreshTokensByCode(_ context.Context, code string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.refreshTokens {
		if t.AuthorizationCode == code && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

// --- device codes ---

func (s *Store) SaveDeviceCode(_ context.Context, code *storage.DeviceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.deviceCodes[code.DeviceCode] = &cp
	s.userCodes[code.UserCode] = code.DeviceCode
	return nil
}

func (s *Store) GetDeviceCode(_ context.Context, deviceCode string) (*storage.DeviceCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.deviceCodes[deviceCode]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetDeviceCodeByUserCode(_ context.Context, userCode string) (*storage.DeviceCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handle, ok := s.userCodes[userCode]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c, ok := s.deviceCodes[handle]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) UpdateDeviceCode(_ context.Context, code *storage.DeviceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deviceCodes[code.DeviceCode]; !ok {
		return storage.ErrNotFound
	}
	cp := *code
	s.deviceCodes[code.DeviceCode] = &cp
	return nil
}

func (s *Store) AtomicClaimDeviceCode(_ context.Context, deviceCode string) (*storage.DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.deviceCodes[deviceCode]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if security.IsTokenExpired(c.ExpiresAt) {
		return nil, storage.ErrExpired
	}
	cp := *c
	delete(s.deviceCodes, deviceCode)
	delete(s.userCodes, c.UserCode)
	return &cp, nil
}

// --- jti replay cache ---

func (s *Store) ClaimJTI(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.jtis[jti]; ok && !security.IsTokenExpired(exp) {
		return storage.ErrReplayed
	}
	s.jtis[jti] = expiresAt
	return nil
}

// --- grant sessions ---

func (s *Store) SaveGrantSession(_ context.Context, session *storage.GrantSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.LoginChallenge] = &cp
	if session.ConsentChallenge != "" {
		s.byConsent[session.ConsentChallenge] = session.LoginChallenge
	}
	return nil
}

func (s *Store) GetGrantSessionByLoginChallenge(_ context.Context, challenge string) (*storage.GrantSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[challenge]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) GetGrantSessionByConsentChallenge(_ context.Context, challenge string) (*storage.GrantSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	login, ok := s.byConsent[challenge]
	if !ok {
		return nil, storage.ErrNotFound
	}
	sess, ok := s.sessions[login]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) DeleteGrantSession(_ context.Context, loginChallenge string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[loginChallenge]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byConsent, sess.ConsentChallenge)
	delete(s.sessions, loginChallenge)
	return nil
}

// --- cleanup ---

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// Cleanup drops expired codes, tokens, device codes, jtis and sessions.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, c := range s.codes {
		if security.IsTokenExpired(c.ExpiresAt) {
			delete(s.codes, k)
			removed++
		}
	}
	for k, t := range s.accessTokens {
		if security.IsTokenExpired(t.ExpiresAt) {
			delete(s.accessTokens, k)
			removed++
		}
	}
	for k, t := range s.refreshTokens {
		if security.IsTokenExpired(t.ExpiresAt) {
			delete(s.refreshTokens, k)
			removed++
		}
	}
	for k, c := range s.deviceCodes {
		if security.IsTokenExpired(c.ExpiresAt) {
			delete(s.userCodes, c.UserCode)
			delete(s.deviceCodes, k)
			removed++
		}
	}
	for k, exp := range s.jtis {
		if security.IsTokenExpired(exp) {
			delete(s.jtis, k)
			removed++
		}
	}
	for k, sess := range s.sessions {
		if security.IsTokenExpired(sess.ExpiresAt) {
			delete(s.byConsent, sess.ConsentChallenge)
			delete(s.sessions, k)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("storage cleanup completed", "removed", removed)
	}
}
