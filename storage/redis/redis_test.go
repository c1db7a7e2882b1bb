package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/oauthkit/oauthkit/security"
	"github.com/oauthkit/oauthkit/storage"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, opts...), mr
}

func TestClientsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	client := &storage.Client{
		ID:           "client-1",
		RedirectURIs: []string{"https://client.example.com/cb"},
		Scopes:       []string{"openid"},
	}
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient: %v", err)
	}

	got, err := s.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.ID != "client-1" || len(got.RedirectURIs) != 1 {
		t.Errorf("client = %+v", got)
	}

	if _, err := s.GetClient(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetClient(ghost) error = %v, want ErrNotFound", err)
	}

	list, err := s.ListClients(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("ListClients = %v, %v", list, err)
	}
}

func TestAuthenticateUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveUser(ctx, &storage.User{ID: "user-1", Username: "alice"}, "hunter2"); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	user, err := s.AuthenticateUser(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("ID = %q", user.ID)
	}
	if _, err := s.AuthenticateUser(ctx, "alice", "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestAtomicClaimAuthorizationCode(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{
		Code:      "code-1",
		ClientID:  "client-1",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode: %v", err)
	}

	claimed, err := s.AtomicClaimAuthorizationCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("first claim error = %v", err)
	}
	if !claimed.Used {
		t.Error("claimed copy not marked used")
	}

	// The SET NX marker makes the second claim lose; the record still comes
	// back so revocation can chase issued tokens.
	again, err := s.AtomicClaimAuthorizationCode(ctx, "code-1")
	if !errors.Is(err, storage.ErrAlreadyUsed) {
		t.Fatalf("second claim error = %v, want ErrAlreadyUsed", err)
	}
	if again == nil || again.ClientID != "client-1" {
		t.Error("second claim did not return the record")
	}
}

func TestRevokeTokensByCode(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for _, token := range []string{"at-1", "at-2"} {
		err := s.SaveAccessToken(ctx, &storage.AccessToken{
			Token:             token,
			AuthorizationCode: "code-1",
			ExpiresAt:         exp,
		})
		if err != nil {
			t.Fatalf("SaveAccessToken: %v", err)
		}
	}
	err := s.SaveRefreshToken(ctx, &storage.RefreshToken{
		Token:             "rt-1",
		AuthorizationCode: "code-1",
		ExpiresAt:         exp,
	})
	if err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}

	n, err := s.RevokeAccessTokensByCode(ctx, "code-1")
	if err != nil || n != 2 {
		t.Errorf("RevokeAccessTokensByCode = %d, %v, want 2", n, err)
	}
	n, err = s.RevokeRefreshTokensByCode(ctx, "code-1")
	if err != nil || n != 1 {
		t.Errorf("RevokeRefreshTokensByCode = %d, %v, want 1", n, err)
	}

	at, err := s.GetAccessToken(ctx, "at-1")
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if !at.Revoked {
		t.Error("access token not revoked")
	}
}

func TestAtomicClaimRefreshToken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rt := &storage.RefreshToken{
		Token:     "rt-1",
		ClientID:  "client-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.SaveRefreshToken(ctx, rt); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}

	if _, err := s.AtomicClaimRefreshToken(ctx, "rt-1"); err != nil {
		t.Fatalf("first claim error = %v", err)
	}

	again, err := s.AtomicClaimRefreshToken(ctx, "rt-1")
	if !errors.Is(err, storage.ErrRevoked) {
		t.Fatalf("second claim error = %v, want ErrRevoked", err)
	}
	if again == nil || again.ClientID != "client-1" {
		t.Error("second claim did not return the record")
	}
}

func TestAtomicClaimDeviceCode(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	device := &storage.DeviceCode{
		DeviceCode: "dc-1",
		UserCode:   "BBBB-CCCC",
		Status:     storage.DeviceCodeAuthorized,
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	if err := s.SaveDeviceCode(ctx, device); err != nil {
		t.Fatalf("SaveDeviceCode: %v", err)
	}

	claimed, err := s.AtomicClaimDeviceCode(ctx, "dc-1")
	if err != nil {
		t.Fatalf("claim error = %v", err)
	}
	if claimed.UserCode != "BBBB-CCCC" {
		t.Errorf("UserCode = %q", claimed.UserCode)
	}

	// GETDEL consumed the record; the claim marker distinguishes a replay
	// from a code that never existed.
	if _, err := s.AtomicClaimDeviceCode(ctx, "dc-1"); !errors.Is(err, storage.ErrAlreadyUsed) {
		t.Errorf("second claim error = %v, want ErrAlreadyUsed", err)
	}
	if _, err := s.AtomicClaimDeviceCode(ctx, "dc-never"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown claim error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetDeviceCodeByUserCode(ctx, "BBBB-CCCC"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("user code lookup error = %v, want ErrNotFound", err)
	}
}

func TestClaimJTI(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	if err := s.ClaimJTI(ctx, "jti-1", exp); err != nil {
		t.Fatalf("first claim error = %v", err)
	}
	if err := s.ClaimJTI(ctx, "jti-1", exp); !errors.Is(err, storage.ErrReplayed) {
		t.Errorf("second claim error = %v, want ErrReplayed", err)
	}
}

func TestGrantSessions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	session := &storage.GrantSession{
		LoginChallenge:   "login-1",
		ConsentChallenge: "consent-1",
		ClientID:         "client-1",
		UserID:           "user-1",
		Granted:          true,
		ExpiresAt:        time.Now().Add(time.Minute),
	}
	if err := s.SaveGrantSession(ctx, session); err != nil {
		t.Fatalf("SaveGrantSession: %v", err)
	}

	got, err := s.GetGrantSessionByConsentChallenge(ctx, "consent-1")
	if err != nil || got.UserID != "user-1" {
		t.Errorf("by consent = %v, %v", got, err)
	}

	if err := s.DeleteGrantSession(ctx, "login-1"); err != nil {
		t.Fatalf("DeleteGrantSession: %v", err)
	}
	if _, err := s.GetGrantSessionByConsentChallenge(ctx, "consent-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("lookup after delete error = %v, want ErrNotFound", err)
	}
}

func TestRecordExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{
		Code:      "code-ttl",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode: %v", err)
	}

	// Past the record TTL plus skew grace, Redis drops the key.
	mr.FastForward(time.Minute + security.DefaultClockSkewGracePeriod + time.Second)
	if _, err := s.GetAuthorizationCode(ctx, "code-ttl"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAuthorizationCode error = %v, want ErrNotFound after TTL", err)
	}
}

func TestEncryptedStore(t *testing.T) {
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	s, mr := newTestStore(t, WithEncryptor(enc))
	ctx := context.Background()

	client := &storage.Client{ID: "client-1", Name: "Secret App"}
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient: %v", err)
	}

	// The raw value at the key is ciphertext, not JSON.
	raw, err := mr.Get("oauth:client:client-1")
	if err != nil {
		t.Fatalf("miniredis get: %v", err)
	}
	if raw == "" || raw[0] == '{' {
		t.Errorf("stored value looks like plaintext JSON: %q", raw)
	}

	got, err := s.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.Name != "Secret App" {
		t.Errorf("Name = %q", got.Name)
	}

	// Device code redemption decrypts the GETDEL payload.
	device := &storage.DeviceCode{
		DeviceCode: "dc-enc",
		UserCode:   "DDDD-FFFF",
		Status:     storage.DeviceCodeAuthorized,
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	if err := s.SaveDeviceCode(ctx, device); err != nil {
		t.Fatalf("SaveDeviceCode: %v", err)
	}
	claimed, err := s.AtomicClaimDeviceCode(ctx, "dc-enc")
	if err != nil {
		t.Fatalf("AtomicClaimDeviceCode: %v", err)
	}
	if claimed.UserCode != "DDDD-FFFF" {
		t.Errorf("UserCode = %q", claimed.UserCode)
	}
}
