package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type memoryStore struct {
	mu   sync.Mutex
	byID map[string]Principal
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byID: make(map[string]Principal)}
}

func (m *memoryStore) Create(_ context.Context, p Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == p.Email {
			return ErrEmailInUse
		}
	}
	m.byID[p.ID] = p
	return nil
}

func (m *memoryStore) FindByEmail(_ context.Context, email string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Email == email {
			return p, nil
		}
	}
	return Principal{}, ErrNotFound
}

func (m *memoryStore) FindByID(_ context.Context, id string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (m *memoryStore) UpdateSecret(_ context.Context, id, digest string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.SecretDigest = digest
	p.SecretChangedAt = &changedAt
	m.byID[id] = p
	return nil
}

func (m *memoryStore) SetReset(_ context.Context, id, digest string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.ResetDigest = digest
	p.ResetExpiresAt = &expiresAt
	m.byID[id] = p
	return nil
}

func (m *memoryStore) ClearReset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.ResetDigest = ""
	p.ResetExpiresAt = nil
	m.byID[id] = p
	return nil
}

func (m *memoryStore) ConsumeReset(_ context.Context, digest, newDigest string, changedAt, now time.Time) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.byID {
		if p.ResetDigest != digest || p.ResetExpiresAt == nil || !p.ResetExpiresAt.After(now) {
			continue
		}
		p.SecretDigest = newDigest
		p.SecretChangedAt = &changedAt
		p.ResetDigest = ""
		p.ResetExpiresAt = nil
		m.byID[id] = p
		return p, nil
	}
	return Principal{}, ErrInvalidResetToken
}

type fakeNotifier struct {
	mu     sync.Mutex
	err    error
	raw    string
	url    string
	target Principal
	calls  int
}

func (n *fakeNotifier) SendResetToken(_ context.Context, p Principal, rawToken, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return n.err
	}
	n.target = p
	n.raw = rawToken
	n.url = resetURL
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T, notifier ResetNotifier) (*Service, *memoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := NewTokenCodec([]byte("test-secret"),
		WithTokenTTL(time.Hour),
		WithTokenNow(clock.Now),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := newMemoryStore()
	svc, err := NewService(ServiceConfig{
		Store:        store,
		Hasher:       NewSecretHasher(WithHashCost(bcrypt.MinCost)),
		Codec:        codec,
		Notifier:     notifier,
		ResetTTL:     10 * time.Minute,
		ResetURLBase: "https://trailgate.test",
		Now:          clock.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc, store, clock
}

func signupTestPrincipal(t *testing.T, svc *Service, email string) (Principal, string) {
	t.Helper()
	p, token, err := svc.Signup(context.Background(), SignupInput{
		Name:          "Test Hiker",
		Email:         email,
		Secret:        []byte("pass1234"),
		SecretConfirm: []byte("pass1234"),
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	return p, token
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	codec, _ := NewTokenCodec([]byte("s"))
	hasher := NewSecretHasher()
	store := newMemoryStore()

	tests := []struct {
		name string
		cfg  ServiceConfig
	}{
		{"no store", ServiceConfig{Hasher: hasher, Codec: codec}},
		{"no hasher", ServiceConfig{Store: store, Codec: codec}},
		{"no codec", ServiceConfig{Store: store, Hasher: hasher}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSignup(t *testing.T) {
	svc, store, _ := newTestService(t, &fakeNotifier{})

	p, token, err := svc.Signup(context.Background(), SignupInput{
		Name:          "Test Hiker",
		Email:         "  Hiker@Example.COM ",
		Secret:        []byte("pass1234"),
		SecretConfirm: []byte("pass1234"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Email != "hiker@example.com" {
		t.Errorf("email not normalized: %q", p.Email)
	}
	if p.Role != RoleStandard {
		t.Errorf("role = %q, want %q", p.Role, RoleStandard)
	}
	if p.SecretDigest == "pass1234" || p.SecretDigest == "" {
		t.Error("secret not hashed")
	}

	got, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("token resolves to %q, want %q", got.ID, p.ID)
	}

	stored, err := store.FindByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("principal not persisted: %v", err)
	}
	if stored.Email != "hiker@example.com" {
		t.Errorf("persisted email = %q", stored.Email)
	}
}

func TestSignupValidation(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNotifier{})

	tests := []struct {
		name string
		in   SignupInput
	}{
		{"missing name", SignupInput{Email: "a@example.com", Secret: []byte("pass1234"), SecretConfirm: []byte("pass1234")}},
		{"bad email", SignupInput{Name: "A", Email: "not-an-email", Secret: []byte("pass1234"), SecretConfirm: []byte("pass1234")}},
		{"short secret", SignupInput{Name: "A", Email: "a@example.com", Secret: []byte("short"), SecretConfirm: []byte("short")}},
		{"confirm mismatch", SignupInput{Name: "A", Email: "a@example.com", Secret: []byte("pass1234"), SecretConfirm: []byte("pass12345")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Signup(context.Background(), tt.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNotifier{})
	signupTestPrincipal(t, svc, "dup@example.com")

	_, _, err := svc.Signup(context.Background(), SignupInput{
		Name:          "Second",
		Email:         "dup@example.com",
		Secret:        []byte("pass1234"),
		SecretConfirm: []byte("pass1234"),
	})
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNotifier{})
	p, _ := signupTestPrincipal(t, svc, "hiker@example.com")

	got, token, err := svc.Login(context.Background(), "Hiker@Example.com", []byte("pass1234"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("logged in as %q, want %q", got.ID, p.ID)
	}
	if _, err := svc.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("login token rejected: %v", err)
	}
}

func TestLoginMasksFailureCause(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNotifier{})
	signupTestPrincipal(t, svc, "hiker@example.com")

	_, _, unknownErr := svc.Login(context.Background(), "nobody@example.com", []byte("pass1234"))
	_, _, wrongErr := svc.Login(context.Background(), "hiker@example.com", []byte("wrong-secret"))

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("wrong secret: expected ErrInvalidCredentials, got %v", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("failure causes distinguishable: %q vs %q", unknownErr, wrongErr)
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNotifier{})
	if _, err := svc.Authenticate(context.Background(), "not-a-token"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestAuthenticateRejectsDeletedPrincipal(t *testing.T) {
	svc, store, _ := newTestService(t, &fakeNotifier{})
	p, token := signupTestPrincipal(t, svc, "hiker@example.com")

	store.mu.Lock()
	delete(store.byID, p.ID)
	store.mu.Unlock()

	if _, err := svc.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestChangeSecretInvalidatesOldTokens(t *testing.T) {
	svc, _, clock := newTestService(t, &fakeNotifier{})
	p, oldToken := signupTestPrincipal(t, svc, "hiker@example.com")

	clock.Advance(5 * time.Second)
	_, newToken, err := svc.ChangeSecret(context.Background(), p.ID,
		[]byte("pass1234"), []byte("newpass99"), []byte("newpass99"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), oldToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("pre-change token still accepted: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), newToken); err != nil {
		t.Fatalf("post-change token rejected: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), "hiker@example.com", []byte("pass1234")); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old secret still logs in: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "hiker@example.com", []byte("newpass99")); err != nil {
		t.Fatalf("new secret rejected: %v", err)
	}
}

func TestChangeSecretRequiresCurrentSecret(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNotifier{})
	p, _ := signupTestPrincipal(t, svc, "hiker@example.com")

	_, _, err := svc.ChangeSecret(context.Background(), p.ID,
		[]byte("wrong-current"), []byte("newpass99"), []byte("newpass99"))
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, _, err = svc.ChangeSecret(context.Background(), p.ID,
		[]byte("pass1234"), []byte("newpass99"), []byte("different"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRequestReset(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, store, clock := newTestService(t, notifier)
	p, _ := signupTestPrincipal(t, svc, "hiker@example.com")

	if err := svc.RequestReset(context.Background(), "Hiker@Example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notifier.raw == "" {
		t.Fatal("notifier did not receive a token")
	}
	if !strings.Contains(notifier.url, notifier.raw) {
		t.Errorf("reset URL %q does not carry raw token", notifier.url)
	}
	if !strings.HasPrefix(notifier.url, "https://trailgate.test/api/v1/auth/reset-password/") {
		t.Errorf("unexpected reset URL: %q", notifier.url)
	}
	if notifier.target.ID != p.ID {
		t.Errorf("notified principal %q, want %q", notifier.target.ID, p.ID)
	}

	stored, _ := store.FindByID(context.Background(), p.ID)
	if stored.ResetDigest != DigestResetToken(notifier.raw) {
		t.Error("stored digest is not the digest of the delivered token")
	}
	if stored.ResetDigest == notifier.raw {
		t.Error("raw token persisted")
	}
	wantExpiry := clock.Now().Add(10 * time.Minute)
	if stored.ResetExpiresAt == nil || !stored.ResetExpiresAt.Equal(wantExpiry) {
		t.Errorf("reset expiry = %v, want %v", stored.ResetExpiresAt, wantExpiry)
	}
}

func TestRequestResetUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNotifier{})
	if err := svc.RequestReset(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestResetRollsBackOnDeliveryFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	svc, store, _ := newTestService(t, notifier)
	p, _ := signupTestPrincipal(t, svc, "hiker@example.com")

	err := svc.RequestReset(context.Background(), "hiker@example.com")
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}

	stored, _ := store.FindByID(context.Background(), p.ID)
	if stored.ResetDigest != "" || stored.ResetExpiresAt != nil {
		t.Error("reset state not rolled back after delivery failure")
	}
}

func TestRedeemReset(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _, clock := newTestService(t, notifier)
	p, oldToken := signupTestPrincipal(t, svc, "hiker@example.com")

	if err := svc.RequestReset(context.Background(), "hiker@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(5 * time.Second)
	got, token, err := svc.RedeemReset(context.Background(), notifier.raw,
		[]byte("reborn-pass"), []byte("reborn-pass"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("redeemed principal %q, want %q", got.ID, p.ID)
	}
	if _, err := svc.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("post-redeem token rejected: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), oldToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatal("pre-redeem token still accepted")
	}

	if _, _, err := svc.Login(context.Background(), "hiker@example.com", []byte("pass1234")); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old secret still logs in after redeem")
	}
	if _, _, err := svc.Login(context.Background(), "hiker@example.com", []byte("reborn-pass")); err != nil {
		t.Fatalf("new secret rejected: %v", err)
	}
}

func TestRedeemResetSingleUse(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _, _ := newTestService(t, notifier)
	signupTestPrincipal(t, svc, "hiker@example.com")

	if err := svc.RequestReset(context.Background(), "hiker@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.RedeemReset(context.Background(), notifier.raw, []byte("reborn-pass"), []byte("reborn-pass")); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}
	if _, _, err := svc.RedeemReset(context.Background(), notifier.raw, []byte("other-pass99"), []byte("other-pass99")); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("second redemption: expected ErrInvalidResetToken, got %v", err)
	}
}

func TestRedeemResetExpired(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _, clock := newTestService(t, notifier)
	signupTestPrincipal(t, svc, "hiker@example.com")

	if err := svc.RequestReset(context.Background(), "hiker@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(11 * time.Minute)
	_, _, err := svc.RedeemReset(context.Background(), notifier.raw, []byte("reborn-pass"), []byte("reborn-pass"))
	if !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken for expired token, got %v", err)
	}
}

func TestRedeemResetRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNotifier{})

	if _, _, err := svc.RedeemReset(context.Background(), "", []byte("reborn-pass"), []byte("reborn-pass")); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("empty token: expected ErrInvalidResetToken, got %v", err)
	}
	if _, _, err := svc.RedeemReset(context.Background(), "deadbeef", []byte("short"), []byte("short")); !errors.Is(err, ErrValidation) {
		t.Fatalf("short secret: expected ErrValidation, got %v", err)
	}
	if _, _, err := svc.RedeemReset(context.Background(), "deadbeef", []byte("reborn-pass"), []byte("mismatch-pass")); !errors.Is(err, ErrValidation) {
		t.Fatalf("mismatch: expected ErrValidation, got %v", err)
	}
	if _, _, err := svc.RedeemReset(context.Background(), "deadbeef", []byte("reborn-pass"), []byte("reborn-pass")); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("unknown token: expected ErrInvalidResetToken, got %v", err)
	}
}
