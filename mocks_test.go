package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/fieldcrypt"
	"github.com/hirelane/jobboard-auth/persistence"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSigningKey    = "test-signing-key-0123456789abcdef0123"
	testEncryptionKey = "test-encryption-key-0123456789abcdef"
)

// MockLockoutStore implements auth.LockoutStore for testing
type MockLockoutStore struct {
	mock.Mock
}

func (m *MockLockoutStore) RecordFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockUntil, now time.Time) (auth.LoginAttempts, error) {
	args := m.Called(ctx, id, threshold, lockUntil, now)
	return args.Get(0).(auth.LoginAttempts), args.Error(1)
}

func (m *MockLockoutStore) ResetLoginAttempts(ctx context.Context, id uuid.UUID, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockLockoutStore) Unlock(ctx context.Context, id uuid.UUID, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

// MockTokenService implements auth.TokenService for testing
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) Issue(accountID, role string) (string, time.Time, error) {
	args := m.Called(accountID, role)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenService) Verify(token string) (auth.AuthClaims, error) {
	args := m.Called(token)
	if claims := args.Get(0); claims != nil {
		return claims.(auth.AuthClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockIdentityProvider implements auth.IdentityProvider for testing
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, email, password string) (*auth.Account, error) {
	args := m.Called(ctx, email, password)
	if account := args.Get(0); account != nil {
		return account.(*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRegistrar implements auth.AccountRegistrar for testing
type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Execute(ctx context.Context, msg auth.RegisterAccountMessage) (*auth.Account, error) {
	args := m.Called(ctx, msg)
	if account := args.Get(0); account != nil {
		return account.(*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// capturingSink keeps every recorded event
type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Events() []auth.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *capturingSink) Types() []auth.ActivityEventType {
	var out []auth.ActivityEventType
	for _, evt := range c.Events() {
		out = append(out, evt.EventType)
	}
	return out
}

type testConfig struct {
	signingKey string
	ttl        time.Duration
	issuer     string
	audience   []string
	cookieName string
	secure     bool
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey: testSigningKey,
		ttl:        7 * 24 * time.Hour,
		issuer:     "jobboard-test",
		audience:   []string{"jobboard"},
		cookieName: "token",
	}
}

func (c *testConfig) GetSigningKey() string             { return c.signingKey }
func (c *testConfig) GetTokenExpiration() time.Duration { return c.ttl }
func (c *testConfig) GetIssuer() string                 { return c.issuer }
func (c *testConfig) GetAudience() []string             { return c.audience }
func (c *testConfig) GetCookieName() string             { return c.cookieName }
func (c *testConfig) GetSecureCookie() bool             { return c.secure }
func (c *testConfig) GetPasswordHashCost() int          { return bcrypt.MinCost }

// fixedClock is a settable clock shared by the services under test
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(start time.Time) *fixedClock {
	return &fixedClock{now: start}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := persistence.OpenAndMigrate(context.Background(), persistence.Options{
		DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newTestRepo(t *testing.T, clock func() time.Time) auth.RepositoryManager {
	t.Helper()

	return auth.NewRepositoryManager(
		newTestDB(t),
		fieldcrypt.MustNew(testEncryptionKey),
		auth.WithAccountsClock(clock),
	)
}

func newTestHasher() *auth.BcryptHasher {
	return auth.NewPasswordHasher(bcrypt.MinCost)
}

// seedAccount stores an account with password as its secret
func seedAccount(t *testing.T, repo auth.RepositoryManager, role, email, password string, active bool) *auth.Account {
	t.Helper()

	hash, err := newTestHasher().Hash(password)
	require.NoError(t, err)

	account, err := repo.Accounts().Create(context.Background(), &auth.Account{
		Name:         "Test " + role,
		Email:        email,
		Phone:        "5551234567",
		Role:         role,
		IsActive:     active,
		PasswordHash: hash,
	})
	require.NoError(t, err)

	return account
}

// txTrackingRepo flags while a RunInTx callback is running
type txTrackingRepo struct {
	auth.RepositoryManager
	open atomic.Bool
}

func (r *txTrackingRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return r.RepositoryManager.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		r.open.Store(true)
		defer r.open.Store(false)
		return f(ctx, tx)
	})
}

// txAwareHasher counts hashes computed inside a transaction
type txAwareHasher struct {
	auth.PasswordHasher
	repo   *txTrackingRepo
	hashes atomic.Int32
	inTx   atomic.Int32
}

func (h *txAwareHasher) Hash(secret string) (string, error) {
	h.hashes.Add(1)
	if h.repo.open.Load() {
		h.inTx.Add(1)
	}
	return h.PasswordHasher.Hash(secret)
}
