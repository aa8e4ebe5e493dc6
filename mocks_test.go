package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	auth "github.com/photolog/photolog-auth"
)

// MockIdentityProvider implements auth.IdentityProvider. Auth state is pushed
// by the test through Emit.
type MockIdentityProvider struct {
	mock.Mock

	mu        sync.Mutex
	listeners map[int]auth.AuthStateListener
	nextID    int
}

func (m *MockIdentityProvider) SetPersistence(ctx context.Context, mode auth.Persistence) error {
	args := m.Called(ctx, mode)
	return args.Error(0)
}

func (m *MockIdentityProvider) Restore(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, email, password string) (*auth.Credential, error) {
	args := m.Called(ctx, email, password)
	cred, _ := args.Get(0).(*auth.Credential)
	return cred, args.Error(1)
}

func (m *MockIdentityProvider) SignIn(ctx context.Context, email, password string) (*auth.Credential, error) {
	args := m.Called(ctx, email, password)
	cred, _ := args.Get(0).(*auth.Credential)
	return cred, args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) SendPasswordResetEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockIdentityProvider) SendEmailVerification(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) CurrentCredential(ctx context.Context) (*auth.Credential, error) {
	args := m.Called(ctx)
	cred, _ := args.Get(0).(*auth.Credential)
	return cred, args.Error(1)
}

func (m *MockIdentityProvider) OnAuthStateChanged(listener auth.AuthStateListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners == nil {
		m.listeners = map[int]auth.AuthStateListener{}
	}
	m.nextID++
	id := m.nextID
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Emit delivers user to every registered listener synchronously.
func (m *MockIdentityProvider) Emit(user *auth.User) {
	m.mu.Lock()
	listeners := make([]auth.AuthStateListener, 0, len(m.listeners))
	for i := 1; i <= m.nextID; i++ {
		if l, ok := m.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(user)
	}
}

func (m *MockIdentityProvider) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// MockAdminAPI implements auth.AdminAPI
type MockAdminAPI struct {
	mock.Mock
}

func (m *MockAdminAPI) ListUsers(ctx context.Context, page, pageSize int) (*auth.UserPage, error) {
	args := m.Called(ctx, page, pageSize)
	result, _ := args.Get(0).(*auth.UserPage)
	return result, args.Error(1)
}

func (m *MockAdminAPI) SetSuspended(ctx context.Context, userID string, suspended bool) error {
	args := m.Called(ctx, userID, suspended)
	return args.Error(0)
}

// MockVerificationAPI implements auth.VerificationAPI
type MockVerificationAPI struct {
	mock.Mock
}

func (m *MockVerificationAPI) SendVerificationCode(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockVerificationAPI) VerifyEmailCode(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

// manualTicker is a Ticker driven by the test.
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *manualTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

func hostUser() *auth.User {
	return &auth.User{ID: "host-1", Email: "host@example.com", Role: auth.RoleHost}
}

func adminUser() *auth.User {
	return &auth.User{ID: "admin-1", Email: "admin@example.com", Role: auth.RoleAdmin}
}

// memoryCooldowns implements auth.ResendCooldownStore.
type memoryCooldowns struct {
	mu sync.Mutex
	at time.Time
}

func (m *memoryCooldowns) LoadResendAvailableAt(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.at, nil
}

func (m *memoryCooldowns) SaveResendAvailableAt(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at = at
	return nil
}
