package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// IdentityAdapter is the only component that talks to the identity provider.
// It validates input, normalizes provider failures into the error taxonomy and
// fans the provider's auth state out to subscribers.
type IdentityAdapter struct {
	provider     IdentityProvider
	persistence  Persistence
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    int
	detach    func()
	lastUser  *User
	hasState  bool
	deliverMu sync.Mutex
}

type listenerEntry struct {
	id int
	fn AuthStateListener
}

// NewIdentityAdapter wraps the given provider.
func NewIdentityAdapter(provider IdentityProvider) *IdentityAdapter {
	return &IdentityAdapter{
		provider:     provider,
		persistence:  PersistenceLocal,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

// WithLogger sets the adapter logger.
func (a *IdentityAdapter) WithLogger(logger Logger) *IdentityAdapter {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithActivitySink sets the sink that receives auth activity events.
func (a *IdentityAdapter) WithActivitySink(sink ActivitySink) *IdentityAdapter {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// WithPersistence overrides the persistence mode configured by Init.
func (a *IdentityAdapter) WithPersistence(mode Persistence) *IdentityAdapter {
	if mode != "" {
		a.persistence = mode
	}
	return a
}

// WithClock injects the clock used to stamp activity events.
func (a *IdentityAdapter) WithClock(now func() time.Time) *IdentityAdapter {
	if now != nil {
		a.now = now
	}
	return a
}

// Init configures persistence and then restores any stored credential.
// A persistence failure is logged and initialization carries on.
func (a *IdentityAdapter) Init(ctx context.Context) error {
	if err := a.provider.SetPersistence(ctx, a.persistence); err != nil {
		a.logger.Warn("failed to set %s persistence: %v", a.persistence, err)
	}

	if err := a.provider.Restore(ctx); err != nil {
		a.logger.Warn("failed to restore credential: %v", err)
		return a.normalize(err, "restore")
	}
	return nil
}

type credentialsInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c credentialsInput) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required, validation.Length(6, 4096)),
	)
}

type emailInput struct {
	Email string `json:"email"`
}

func (e emailInput) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

// SignUp creates an account and signs it in.
func (a *IdentityAdapter) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	input := credentialsInput{Email: strings.TrimSpace(email), Password: password}
	if err := input.Validate(); err != nil {
		return nil, validationError(err)
	}

	cred, err := a.provider.SignUp(ctx, input.Email, input.Password)
	if err != nil {
		a.logger.Error("sign up failed for %s: %v", input.Email, err)
		return nil, a.normalize(err, "signup")
	}

	a.emit(ctx, ActivityEventSignUp, cred.UserID, map[string]any{"email": input.Email})
	return cred, nil
}

// SignIn authenticates with email and password.
func (a *IdentityAdapter) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	input := credentialsInput{Email: strings.TrimSpace(email), Password: password}
	if err := input.Validate(); err != nil {
		return nil, validationError(err)
	}

	cred, err := a.provider.SignIn(ctx, input.Email, input.Password)
	if err != nil {
		err = a.normalize(err, "signin")
		a.logger.Warn("sign in failed for %s: %v", input.Email, err)
		a.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"email":  input.Email,
			"reason": errorTextCode(err),
		})
		return nil, err
	}

	a.emit(ctx, ActivityEventLoginSuccess, cred.UserID, map[string]any{"email": input.Email})
	return cred, nil
}

// SignOut ends the session. Local state is cleared even when the provider
// call fails, the failure is logged and returned.
func (a *IdentityAdapter) SignOut(ctx context.Context) error {
	var userID string
	a.mu.Lock()
	if a.lastUser != nil {
		userID = a.lastUser.ID
	}
	a.mu.Unlock()

	err := a.provider.SignOut(ctx)
	if err != nil {
		a.logger.Error("sign out failed, clearing local session anyway: %v", err)
		a.deliver(nil)
		err = a.normalize(err, "signout")
	}

	a.emit(ctx, ActivityEventLogout, userID, nil)
	return err
}

// RequestPasswordReset asks the provider to email a reset link.
func (a *IdentityAdapter) RequestPasswordReset(ctx context.Context, email string) error {
	input := emailInput{Email: strings.TrimSpace(email)}
	if err := input.Validate(); err != nil {
		return validationError(err)
	}

	if err := a.provider.SendPasswordResetEmail(ctx, input.Email); err != nil {
		a.logger.Warn("password reset request failed for %s: %v", input.Email, err)
		return a.normalize(err, "password_reset")
	}

	a.emit(ctx, ActivityEventPasswordResetRequested, "", map[string]any{"email": input.Email})
	return nil
}

// SendEmailVerification asks the provider to email a verification link to
// the signed in user.
func (a *IdentityAdapter) SendEmailVerification(ctx context.Context) error {
	if err := a.provider.SendEmailVerification(ctx); err != nil {
		a.logger.Warn("send email verification failed: %v", err)
		return a.normalize(err, "send_verification")
	}

	a.emit(ctx, ActivityEventVerificationSent, a.currentUserID(), nil)
	return nil
}

// Credential returns the bearer credential of the signed in user.
func (a *IdentityAdapter) Credential(ctx context.Context) (*Credential, error) {
	cred, err := a.provider.CurrentCredential(ctx)
	if err != nil {
		return nil, a.normalize(err, "credential")
	}
	if cred == nil || cred.IDToken == "" {
		return nil, NewError(ErrUnauthorized, nil, map[string]any{"reason": "no signed in user"})
	}
	return cred, nil
}

// SubscribeAuthState registers listener for auth state changes. The latest
// known state is replayed to new listeners. The returned unsubscribe runs
// at most once.
func (a *IdentityAdapter) SubscribeAuthState(listener AuthStateListener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}

	// replay under deliverMu so the new listener can't miss or reorder a delivery
	a.deliverMu.Lock()
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners = append(a.listeners, listenerEntry{id: id, fn: listener})
	attach := a.detach == nil
	replay, last := a.hasState, a.lastUser.Clone()
	a.mu.Unlock()

	if replay {
		listener(last)
	}
	a.deliverMu.Unlock()

	if attach {
		detach := a.provider.OnAuthStateChanged(a.deliver)
		a.mu.Lock()
		if a.detach == nil {
			a.detach = detach
			detach = nil
		}
		a.mu.Unlock()
		if detach != nil {
			detach()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { a.removeListener(id) })
	}
}

func (a *IdentityAdapter) removeListener(id int) {
	a.mu.Lock()
	for i, l := range a.listeners {
		if l.id == id {
			a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
			break
		}
	}
	var detach func()
	if len(a.listeners) == 0 {
		detach = a.detach
		a.detach = nil
	}
	a.mu.Unlock()

	if detach != nil {
		detach()
	}
}

func (a *IdentityAdapter) deliver(user *User) {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	a.mu.Lock()
	a.lastUser = user.Clone()
	a.hasState = true
	listeners := make([]listenerEntry, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	for _, l := range listeners {
		l.fn(user.Clone())
	}
}

func (a *IdentityAdapter) currentUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastUser == nil {
		return ""
	}
	return a.lastUser.ID
}

func (a *IdentityAdapter) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	recordActivity(ctx, a.activitySink, a.logger, a.now, ActivityEvent{
		EventType: eventType,
		Actor:     ActorRef{ID: userID, Type: "user"},
		UserID:    userID,
		Metadata:  metadata,
	})
}

// normalize keeps taxonomy errors as they are and folds everything else
// into ErrProviderUnavailable.
func (a *IdentityAdapter) normalize(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return err
	}
	return NewError(ErrProviderUnavailable, err, map[string]any{"operation": operation})
}

func errorTextCode(err error) string {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// UserIdentity adapts a User into the Identity interface.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID
}

func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

func (u UserIdentity) DisplayName() string {
	if u.user == nil {
		return ""
	}
	return u.user.DisplayName
}

func (u UserIdentity) EmailVerified() bool {
	return u.user != nil && u.user.EmailVerified
}

func (u UserIdentity) Role() string {
	if u.user == nil {
		return ""
	}
	return string(u.user.Role)
}
