package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated identity
type Identity interface {
	ID() string
	Email() string
	DisplayName() string
	EmailVerified() bool
	Role() string
}

// Credential is the opaque bearer credential issued by the identity provider.
// The core never validates it; it is only attached to outbound calls.
type Credential struct {
	UserID       string    `json:"user_id"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the credential is past its expiry at now.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Persistence selects how the identity provider keeps credentials between
// process runs.
type Persistence string

const (
	// PersistenceLocal survives process restarts.
	PersistenceLocal Persistence = "local"
	// PersistenceMemory lasts only for the lifetime of the process.
	PersistenceMemory Persistence = "memory"
)

// AuthStateListener receives the authoritative identity whenever it changes.
// A nil user means signed out.
type AuthStateListener func(user *User)

// IdentityProvider is the contract the core requires from the remote
// identity service.
type IdentityProvider interface {
	SetPersistence(ctx context.Context, mode Persistence) error
	Restore(ctx context.Context) error
	SignUp(ctx context.Context, email, password string) (*Credential, error)
	SignIn(ctx context.Context, email, password string) (*Credential, error)
	SignOut(ctx context.Context) error
	SendPasswordResetEmail(ctx context.Context, email string) error
	SendEmailVerification(ctx context.Context) error
	CurrentCredential(ctx context.Context) (*Credential, error)
	OnAuthStateChanged(listener AuthStateListener) (unsubscribe func())
}

// CredentialSource hands out the current bearer credential for backend calls.
type CredentialSource interface {
	Credential(ctx context.Context) (*Credential, error)
}

// CredentialStore keeps the credential of the signed in user between runs.
// LoadCredential returns nil, nil when nothing is stored.
type CredentialStore interface {
	LoadCredential(ctx context.Context) (*Credential, error)
	SaveCredential(ctx context.Context, cred *Credential) error
	DeleteCredential(ctx context.Context) error
}

// ResendCooldownStore remembers when the next verification code may be
// requested so the cooldown outlives the flow. A zero time means no cooldown.
type ResendCooldownStore interface {
	LoadResendAvailableAt(ctx context.Context) (time.Time, error)
	SaveResendAvailableAt(ctx context.Context, at time.Time) error
}

// AdminAPI is the slice of the backend used by the admin user directory.
type AdminAPI interface {
	ListUsers(ctx context.Context, page, pageSize int) (*UserPage, error)
	SetSuspended(ctx context.Context, userID string, suspended bool) error
}

// VerificationAPI is the slice of the backend used by the email verification flow.
type VerificationAPI interface {
	SendVerificationCode(ctx context.Context) error
	VerifyEmailCode(ctx context.Context, code string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// DefaultLogger returns the stdout logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}
