package auth

import (
	"context"
	"sync"
)

// ResetPhase is the state of the forgot password view.
type ResetPhase string

const (
	ResetIdle      ResetPhase = "idle"
	ResetSending   ResetPhase = "sending"
	ResetSubmitted ResetPhase = "submitted"
)

// PasswordResetter is the slice of the identity adapter used by ResetFlow.
type PasswordResetter interface {
	RequestPasswordReset(ctx context.Context, email string) error
}

// ResetFlow tracks a single forgot password form.
type ResetFlow struct {
	resetter PasswordResetter

	mu     sync.Mutex
	phase  ResetPhase
	email  string
	banner Banner
}

// NewResetFlow returns an idle flow.
func NewResetFlow(resetter PasswordResetter) *ResetFlow {
	return &ResetFlow{resetter: resetter, phase: ResetIdle}
}

// Submit sends the reset request. Field errors stay inline, everything else
// is raised on the banner and the form goes back to idle.
func (f *ResetFlow) Submit(ctx context.Context, email string) error {
	f.mu.Lock()
	if f.phase == ResetSending {
		f.mu.Unlock()
		return NewError(ErrInvalidInput, nil, map[string]any{"reason": "request already in progress"})
	}
	f.phase = ResetSending
	f.email = email
	f.banner.Dismiss()
	f.mu.Unlock()

	err := f.resetter.RequestPasswordReset(ctx, email)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.phase = ResetIdle
		if FieldErrors(err) == nil {
			f.banner.Raise(err)
		}
		return err
	}
	f.phase = ResetSubmitted
	return nil
}

// Reset returns the form to idle, i.e. "try another email".
func (f *ResetFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phase = ResetIdle
	f.email = ""
	f.banner.Dismiss()
}

func (f *ResetFlow) Phase() ResetPhase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *ResetFlow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Banner returns the current banner message, empty when dismissed.
func (f *ResetFlow) Banner() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banner.Message()
}

// Banner is a dismissible error message for provider and network failures.
// The zero value is an empty banner.
type Banner struct {
	err error
}

// Raise shows the user facing message for err.
func (b *Banner) Raise(err error) {
	b.err = err
}

// Dismiss hides the banner.
func (b *Banner) Dismiss() {
	b.err = nil
}

func (b *Banner) Visible() bool {
	return b.err != nil
}

func (b *Banner) Message() string {
	return UserMessage(b.err)
}

func (b *Banner) Err() error {
	return b.err
}
