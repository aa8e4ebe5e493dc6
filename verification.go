package auth

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

const (
	// OTPLength is the number of digits in an email verification code.
	OTPLength = 6
	// ResendCooldown is the number of seconds before another code may be requested.
	ResendCooldown = 60
)

// OTPPhase is the fill state of the code entry.
type OTPPhase string

const (
	OTPEmpty           OTPPhase = "empty"
	OTPPartiallyFilled OTPPhase = "partially_filled"
	OTPComplete        OTPPhase = "complete"
)

// OTPState is a snapshot of the verification entry.
type OTPState struct {
	Digits         [OTPLength]string
	Focus          int
	ResendCooldown int
	Submitting     bool
	Resending      bool
	Verified       bool
}

// Code returns the concatenated digits.
func (s OTPState) Code() string {
	return strings.Join(s.Digits[:], "")
}

// Phase reports how many slots are filled.
func (s OTPState) Phase() OTPPhase {
	filled := 0
	for _, d := range s.Digits {
		if d != "" {
			filled++
		}
	}
	switch filled {
	case 0:
		return OTPEmpty
	case OTPLength:
		return OTPComplete
	default:
		return OTPPartiallyFilled
	}
}

// CanResend reports whether the cooldown has elapsed.
func (s OTPState) CanResend() bool {
	return s.ResendCooldown == 0 && !s.Resending
}

// Ticker is the repeating clock driving the resend countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// VerificationOption configures a VerificationFlow.
type VerificationOption func(*VerificationFlow)

// WithVerificationTicker replaces the wall clock ticker.
func WithVerificationTicker(factory TickerFactory) VerificationOption {
	return func(f *VerificationFlow) {
		if factory != nil {
			f.newTicker = factory
		}
	}
}

// WithVerificationLogger sets the flow logger.
func WithVerificationLogger(logger Logger) VerificationOption {
	return func(f *VerificationFlow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithVerificationClock replaces time.Now.
func WithVerificationClock(now func() time.Time) VerificationOption {
	return func(f *VerificationFlow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithResendCooldownStore keeps the resend cooldown in store so it carries
// over to later flows for the same account.
func WithResendCooldownStore(store ResendCooldownStore) VerificationOption {
	return func(f *VerificationFlow) {
		f.cooldowns = store
	}
}

// WithVerificationActivitySink sets the sink notified when the email is verified.
func WithVerificationActivitySink(sink ActivitySink) VerificationOption {
	return func(f *VerificationFlow) {
		f.activitySink = normalizeActivitySink(sink)
	}
}

// VerificationFlow drives the six digit email verification entry and the
// resend cooldown.
type VerificationFlow struct {
	api          VerificationAPI
	newTicker    TickerFactory
	now          func() time.Time
	cooldowns    ResendCooldownStore
	logger       Logger
	activitySink ActivitySink

	// notifyMu keeps observer notifications in mutation order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	state     OTPState
	observers []otpObserver
	nextID    int
	stopTick  chan struct{}
	closed    bool
}

type otpObserver struct {
	id int
	fn func(OTPState)
}

// NewVerificationFlow returns an empty flow with focus on the first slot.
func NewVerificationFlow(api VerificationAPI, opts ...VerificationOption) *VerificationFlow {
	f := &VerificationFlow{
		api:          api,
		newTicker:    newTimeTicker,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// State returns the current snapshot.
func (f *VerificationFlow) State() OTPState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OnChange registers fn for every state change.
func (f *VerificationFlow) OnChange(fn func(OTPState)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.observers = append(f.observers, otpObserver{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			for i, o := range f.observers {
				if o.id == id {
					f.observers = append(f.observers[:i], f.observers[i+1:]...)
					break
				}
			}
		})
	}
}

// Input sets slot i to value. Only "" or a single digit is accepted, anything
// else leaves the state untouched. A digit moves focus to the next slot.
func (f *VerificationFlow) Input(i int, value string) bool {
	if i < 0 || i >= OTPLength {
		return false
	}
	if value != "" && !isDigit(value) {
		return false
	}

	return f.update(func(s *OTPState) bool {
		s.Digits[i] = value
		if value != "" && i < OTPLength-1 {
			s.Focus = i + 1
		}
		return true
	})
}

// Backspace clears slot i, or moves focus back when it is already empty.
func (f *VerificationFlow) Backspace(i int) bool {
	if i < 0 || i >= OTPLength {
		return false
	}

	return f.update(func(s *OTPState) bool {
		if s.Digits[i] != "" {
			s.Digits[i] = ""
			s.Focus = i
			return true
		}
		if i > 0 {
			s.Focus = i - 1
			return true
		}
		return false
	})
}

// MoveLeft moves focus from slot i to the previous slot.
func (f *VerificationFlow) MoveLeft(i int) bool {
	if i <= 0 || i >= OTPLength {
		return false
	}
	return f.update(func(s *OTPState) bool {
		s.Focus = i - 1
		return true
	})
}

// MoveRight moves focus from slot i to the next slot.
func (f *VerificationFlow) MoveRight(i int) bool {
	if i < 0 || i >= OTPLength-1 {
		return false
	}
	return f.update(func(s *OTPState) bool {
		s.Focus = i + 1
		return true
	})
}

// Paste fills every slot at once when text holds exactly six digits after
// non digits are stripped and the result truncated.
func (f *VerificationFlow) Paste(text string) bool {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == OTPLength {
				break
			}
		}
	}
	digits := b.String()
	if len(digits) != OTPLength {
		return false
	}

	return f.update(func(s *OTPState) bool {
		for i := 0; i < OTPLength; i++ {
			s.Digits[i] = digits[i : i+1]
		}
		s.Focus = OTPLength - 1
		return true
	})
}

// Submit sends the code once every slot is filled. On failure the digits
// are kept so the user can correct them.
func (f *VerificationFlow) Submit(ctx context.Context) error {
	var (
		code   string
		reject error
	)
	f.update(func(s *OTPState) bool {
		switch {
		case s.Phase() != OTPComplete:
			reject = NewError(ErrCodeIncomplete, nil, nil)
			return false
		case s.Submitting:
			reject = NewError(ErrInvalidInput, nil, map[string]any{"reason": "submit already in progress"})
			return false
		}
		code = s.Code()
		s.Submitting = true
		return true
	})
	if reject != nil {
		return reject
	}

	err := f.api.VerifyEmailCode(ctx, code)
	if err != nil {
		f.logger.Warn("email verification failed: %v", err)
		f.update(func(s *OTPState) bool {
			s.Submitting = false
			return true
		})
		return err
	}

	f.stopTicker()
	f.update(func(s *OTPState) bool {
		*s = OTPState{Verified: true}
		return true
	})
	recordActivity(ctx, f.activitySink, f.logger, time.Now, ActivityEvent{
		EventType: ActivityEventEmailVerified,
	})
	return nil
}

// Resend requests a new code. It is rejected while the cooldown runs, also
// a cooldown left in the cooldown store by an earlier flow. On success the
// digits are cleared and the countdown starts at 60.
func (f *VerificationFlow) Resend(ctx context.Context) error {
	stored := f.storedCooldown(ctx)

	var (
		reject error
		resume bool
	)
	f.update(func(s *OTPState) bool {
		if stored > 0 && s.ResendCooldown == 0 && !s.Resending && !f.closed {
			s.ResendCooldown = stored
			resume = true
		}
		switch {
		case f.closed:
			reject = NewError(ErrInvalidInput, nil, map[string]any{"reason": "verification flow closed"})
			return resume
		case s.Resending:
			reject = NewError(ErrInvalidInput, nil, map[string]any{"reason": "resend already in progress"})
			return resume
		case !s.CanResend():
			reject = NewError(ErrCooldownActive, nil, map[string]any{"remaining_seconds": s.ResendCooldown})
			return resume
		}
		s.Resending = true
		return true
	})
	if resume {
		f.startTicker()
	}
	if reject != nil {
		return reject
	}

	if err := f.api.SendVerificationCode(ctx); err != nil {
		f.logger.Warn("resend verification code failed: %v", err)
		f.update(func(s *OTPState) bool {
			s.Resending = false
			return true
		})
		return err
	}

	f.update(func(s *OTPState) bool {
		s.Digits = [OTPLength]string{}
		s.Focus = 0
		s.Resending = false
		s.ResendCooldown = ResendCooldown
		return true
	})
	f.startTicker()

	if f.cooldowns != nil {
		at := f.now().Add(ResendCooldown * time.Second)
		if err := f.cooldowns.SaveResendAvailableAt(ctx, at); err != nil {
			f.logger.Warn("failed to store resend cooldown: %v", err)
		}
	}
	return nil
}

// storedCooldown returns the seconds left on a stored cooldown, 0 when none.
func (f *VerificationFlow) storedCooldown(ctx context.Context) int {
	if f.cooldowns == nil {
		return 0
	}
	at, err := f.cooldowns.LoadResendAvailableAt(ctx)
	if err != nil {
		f.logger.Warn("failed to load resend cooldown: %v", err)
		return 0
	}
	if at.IsZero() {
		return 0
	}
	remaining := int(math.Ceil(at.Sub(f.now()).Seconds()))
	if remaining <= 0 {
		return 0
	}
	return min(remaining, ResendCooldown)
}

// Close stops the countdown. It is safe to call more than once.
func (f *VerificationFlow) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.stopTicker()
	return nil
}

func (f *VerificationFlow) startTicker() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.stopTick != nil {
		close(f.stopTick)
	}
	stop := make(chan struct{})
	f.stopTick = stop
	f.mu.Unlock()

	ticker := f.newTicker(time.Second)
	go f.countdown(ticker, stop)
}

func (f *VerificationFlow) stopTicker() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopTick != nil {
		close(f.stopTick)
		f.stopTick = nil
	}
}

func (f *VerificationFlow) countdown(ticker Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			done := false
			f.update(func(s *OTPState) bool {
				select {
				case <-stop:
					done = true
					return false
				default:
				}
				if s.ResendCooldown > 0 {
					s.ResendCooldown--
				}
				done = s.ResendCooldown == 0
				return true
			})
			if done {
				f.releaseTicker(stop)
				return
			}
		}
	}
}

func (f *VerificationFlow) releaseTicker(stop chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopTick == stop {
		close(f.stopTick)
		f.stopTick = nil
	}
}

// update applies mutate under the state lock. Guards that must hold while
// the state changes belong inside mutate.
func (f *VerificationFlow) update(mutate func(s *OTPState) bool) bool {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	if !mutate(&f.state) {
		f.mu.Unlock()
		return false
	}
	snapshot := f.state
	observers := make([]otpObserver, len(f.observers))
	copy(observers, f.observers)
	f.mu.Unlock()

	for _, o := range observers {
		o.fn(snapshot)
	}
	return true
}

func isDigit(v string) bool {
	return len(v) == 1 && v[0] >= '0' && v[0] <= '9'
}
