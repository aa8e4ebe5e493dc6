package auth

import (
	"sync"
)

// SessionSnapshot is a consistent view of the session at one point in time.
type SessionSnapshot struct {
	User      *User
	Resolving bool
}

// Authenticated reports whether the snapshot holds a signed in user.
func (s SessionSnapshot) Authenticated() bool {
	return s.User != nil
}

// SessionWatcher is notified after every auth state change, in delivery order.
type SessionWatcher func(snapshot SessionSnapshot)

// AuthStateSubscriber is anything that can push auth state into a store.
type AuthStateSubscriber interface {
	SubscribeAuthState(listener AuthStateListener) (unsubscribe func())
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithSessionLogger sets the store logger.
func WithSessionLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// SessionStore is the process wide holder of the current identity.
// It starts resolving and leaves that state exactly once, on the first
// auth state delivery. It never performs network calls.
type SessionStore struct {
	// applyMu serializes Apply so watchers observe changes in delivery order.
	applyMu sync.Mutex

	mu        sync.RWMutex
	user      *User
	resolving bool
	resolved  chan struct{}
	watchers  []watcherEntry
	nextID    int

	unbind    func()
	closeOnce sync.Once

	logger Logger
}

type watcherEntry struct {
	id int
	fn SessionWatcher
}

// NewSessionStore creates a store in the resolving state.
func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		resolving: true,
		resolved:  make(chan struct{}),
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Apply records the authoritative identity. It is meant to be used as the
// auth state subscription callback and must not be called from a watcher.
func (s *SessionStore) Apply(user *User) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	s.user = user.Clone()
	if s.resolving {
		s.resolving = false
		close(s.resolved)
		s.logger.Debug("session resolved, authenticated=%t", user != nil)
	}
	snapshot := SessionSnapshot{User: s.user.Clone(), Resolving: false}
	watchers := make([]watcherEntry, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, w := range watchers {
		w.fn(SessionSnapshot{User: snapshot.User.Clone(), Resolving: snapshot.Resolving})
	}
}

// CurrentUser returns a copy of the signed in user or nil.
func (s *SessionStore) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

// IsResolving reports whether the first auth state has not arrived yet.
func (s *SessionStore) IsResolving() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolving
}

// Snapshot returns both session fields read under one lock.
func (s *SessionStore) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{User: s.user.Clone(), Resolving: s.resolving}
}

// Resolved returns a channel closed once the first auth state has been applied.
func (s *SessionStore) Resolved() <-chan struct{} {
	return s.resolved
}

// Watch registers fn for every subsequent change. The returned cancel func
// is safe to call more than once.
func (s *SessionStore) Watch(fn SessionWatcher) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers = append(s.watchers, watcherEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, w := range s.watchers {
				if w.id == id {
					s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
					break
				}
			}
		})
	}
}

// Bind subscribes the store to the given source and keeps the single
// teardown handle. A previous binding is released first.
func (s *SessionStore) Bind(source AuthStateSubscriber) {
	if source == nil {
		return
	}

	unsubscribe := source.SubscribeAuthState(s.Apply)

	s.mu.Lock()
	previous := s.unbind
	s.unbind = unsubscribe
	s.mu.Unlock()

	if previous != nil {
		previous()
	}
}

// Close releases the subscription exactly once.
func (s *SessionStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unbind := s.unbind
		s.unbind = nil
		s.watchers = nil
		s.mu.Unlock()

		if unbind != nil {
			unbind()
		}
	})
	return nil
}
