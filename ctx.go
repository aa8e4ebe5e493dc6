package auth

import (
	"context"
)

var storeCtxKey = &contextKey{"session_store"}
var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithSessionStore sets the SessionStore in the given context
func WithSessionStore(ctx context.Context, store *SessionStore) context.Context {
	return context.WithValue(ctx, storeCtxKey, store)
}

// SessionStoreFromContext finds the SessionStore from the context.
func SessionStoreFromContext(ctx context.Context) (*SessionStore, bool) {
	raw, ok := ctx.Value(storeCtxKey).(*SessionStore)
	return raw, ok && raw != nil
}

// WithContext sets the User in the given context
func WithContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// FromContext finds the user from the context. When only a store was
// attached, the store's current user is returned.
func FromContext(ctx context.Context) (*User, bool) {
	if raw, ok := ctx.Value(userCtxKey).(*User); ok && raw != nil {
		return raw, true
	}
	if store, ok := SessionStoreFromContext(ctx); ok {
		user := store.CurrentUser()
		return user, user != nil
	}
	return nil, false
}
