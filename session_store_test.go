package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/photolog/photolog-auth"
)

func TestSessionStoreStartsResolving(t *testing.T) {
	store := auth.NewSessionStore()

	assert.True(t, store.IsResolving())
	assert.Nil(t, store.CurrentUser())

	select {
	case <-store.Resolved():
		t.Fatal("store should not be resolved yet")
	default:
	}
}

func TestSessionStoreResolvesOnceOnFirstDelivery(t *testing.T) {
	store := auth.NewSessionStore()

	store.Apply(nil)
	assert.False(t, store.IsResolving())
	assert.Nil(t, store.CurrentUser())

	store.Apply(hostUser())
	assert.False(t, store.IsResolving())
	require.NotNil(t, store.CurrentUser())
	assert.Equal(t, "host-1", store.CurrentUser().ID)

	store.Apply(nil)
	assert.False(t, store.IsResolving(), "resolving never returns to true")
	assert.Nil(t, store.CurrentUser())

	select {
	case <-store.Resolved():
	default:
		t.Fatal("resolved channel should be closed")
	}
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	store := auth.NewSessionStore()
	user := hostUser()
	store.Apply(user)

	user.Email = "changed@example.com"
	got := store.CurrentUser()
	got.Role = auth.RoleAdmin

	assert.Equal(t, "host@example.com", store.CurrentUser().Email)
	assert.Equal(t, auth.RoleHost, store.CurrentUser().Role)
}

func TestSessionStoreWatchersSeeDeliveryOrder(t *testing.T) {
	store := auth.NewSessionStore()

	var seen []string
	cancel := store.Watch(func(s auth.SessionSnapshot) {
		if s.User == nil {
			seen = append(seen, "nil")
			return
		}
		seen = append(seen, s.User.ID)
	})

	store.Apply(nil)
	store.Apply(hostUser())
	store.Apply(adminUser())
	store.Apply(nil)

	cancel()
	cancel()
	store.Apply(hostUser())

	assert.Equal(t, []string{"nil", "host-1", "admin-1", "nil"}, seen)
}

func TestSessionStoreBindAndClose(t *testing.T) {
	provider := &MockIdentityProvider{}
	adapter := auth.NewIdentityAdapter(provider)
	store := auth.NewSessionStore()

	store.Bind(adapter)
	assert.Equal(t, 1, provider.ListenerCount())

	provider.Emit(hostUser())
	assert.False(t, store.IsResolving())
	assert.Equal(t, "host-1", store.CurrentUser().ID)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	assert.Equal(t, 0, provider.ListenerCount())

	provider.Emit(adminUser())
	assert.Equal(t, "host-1", store.CurrentUser().ID, "closed store ignores deliveries")
}

func TestSessionStoreContext(t *testing.T) {
	store := auth.NewSessionStore()
	ctx := auth.WithSessionStore(context.Background(), store)

	got, ok := auth.SessionStoreFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, store, got)

	_, ok = auth.FromContext(ctx)
	assert.False(t, ok)

	store.Apply(hostUser())
	user, ok := auth.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "host-1", user.ID)

	_, ok = auth.SessionStoreFromContext(context.Background())
	assert.False(t, ok)
}
