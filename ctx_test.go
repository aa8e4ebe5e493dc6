package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	auth "github.com/photolog/photolog-auth"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		name   string
		ctx    func() context.Context
		wantID string
		wantOK bool
	}{
		{
			name:   "empty context",
			ctx:    context.Background,
			wantOK: false,
		},
		{
			name:   "user attached",
			ctx:    func() context.Context { return auth.WithContext(context.Background(), hostUser()) },
			wantID: "host-1",
			wantOK: true,
		},
		{
			name: "store fallback",
			ctx: func() context.Context {
				store := auth.NewSessionStore()
				store.Apply(adminUser())
				return auth.WithSessionStore(context.Background(), store)
			},
			wantID: "admin-1",
			wantOK: true,
		},
		{
			name: "signed out store",
			ctx: func() context.Context {
				store := auth.NewSessionStore()
				store.Apply(nil)
				return auth.WithSessionStore(context.Background(), store)
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, ok := auth.FromContext(tt.ctx())
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, user.ID)
			}
		})
	}
}
