package firebase

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/photolog/photolog-auth"
)

func TestIDTokenClaimsUserRole(t *testing.T) {
	tests := []struct {
		name   string
		claims IDTokenClaims
		role   auth.UserRole
	}{
		{"no claim", IDTokenClaims{}, auth.RoleHost},
		{"role claim", IDTokenClaims{Role: "ADMIN"}, auth.RoleAdmin},
		{"admin flag", IDTokenClaims{Admin: true}, auth.RoleAdmin},
		{"guest claim ignored", IDTokenClaims{Role: "guest"}, auth.RoleHost},
		{"unknown claim", IDTokenClaims{Role: "owner"}, auth.RoleHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.role, tt.claims.UserRole())
		})
	}
}

func TestUserFromIDToken(t *testing.T) {
	token := testToken(t, IDTokenClaims{
		UserID:        "admin-1",
		Email:         "admin@example.com",
		EmailVerified: true,
		Name:          "Admin",
		Role:          "admin",
	})

	user, err := UserFromIDToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", user.ID)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.Equal(t, "Admin", user.DisplayName)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, auth.RoleAdmin, user.Role)

	assert.Equal(t, testNow.Add(time.Hour), expiryFromToken(token))

	_, err = UserFromIDToken("not-a-jwt")
	assert.Error(t, err)
	assert.True(t, expiryFromToken("not-a-jwt").IsZero())
}

func TestIDTokenClaimsUIDPrefersSubject(t *testing.T) {
	claims := IDTokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub"}, UserID: "uid"}
	assert.Equal(t, "sub", claims.UID())
}
