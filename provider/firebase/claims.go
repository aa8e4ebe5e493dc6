package firebase

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/photolog/photolog-auth"
)

// IDTokenClaims are the claims carried by an Identity Toolkit ID token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role,omitempty"`
	Admin         bool   `json:"admin,omitempty"`
}

// UID returns the account id, preferring the subject.
func (c *IDTokenClaims) UID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// UserRole resolves the custom role claim. Accounts without one are hosts.
func (c *IDTokenClaims) UserRole() auth.UserRole {
	if role, ok := auth.ParseRole(strings.ToLower(c.Role)); ok && role != auth.RoleGuest {
		return role
	}
	if c.Admin {
		return auth.RoleAdmin
	}
	return auth.RoleHost
}

// ParseIDToken decodes the claims of raw without verifying its signature.
// The credential is only used as an opaque bearer towards the backend,
// which does the verification.
func ParseIDToken(raw string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// UserFromIDToken builds the session user from an ID token.
func UserFromIDToken(raw string) (*auth.User, error) {
	claims, err := ParseIDToken(raw)
	if err != nil {
		return nil, err
	}
	return &auth.User{
		ID:            claims.UID(),
		Email:         claims.Email,
		DisplayName:   claims.Name,
		EmailVerified: claims.EmailVerified,
		Role:          claims.UserRole(),
	}, nil
}

// expiryFromToken returns the exp claim, zero when absent or unparsable.
func expiryFromToken(raw string) time.Time {
	claims, err := ParseIDToken(raw)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
