package auth

import (
	"unicode"
	"unicode/utf8"
)

// User is the in-memory record of the currently authenticated identity.
type User struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	DisplayName   string   `json:"display_name,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	Role          UserRole `json:"role"`
}

// Clone returns a copy so readers never share the store's record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Name returns the display name, falling back to the email address.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// AdminUserRecord mirrors a backend managed user account for a single page.
type AdminUserRecord struct {
	ID          string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"name,omitempty"`
	EventCount  int    `json:"event_count"`
	IsSuspended bool   `json:"is_suspended"`
}

// Status maps the suspension flag onto the user lifecycle.
func (r AdminUserRecord) Status() UserStatus {
	if r.IsSuspended {
		return UserStatusSuspended
	}
	return UserStatusActive
}

// Initial returns the avatar letter shown next to the record.
func (r AdminUserRecord) Initial() string {
	for _, s := range []string{r.DisplayName, r.Email} {
		if s != "" {
			ch, _ := utf8.DecodeRuneInString(s)
			return string(unicode.ToUpper(ch))
		}
	}
	return "U"
}

// ShortID returns the first eight characters of the id.
func (r AdminUserRecord) ShortID() string {
	if len(r.ID) <= 8 {
		return r.ID
	}
	return r.ID[:8] + "..."
}

// UserPage is a single page of admin user records.
type UserPage struct {
	Users []AdminUserRecord `json:"users"`
	Total int               `json:"total"`
}
