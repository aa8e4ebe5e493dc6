package auth_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/photolog/photolog-auth"
)

func TestNewErrorKeepsSentinelUntouched(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := auth.NewError(auth.ErrProviderUnavailable, cause, map[string]any{"operation": "signin"})

	var richErr *goerrors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeProviderUnavailable, richErr.TextCode)
	assert.Equal(t, http.StatusServiceUnavailable, richErr.Code)
	assert.Equal(t, "signin", richErr.Metadata["operation"])
	assert.ErrorIs(t, err, cause)

	assert.Empty(t, auth.ErrProviderUnavailable.Metadata["operation"])
}

func TestIsError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		base     *goerrors.Error
		expected bool
	}{
		{"sentinel", auth.ErrInvalidCredentials, auth.ErrInvalidCredentials, true},
		{"clone", auth.NewError(auth.ErrAccountSuspended, nil, nil), auth.ErrAccountSuspended, true},
		{"wrapped clone", fmt.Errorf("signin: %w", auth.NewError(auth.ErrEmailInUse, nil, nil)), auth.ErrEmailInUse, true},
		{"other code", auth.ErrInvalidCredentials, auth.ErrAccountSuspended, false},
		{"plain", errors.New("invalid email or password"), auth.ErrInvalidCredentials, false},
		{"nil", nil, auth.ErrInvalidCredentials, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsError(tt.err, tt.base))
		})
	}
}

func TestFieldErrors(t *testing.T) {
	err := auth.NewError(auth.ErrInvalidInput, nil, map[string]any{
		"fields": map[string]string{"password": "too short"},
	})
	assert.Equal(t, map[string]string{"password": "too short"}, auth.FieldErrors(err))

	assert.Nil(t, auth.FieldErrors(auth.NewError(auth.ErrProviderUnavailable, nil, nil)))
	assert.Nil(t, auth.FieldErrors(errors.New("plain")))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", auth.UserMessage(nil))
	assert.Equal(t, "Invalid email or password.", auth.UserMessage(auth.ErrInvalidCredentials))
	assert.Equal(t, "An account with this email already exists.", auth.UserMessage(auth.NewError(auth.ErrEmailInUse, nil, nil)))
	assert.Equal(t, "Something went wrong. Please try again.", auth.UserMessage(errors.New("boom")))
	assert.Equal(t, "action not confirmed", auth.UserMessage(auth.ErrConfirmationDenied))
}

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		err    *goerrors.Error
		status int
	}{
		{auth.ErrInvalidInput, http.StatusBadRequest},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrAccountSuspended, http.StatusForbidden},
		{auth.ErrUnauthorized, http.StatusForbidden},
		{auth.ErrNotFound, http.StatusNotFound},
		{auth.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{auth.ErrEmailInUse, http.StatusConflict},
		{auth.ErrNoSuchAccount, http.StatusNotFound},
		{auth.ErrCooldownActive, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.err.TextCode, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Code)
		})
	}
}
