package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/photolog/photolog-auth"
	"github.com/photolog/photolog-auth/backend"
)

type staticCredentials struct {
	cred *auth.Credential
	err  error
}

func (s staticCredentials) Credential(context.Context) (*auth.Credential, error) {
	return s.cred, s.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *backend.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return backend.New(backend.Config{
		BaseURL:     server.URL + "/api/",
		HTTPClient:  server.Client(),
		Credentials: staticCredentials{cred: &auth.Credential{IDToken: "id-token"}},
		RequestID:   func() string { return "req-1" },
	})
}

func TestClientListUsers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/admin/users", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("pageSize"))
		assert.Equal(t, "Bearer id-token", r.Header.Get("Authorization"))
		assert.Equal(t, "req-1", r.Header.Get(backend.RequestIDHeader))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"users": [
				{"uid": "u21", "email": "u21@example.com", "name": "Ana", "event_count": 3, "is_suspended": true}
			],
			"total": 21
		}`))
	})

	page, err := client.ListUsers(context.Background(), 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 21, page.Total)
	require.Len(t, page.Users, 1)
	assert.Equal(t, auth.AdminUserRecord{
		ID:          "u21",
		Email:       "u21@example.com",
		DisplayName: "Ana",
		EventCount:  3,
		IsSuspended: true,
	}, page.Users[0])
}

func TestClientSetSuspended(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/admin/users/u1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"isSuspended": true}, body)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.SetSuspended(context.Background(), "u1", true))
}

func TestClientVerificationEndpoints(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/auth/verify-email/confirm" {
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["code"] != "123456" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"message": "invalid or expired code"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"success": true}`))
	})

	require.NoError(t, client.SendVerificationCode(context.Background()))
	require.NoError(t, client.VerifyEmailCode(context.Background(), "123456"))

	err := client.VerifyEmailCode(context.Background(), "000000")
	assert.True(t, auth.IsError(err, auth.ErrInvalidInput))
	assert.Equal(t, "invalid or expired code", auth.FieldErrors(err)["code"])

	assert.Equal(t, []string{
		"/api/auth/verify-email/send",
		"/api/auth/verify-email/confirm",
		"/api/auth/verify-email/confirm",
	}, paths)
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{http.StatusUnauthorized, auth.TextCodeUnauthorized},
		{http.StatusForbidden, auth.TextCodeUnauthorized},
		{http.StatusNotFound, auth.TextCodeNotFound},
		{http.StatusUnprocessableEntity, auth.TextCodeInvalidInput},
		{http.StatusTooManyRequests, auth.TextCodeCooldownActive},
		{http.StatusInternalServerError, auth.TextCodeProviderUnavailable},
		{http.StatusBadGateway, auth.TextCodeProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": "nope"}`))
			})

			err := client.SetSuspended(context.Background(), "u1", false)
			require.Error(t, err)
			assert.True(t, auth.HasTextCode(err, tt.expected), err.Error())
		})
	}
}

func TestClientWithoutCredential(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(server.Close)

	client := backend.New(backend.Config{
		BaseURL:     server.URL,
		HTTPClient:  server.Client(),
		Credentials: staticCredentials{err: auth.NewError(auth.ErrUnauthorized, nil, nil)},
	})

	_, err := client.ListUsers(context.Background(), 1, 20)
	assert.True(t, auth.IsError(err, auth.ErrUnauthorized))
	assert.False(t, called)
}

func TestClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := backend.New(backend.Config{BaseURL: url, Timeout: time.Second})
	err := client.SendVerificationCode(context.Background())
	assert.True(t, auth.IsError(err, auth.ErrProviderUnavailable))
}

func TestClientInvalidResponseBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := client.ListUsers(context.Background(), 1, 20)
	assert.True(t, auth.IsError(err, auth.ErrProviderUnavailable))
}
