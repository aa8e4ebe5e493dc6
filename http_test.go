package auth_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/photolog/photolog-auth"
)

func newGuardedApp(store *auth.SessionStore, config ...auth.MiddlewareConfig) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	app.Use(auth.NewRouteGuard(store).Middleware(config...))

	handler := func(c *fiber.Ctx) error {
		user, ok := auth.UserFromFiber(c)
		if !ok {
			return c.SendString("anonymous")
		}
		ctxUser, _ := auth.FromContext(c.UserContext())
		return c.SendString(user.ID + ":" + ctxUser.ID)
	}
	app.Get(auth.PathHome, handler)
	app.Get(auth.PathDashboard, handler)
	app.Get(auth.PathAdminUsers, handler)
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestMiddlewarePendingAnswersServiceUnavailable(t *testing.T) {
	store := auth.NewSessionStore()
	app := newGuardedApp(store, auth.MiddlewareConfig{RetryAfter: 2 * time.Second})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, auth.PathDashboard, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))
	assert.Empty(t, resp.Header.Get(fiber.HeaderLocation))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Loading...", string(body))
}

func TestMiddlewareRedirectsGuestWithNext(t *testing.T) {
	store := auth.NewSessionStore()
	store.Apply(nil)
	app := newGuardedApp(store)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/dashboard?tab=events", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/signin?next=%2Fdashboard%3Ftab%3Devents", resp.Header.Get(fiber.HeaderLocation))
}

func TestMiddlewareRedirectsWrongRoleToLanding(t *testing.T) {
	store := auth.NewSessionStore()
	store.Apply(hostUser())
	app := newGuardedApp(store)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, auth.PathAdminUsers, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, auth.PathDashboard, resp.Header.Get(fiber.HeaderLocation))
}

func TestMiddlewareAllowsAndExposesUser(t *testing.T) {
	store := auth.NewSessionStore()
	store.Apply(hostUser())
	app := newGuardedApp(store)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, auth.PathDashboard, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "host-1:host-1", string(body))
}

func TestMiddlewareUserMatchesDecisionDuringSignOut(t *testing.T) {
	store := auth.NewSessionStore()
	store.Apply(hostUser())
	app := newGuardedApp(store)

	stop := make(chan struct{})
	toggled := make(chan struct{})
	go func() {
		defer close(toggled)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				store.Apply(nil)
			} else {
				store.Apply(hostUser())
			}
		}
	}()
	defer func() {
		close(stop)
		<-toggled
	}()

	for i := 0; i < 200; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, auth.PathDashboard, nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			require.Equal(t, "host-1:host-1", string(body))
		case http.StatusFound:
			require.Contains(t, resp.Header.Get(fiber.HeaderLocation), auth.PathSignIn)
		default:
			t.Fatalf("unexpected status %d", resp.StatusCode)
		}
	}
}

func TestMiddlewareAllowsGuestOnPublicView(t *testing.T) {
	store := auth.NewSessionStore()
	store.Apply(nil)
	app := newGuardedApp(store)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, auth.PathHome, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "anonymous", string(body))
}

func TestMiddlewareSkip(t *testing.T) {
	store := auth.NewSessionStore()
	app := newGuardedApp(store, auth.MiddlewareConfig{
		Skip: func(c *fiber.Ctx) bool { return c.Path() == "/healthz" },
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		textCode string
		fields   map[string]any
	}{
		{
			name:     "validation",
			err:      auth.NewError(auth.ErrInvalidInput, nil, map[string]any{"fields": map[string]string{"email": "must be a valid email address"}}),
			status:   http.StatusBadRequest,
			textCode: auth.TextCodeInvalidInput,
			fields:   map[string]any{"email": "must be a valid email address"},
		},
		{
			name:     "cooldown",
			err:      auth.NewError(auth.ErrCooldownActive, nil, nil),
			status:   http.StatusTooManyRequests,
			textCode: auth.TextCodeCooldownActive,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			status:   http.StatusInternalServerError,
			textCode: "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
			if tt.textCode != "INTERNAL_ERROR" {
				assert.Equal(t, tt.textCode, body["text_code"])
			}
			if tt.fields != nil {
				assert.Equal(t, tt.fields, body["fields"])
			} else {
				assert.NotContains(t, body, "fields")
			}
		})
	}
}

func TestErrorHandlerFiberError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
