package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// UserLocalsKey is the fiber locals key holding the signed in *User.
const UserLocalsKey = "user"

// MiddlewareConfig configures the fiber guard middleware.
type MiddlewareConfig struct {
	// RetryAfter is advertised while the session is resolving.
	RetryAfter time.Duration
	// LoadingBody is the neutral body served while resolving.
	LoadingBody string
	// ContextKey names the locals key holding the user.
	ContextKey string
	// Skip bypasses the guard for matching requests, i.e. static assets.
	Skip func(c *fiber.Ctx) bool
}

var defaultMiddlewareConfig = MiddlewareConfig{
	RetryAfter:  time.Second,
	LoadingBody: "Loading...",
	ContextKey:  UserLocalsKey,
}

// Middleware guards every app shell route according to the routing table.
// While resolving it answers 503 with Retry-After and never redirects.
func (g *RouteGuard) Middleware(config ...MiddlewareConfig) fiber.Handler {
	cfg := defaultMiddlewareConfig
	if len(config) > 0 {
		c := config[0]
		if c.RetryAfter > 0 {
			cfg.RetryAfter = c.RetryAfter
		}
		if c.LoadingBody != "" {
			cfg.LoadingBody = c.LoadingBody
		}
		if c.ContextKey != "" {
			cfg.ContextKey = c.ContextKey
		}
		cfg.Skip = c.Skip
	}

	retryAfter := strconv.Itoa(int(cfg.RetryAfter.Round(time.Second) / time.Second))
	if retryAfter == "0" {
		retryAfter = "1"
	}

	return func(c *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return c.Next()
		}

		required, _ := g.RequiredRole(c.Path())
		snapshot := g.store.Snapshot()
		decision := decide(snapshot, required, c.OriginalURL())

		switch decision.Kind {
		case DecisionPending:
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusServiceUnavailable).SendString(cfg.LoadingBody)
		case DecisionRedirect:
			g.logger.Info("guard redirect %s -> %s", c.OriginalURL(), decision.Target)
			return c.Redirect(decision.Target, fiber.StatusFound)
		}

		// the user comes from the snapshot the decision was made on
		if user := snapshot.User; user != nil {
			c.Locals(cfg.ContextKey, user)
			c.SetUserContext(WithContext(c.UserContext(), user))
		}
		return c.Next()
	}
}

// UserFromFiber returns the user stored by the guard middleware.
func UserFromFiber(c *fiber.Ctx, key ...string) (*User, bool) {
	k := UserLocalsKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	user, ok := c.Locals(k).(*User)
	return user, ok && user != nil
}

// ErrorHandler renders taxonomy errors as JSON for the app shell.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": fiberErr.Message,
			})
		}

		var richErr *goerrors.Error
		if !errors.As(err, &richErr) {
			richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
				WithCode(goerrors.CodeInternal)
		}

		logger.Info("request failed: %s category=%s details=%s",
			richErr.Message,
			richErr.Category,
			print.MaybePrettyJSON(richErr.Metadata),
		)

		status := richErr.Code
		if status == 0 {
			status = fiber.StatusInternalServerError
		}

		body := fiber.Map{
			"error":     UserMessage(richErr),
			"text_code": richErr.TextCode,
		}
		if fields := FieldErrors(richErr); len(fields) > 0 {
			body["fields"] = fields
		}
		return c.Status(status).JSON(body)
	}
}
