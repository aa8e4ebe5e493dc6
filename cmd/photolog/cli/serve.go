package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	auth "github.com/photolog/photolog-auth"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the guarded app shell locally",
		Long: `Serve the PhotoLog routing surface for the local session. Every route is
guarded: while the session resolves it answers 503, unauthenticated visits to
protected routes redirect to the sign in view with a next parameter.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			app := newShell(a)

			go func() {
				<-ctx.Done()
				_ = app.Shutdown()
			}()

			a.logger.Info("serving app shell on %s", addr)
			return app.Listen(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3000", "Listen address")
	return cmd
}

// newShell builds the fiber app with one handler per route of the routing
// table, all behind the route guard.
func newShell(a *app) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          auth.ErrorHandler(a.logger.With("component", "http")),
	})

	app.Use(a.guard.Middleware(auth.MiddlewareConfig{
		Skip: func(c *fiber.Ctx) bool { return c.Path() == "/session" },
	}))

	app.Get("/session", func(c *fiber.Ctx) error {
		s := a.store.Snapshot()
		return c.JSON(fiber.Map{
			"resolving": s.Resolving,
			"user":      s.User,
		})
	})

	for _, route := range auth.Routes {
		route := route
		app.Get(route.Pattern, func(c *fiber.Ctx) error {
			user, _ := auth.UserFromFiber(c)
			return c.JSON(fiber.Map{
				"route":  route.Name,
				"role":   route.Role,
				"params": c.AllParams(),
				"user":   user,
			})
		})
	}

	app.Post(auth.PathSignIn, func(c *fiber.Ctx) error {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}

		ctx := c.UserContext()
		cred, err := a.adapter.SignIn(ctx, body.Email, body.Password)
		if err != nil {
			return err
		}
		a.waitFor(ctx, func(s auth.SessionSnapshot) bool {
			return s.User != nil && s.User.ID == cred.UserID
		})

		user := a.store.CurrentUser()
		if user == nil || user.ID != cred.UserID {
			return auth.NewError(auth.ErrProviderUnavailable, nil, nil)
		}
		return c.Redirect(a.guard.ResumePath(c.Query(auth.NextParam), user.Role), fiber.StatusSeeOther)
	})

	app.Post("/signout", func(c *fiber.Ctx) error {
		user := a.store.CurrentUser()
		err := a.adapter.SignOut(context.WithoutCancel(c.UserContext()))
		if err != nil {
			a.logger.Warn("sign out: %v", err)
		}
		target := auth.PathHome
		if user != nil && user.Role == auth.RoleAdmin {
			target = auth.PathAdminLogin
		}
		return c.Redirect(target, fiber.StatusSeeOther)
	})

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fmt.Sprintf("no route for %s", c.Path()),
		})
	})

	return app
}
