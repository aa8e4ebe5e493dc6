package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	auth "github.com/photolog/photolog-auth"
	"github.com/photolog/photolog-auth/backend"
	"github.com/photolog/photolog-auth/repository"
)

// ---------- signup ----------

func newSignUpCmd() *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a host account",
		Example: `  photolog signup --email host@example.com
  photolog signup --email host@example.com --password secret1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignUp(cmd.Context(), email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runSignUp(ctx context.Context, email, password string) error {
	if password == "" {
		var err error
		if password, err = promptNewPassword(); err != nil {
			return err
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.waitResolved(ctx); err != nil {
		return err
	}

	if _, err := a.adapter.SignUp(ctx, email, password); err != nil {
		return err
	}

	a.waitFor(ctx, func(s auth.SessionSnapshot) bool { return s.User != nil })
	if err := a.backend.SendVerificationCode(ctx); err != nil {
		a.logger.Warn("could not send verification code: %v", err)
	}

	fmt.Printf("Account created for %s\n", email)
	fmt.Println("A verification code was sent to your inbox, confirm it with: photolog verify-email --code <code>")
	return nil
}

// ---------- signin ----------

func newSignInCmd() *cobra.Command {
	var (
		email    string
		password string
		admin    bool
		next     string
	)

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Example: `  photolog signin --email host@example.com
  photolog signin --admin --email admin@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignIn(cmd.Context(), email, password, admin, next)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Sign in to the admin console")
	cmd.Flags().StringVar(&next, "next", "", "Path to resume after sign in")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runSignIn(ctx context.Context, email, password string, admin bool, next string) error {
	if password == "" {
		var err error
		if password, err = promptPassword("Password: "); err != nil {
			return err
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.waitResolved(ctx); err != nil {
		return err
	}

	cred, err := a.adapter.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	a.waitFor(ctx, func(s auth.SessionSnapshot) bool {
		return s.User != nil && s.User.ID == cred.UserID
	})

	user := a.store.CurrentUser()
	if user == nil {
		return auth.NewError(auth.ErrProviderUnavailable, nil, map[string]any{"reason": "session not established"})
	}

	if admin && user.Role != auth.RoleAdmin {
		if err := a.adapter.SignOut(ctx); err != nil {
			a.logger.Warn("sign out after denied admin access: %v", err)
		}
		return auth.NewError(auth.ErrUnauthorized, nil, map[string]any{
			"reason": "account does not have admin access",
			"email":  user.Email,
		})
	}

	fmt.Printf("Signed in as %s (%s)\n", user.Name(), user.Role)
	fmt.Printf("Continue at %s\n", a.guard.ResumePath(next, user.Role))
	return nil
}

// ---------- signout ----------

func newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.waitResolved(ctx); err != nil {
				return err
			}

			user := a.store.CurrentUser()
			err = a.adapter.SignOut(ctx)
			a.waitFor(ctx, func(s auth.SessionSnapshot) bool { return s.User == nil })

			target := auth.PathHome
			if user != nil && user.Role == auth.RoleAdmin {
				target = auth.PathAdminLogin
			}
			fmt.Printf("Signed out, continue at %s\n", target)
			return err
		},
	}
}

// ---------- whoami ----------

func newWhoAmICmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.waitResolved(ctx); err != nil {
				return err
			}

			if refresh && a.store.CurrentUser() != nil {
				if err := a.provider.Reload(ctx); err != nil {
					return err
				}
			}

			user := a.store.CurrentUser()
			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(user)
			}
			if user == nil {
				fmt.Println("Not signed in")
				return nil
			}
			fmt.Printf("ID:        %s\n", user.ID)
			fmt.Printf("Email:     %s\n", user.Email)
			fmt.Printf("Name:      %s\n", user.Name())
			fmt.Printf("Role:      %s\n", user.Role)
			fmt.Printf("Verified:  %t\n", user.EmailVerified)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Reload the account record from the provider")
	return cmd
}

// ---------- forgot-password ----------

func newForgotPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Email a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			flow := auth.NewResetFlow(a.adapter)
			if err := flow.Submit(ctx, email); err != nil {
				return err
			}
			fmt.Printf("If an account exists for %s, a reset link is on its way. Check your spam folder too.\n", flow.Email())
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.MarkFlagRequired("email")
	return cmd
}

// ---------- verify-email ----------

func newVerifyEmailCmd() *cobra.Command {
	var (
		code   string
		resend bool
		link   bool
	)

	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Confirm the email address with the six digit code",
		Example: `  photolog verify-email --code 123456
  photolog verify-email --resend`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			user, err := a.requireRole(ctx, auth.PathDashboard)
			if err != nil {
				return err
			}

			if link {
				if err := a.adapter.SendEmailVerification(ctx); err != nil {
					return err
				}
				fmt.Println("Verification link sent")
				return nil
			}

			return runVerifyEmail(ctx, a, a.backend, user, code, resend)
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Six digit code from the verification email")
	cmd.Flags().BoolVar(&resend, "resend", false, "Request a new code")
	cmd.Flags().BoolVar(&link, "link", false, "Send a verification link instead of a code")
	return cmd
}

func runVerifyEmail(ctx context.Context, a *app, api *backend.Client, user *auth.User, code string, resend bool) error {
	opts := []auth.VerificationOption{
		auth.WithVerificationLogger(a.logger.With("component", "verification")),
		auth.WithVerificationActivitySink(a.activity),
	}
	if a.db != nil && user != nil {
		cooldowns := repository.NewResendCooldownRepository(a.db, user.ID)
		if err := cooldowns.Migrate(ctx); err != nil {
			a.logger.Warn("resend cooldown is not persisted: %v", err)
		} else {
			opts = append(opts, auth.WithResendCooldownStore(cooldowns))
		}
	}

	flow := auth.NewVerificationFlow(api, opts...)
	defer flow.Close()

	if resend {
		if err := flow.Resend(ctx); err != nil {
			return err
		}
		fmt.Printf("A new code was sent, you can request another in %d seconds\n", flow.State().ResendCooldown)
		return nil
	}

	if code == "" {
		var err error
		if code, err = promptLine("Verification code: "); err != nil {
			return err
		}
	}

	if !flow.Paste(code) {
		return auth.NewError(auth.ErrCodeIncomplete, nil, map[string]any{
			"fields": map[string]string{"code": "enter all 6 digits"},
		})
	}
	if err := flow.Submit(ctx); err != nil {
		return err
	}

	if err := a.provider.Reload(ctx); err != nil {
		a.logger.Warn("reload after verification: %v", err)
	}
	fmt.Println("Email verified")
	return nil
}
