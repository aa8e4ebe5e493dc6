package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	auth "github.com/photolog/photolog-auth"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer host accounts",
		Long:  "List host accounts and suspend or reactivate them. Requires an admin session.",
	}

	users := &cobra.Command{
		Use:   "users",
		Short: "Manage host accounts",
	}
	users.AddCommand(newAdminUsersListCmd())
	users.AddCommand(newAdminUsersStatusCmd("suspend", true))
	users.AddCommand(newAdminUsersStatusCmd("reactivate", false))

	cmd.AddCommand(users)
	return cmd
}

// ---------- admin users list ----------

func newAdminUsersListCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List host accounts, one page at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.requireRole(ctx, auth.PathAdminUsers); err != nil {
				return err
			}

			dir := a.directory()
			if err := dir.Load(ctx, page); err != nil {
				return err
			}
			return printDirectory(dir)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	return cmd
}

// ---------- admin users suspend / reactivate ----------

func newAdminUsersStatusCmd(use string, suspend bool) *cobra.Command {
	var (
		page int
		yes  bool
	)

	short := "Reactivate a suspended account"
	if suspend {
		short = "Suspend an account"
	}

	cmd := &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			admin, err := a.requireRole(ctx, auth.PathAdminUsers)
			if err != nil {
				return err
			}

			dir := a.directory(auth.WithDirectoryActor(auth.ActorRef{ID: admin.ID, Type: "admin"}))
			if err := dir.Load(ctx, page); err != nil {
				return err
			}

			confirm := func(_ context.Context, record auth.AdminUserRecord, target auth.UserStatus) bool {
				if yes {
					return true
				}
				verb := "reactivate"
				if target == auth.UserStatusSuspended {
					verb = "suspend"
				}
				return confirmPrompt(fmt.Sprintf("Are you sure you want to %s %s?", verb, record.Email))
			}

			if err := dir.SetSuspended(ctx, args[0], suspend, confirm); err != nil {
				if auth.IsError(err, auth.ErrConfirmationDenied) {
					fmt.Println("Cancelled")
					return nil
				}
				return err
			}

			if record, ok := dir.Record(args[0]); ok {
				fmt.Printf("%s is now %s\n", record.Email, record.Status())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page holding the account")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func (a *app) directory(opts ...auth.AdminDirectoryOption) *auth.AdminDirectory {
	logger := a.logger.With("component", "admin")
	machine := auth.NewAccountStateMachine(a.backend,
		auth.WithStateMachineActivitySink(a.activity),
		auth.WithStateMachineLogger(logger),
	)
	opts = append([]auth.AdminDirectoryOption{
		auth.WithPageSize(a.cfg.GetPageSize()),
		auth.WithDirectoryLogger(logger),
		auth.WithDirectoryStateMachine(machine),
	}, opts...)
	return auth.NewAdminDirectory(a.backend, opts...)
}

func printDirectory(dir *auth.AdminDirectory) error {
	records := dir.Records()

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"users":      records,
			"page":       dir.Page(),
			"totalPages": dir.TotalPages(),
			"total":      dir.Total(),
		})
	}

	if len(records) == 0 {
		fmt.Println(auth.EmptyDirectoryMessage)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tUSER\tID\tEVENTS\tSTATUS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.Initial(), r.Email, r.ShortID(), r.EventCount, r.Status())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nShowing %s\n%s\n", dir.RangeLabel(), dir.PageLabel())
	return nil
}
