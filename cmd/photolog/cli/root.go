package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/photolog/photolog-auth/config"
)

var (
	cfgFile    string
	jsonOutput bool
)

// Execute creates the root command tree and runs it.
func Execute(version, commit string) error {
	return newRootCmd(version, commit).Execute()
}

func newRootCmd(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photolog",
		Short: "PhotoLog account and session client",
		Long: `PhotoLog client for signing in, managing the local session and
administering host accounts.

The session is kept in a local SQLite database so a signed in user stays
signed in between runs.`,
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./photolog.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newSignUpCmd())
	cmd.AddCommand(newSignInCmd())
	cmd.AddCommand(newSignOutCmd())
	cmd.AddCommand(newWhoAmICmd())
	cmd.AddCommand(newForgotPasswordCmd())
	cmd.AddCommand(newVerifyEmailCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func initConfig() {
	config.Setup(viper.GetViper(), cfgFile)
}
