// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var (
	configPath string // Path to the configuration file

	rootCmd = &cobra.Command{
		Use:   "go-auth-gate",
		Short: "go-auth-gate guards federated sign-in with GitHub and Azure AD",
		Long: `go-auth-gate signs users in with GitHub or Azure Active Directory,
grants administrator rights from an email allow-list and, for Azure AD,
admits only members of the allowed directory groups.`,
		Args:          cobra.OnlyValidArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a config file (toml, yaml or json); the environment overrides it")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
