package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/config"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/daemon"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(providersCmd)
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the identity providers enabled by the current configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.ReadConfig(configPath)
		if err != nil {
			return err
		}

		_, reg := daemon.Registry(&cfg)
		if reg.Empty() {
			fmt.Fprintln(cmd.OutOrStdout(), "no provider configured")
			return nil
		}

		for _, d := range reg.Providers() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-24s scope=%q\n", d.ID, d.Name, d.Scope)
		}

		return nil
	},
}
