// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the papercut-seeder CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "papercut-seeder",
		Short:         "Seed a PaperCut server with synthetic accounts and print jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Seed())
	cmd.AddCommand(List())
	cmd.AddCommand(SimulateJobs())
	cmd.AddCommand(Version())

	return cmd
}

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", "",
		"Path to a YAML configuration file (PAPERCUT_SEEDER_* environment variables override it)")
}
