package commands

import (
	"github.com/spf13/cobra"

	"github.com/isometry/papercut-seeder/cmd/papercut-seeder/handlers"
)

// List returns the command that prints a full enumeration.
func List() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:       "list {users|printers|shared-accounts}",
		Short:     "Print every user, printer or shared account, one per line",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: handlers.ListKinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.List(cmd.Context(), configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)

	return cmd
}
