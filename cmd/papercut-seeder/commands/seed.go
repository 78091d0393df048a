package commands

import (
	"github.com/spf13/cobra"

	"github.com/isometry/papercut-seeder/cmd/papercut-seeder/handlers"
)

// Seed returns the command that guarantees the account population.
func Seed() *cobra.Command {
	var (
		configPath string
		target     int
		seed       uint64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create synthetic accounts until the population reaches the target",
		Long: `Measure the account population and create synthetic accounts for the deficit.

A pass that finds at least --target accounts changes nothing. Identities that
fail individually are reported at the end and make the command exit non-zero;
exhausted retries or an interrupt stop the pass immediately.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := handlers.SeedOptions{ConfigPath: configPath}
			if cmd.Flags().Changed("target") {
				opts.Target = &target
			}
			if cmd.Flags().Changed("seed") {
				opts.Seed = &seed
			}
			return handlers.Seed(cmd.Context(), opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&target, "target", "n", 0, "Minimum number of accounts (default from target_population.create_users_max_quantity)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Generator seed; 0 picks a time-based seed (default from generator.seed)")

	return cmd
}
