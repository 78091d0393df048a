package commands

import (
	"github.com/spf13/cobra"

	"github.com/isometry/papercut-seeder/cmd/papercut-seeder/handlers"
)

// SimulateJobs returns the command that backfills the print log.
func SimulateJobs() *cobra.Command {
	var (
		configPath   string
		days         int
		maxDailyJobs int
		seed         uint64
	)

	cmd := &cobra.Command{
		Use:   "simulate-jobs",
		Short: "Submit simulated print jobs for the last few days",
		Long: `Spread a random number of print jobs over each of the last --days days,
attributing them to existing users and printers. Placeholder names are used
when the server has none.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := handlers.JobsOptions{ConfigPath: configPath}
			if cmd.Flags().Changed("days") {
				opts.Days = &days
			}
			if cmd.Flags().Changed("max-daily-jobs") {
				opts.MaxDailyJobs = &maxDailyJobs
			}
			if cmd.Flags().Changed("seed") {
				opts.Seed = &seed
			}
			return handlers.SimulateJobs(cmd.Context(), opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&days, "days", 0, "Number of past days to fill (default from job_simulation.days)")
	cmd.Flags().IntVar(&maxDailyJobs, "max-daily-jobs", 0, "Upper bound of jobs per day (default from job_simulation.max_daily_jobs)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed; 0 picks a time-based seed (default from generator.seed)")

	return cmd
}
