package handlers

import (
	"context"
	"fmt"

	"github.com/isometry/papercut-seeder/internal/jobs"
	"github.com/isometry/papercut-seeder/internal/logging"
)

// JobsOptions are the simulate-jobs command inputs. Nil overrides fall back to
// the configuration.
type JobsOptions struct {
	ConfigPath   string
	Days         *int
	MaxDailyJobs *int
	Seed         *uint64
}

// SimulateJobs backfills the print log and prints a summary.
func SimulateJobs(ctx context.Context, opts JobsOptions) error {
	s, err := openSession(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer s.close("simulate-jobs")

	jc := s.cfg.JobSimulation
	if opts.Days != nil {
		jc.Days = *opts.Days
	}
	if opts.MaxDailyJobs != nil {
		jc.MaxDailyJobs = *opts.MaxDailyJobs
	}

	simulator, err := jobs.New(s.directory, jobs.Options{
		Days:         jc.Days,
		MaxDailyJobs: jc.MaxDailyJobs,
		ServerName:   jc.ServerName,
		DocumentName: jc.DocumentName,
		Comment:      jc.Comment,
		Seed:         s.resolveSeed(opts.Seed),
		PageSize:     s.cfg.Enumeration.PageSize,
		MaxPages:     s.cfg.Enumeration.MaxPages,
		Now:          now,
		Logger:       logging.NewTFLogger(s.ctx, logging.SubsystemJobs),
		Metrics:      s.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create job simulator: %w", err)
	}

	result, err := simulator.Run(s.ctx)
	if result != nil {
		fmt.Fprintf(stdout, "Run:       %s\n", result.RunID)
		fmt.Fprintf(stdout, "Users:     %d\n", result.Users)
		fmt.Fprintf(stdout, "Printers:  %d\n", result.Printers)
		fmt.Fprintf(stdout, "Planned:   %d\n", result.Planned)
		fmt.Fprintf(stdout, "Submitted: %d\n", result.Submitted)
		fmt.Fprintf(stdout, "Failed:    %d\n", result.Failed)
	}
	if err != nil {
		return fmt.Errorf("job simulation failed: %w", err)
	}
	return nil
}
