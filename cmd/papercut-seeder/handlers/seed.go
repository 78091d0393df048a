package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/isometry/papercut-seeder/internal/identity"
	"github.com/isometry/papercut-seeder/internal/logging"
	"github.com/isometry/papercut-seeder/internal/reconcile"
)

// SeedOptions are the seed command inputs. Nil overrides fall back to the
// configuration.
type SeedOptions struct {
	ConfigPath string
	Target     *int
	Seed       *uint64
}

// Seed runs one reconciliation pass and prints its summary.
//
// Identity failures are listed after the summary and returned as an error so
// the process exits non-zero.
func Seed(ctx context.Context, opts SeedOptions) error {
	s, err := openSession(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer s.close("seed")

	target := s.cfg.TargetPopulation.CreateUsersMaxQuantity
	if opts.Target != nil {
		target = *opts.Target
	}

	reconciler, err := reconcile.New(s.directory, identity.NewGenerator(s.resolveSeed(opts.Seed)), reconcile.Options{
		PageSize:  s.cfg.Enumeration.PageSize,
		MaxPages:  s.cfg.Enumeration.MaxPages,
		OnFailure: reconcile.EnumerationPolicy(s.cfg.Enumeration.OnFailure),
		Logger:    logging.NewTFLogger(s.ctx, logging.SubsystemReconcile),
		Metrics:   s.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}

	result, err := reconciler.Reconcile(s.ctx, reconcile.Target{Count: target})
	if result != nil {
		printSeedSummary(result, target)
	}

	var agg *reconcile.AggregateError
	if errors.As(err, &agg) {
		fmt.Fprintf(stdout, "\n%d identities failed:\n", len(agg.Failures))
		for _, f := range agg.Failures {
			fmt.Fprintf(stdout, "  %-16s %s: %v\n", f.Stage, f.Login, f.Err)
		}
	}

	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	return nil
}

func printSeedSummary(result *reconcile.Result, target int) {
	fmt.Fprintf(stdout, "Run:      %s\n", result.RunID)
	fmt.Fprintf(stdout, "Target:   %d\n", target)
	fmt.Fprintf(stdout, "Observed: %d\n", result.Initial)

	if result.Noop() && result.Accounts != nil {
		fmt.Fprintln(stdout, "Population already satisfies the target, nothing created.")
		return
	}

	fmt.Fprintf(stdout, "Deficit:  %d\n", result.Deficit)
	fmt.Fprintf(stdout, "Created:  %d\n", result.Created)
	if result.Accounts != nil {
		fmt.Fprintf(stdout, "Final:    %d\n", len(result.Accounts))
	}
}
