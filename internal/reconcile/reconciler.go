// Package reconcile guarantees a minimum account population on the remote
// directory, creating synthetic accounts only when the population is short.
//
// A pass measures the population, computes the deficit once, provisions one
// identity per missing account and finally re-reads the remote population.
// Passes assume they are the only writer for their duration; two concurrent
// passes can both observe the same deficit and over-create.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/isometry/papercut-seeder/internal/identity"
	"github.com/isometry/papercut-seeder/internal/logging"
	"github.com/isometry/papercut-seeder/internal/metrics"
	"github.com/isometry/papercut-seeder/internal/pagination"
	"github.com/isometry/papercut-seeder/internal/papercut"
	"github.com/isometry/papercut-seeder/internal/retry"
)

// EnumerationPolicy decides what a failed initial measurement means.
type EnumerationPolicy string

const (
	// EnumerationAbort stops the pass when the population cannot be measured.
	EnumerationAbort EnumerationPolicy = "abort"

	// EnumerationTreatAsEmpty proceeds as if the directory were empty when the
	// initial measurement fails. Every trigger is logged as a warning since it
	// can mass-create duplicates. Errors matched by retry.IsAbort still abort
	// the pass, as do pagination protocol violations.
	EnumerationTreatAsEmpty EnumerationPolicy = "treat-as-empty"
)

// Target is the minimum population a pass guarantees.
type Target struct {
	Count int
}

// Generator is the identity source the reconciler draws from.
type Generator interface {
	NewPools() identity.Pools
	Generate(pools identity.Pools) identity.AccountIdentity
}

// Options configures a Reconciler.
type Options struct {
	PageSize  int
	MaxPages  int // Zero means no limit
	OnFailure EnumerationPolicy
	Logger    logging.Logger
	Metrics   *metrics.Recorder
}

// Result describes one pass.
type Result struct {
	RunID    string
	Initial  int           // Accounts observed before any creation
	Deficit  int           // Accounts the pass set out to create
	Created  int           // Accounts whose creation call succeeded
	Accounts []string      // Final enumerated population; nil when the pass aborted
	Duration time.Duration // Wall time of the pass
}

// Noop reports whether the pass found nothing to do.
func (r *Result) Noop() bool {
	return r.Deficit == 0
}

// Reconciler runs population reconciliation passes.
type Reconciler struct {
	directory papercut.Directory
	generator Generator
	lister    *pagination.Lister[string]
	onFailure EnumerationPolicy
	logger    logging.Logger
	metrics   *metrics.Recorder
	fold      cases.Caser
}

// New creates a reconciler.
func New(directory papercut.Directory, generator Generator, opts Options) (*Reconciler, error) {
	if directory == nil {
		return nil, fmt.Errorf("directory cannot be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}

	switch opts.OnFailure {
	case "":
		opts.OnFailure = EnumerationAbort
	case EnumerationAbort, EnumerationTreatAsEmpty:
	default:
		return nil, fmt.Errorf("unknown enumeration failure policy %q", opts.OnFailure)
	}

	if opts.PageSize == 0 {
		opts.PageSize = pagination.MaxPageSize
	}

	logger := logging.OrNop(opts.Logger)

	return &Reconciler{
		directory: directory,
		generator: generator,
		lister:    pagination.NewLister[string](opts.PageSize,
			pagination.WithMaxPages(opts.MaxPages), pagination.WithLogger(logger)),
		onFailure: opts.OnFailure,
		logger:    logger,
		metrics:   opts.Metrics,
		fold:      cases.Fold(),
	}, nil
}

// Reconcile runs one pass against target.
//
// Per-identity permanent failures do not stop the pass; they are returned as
// an *AggregateError alongside the re-enumerated population. Exhausted retries
// and cancellation abort the pass: the returned Result then has no Accounts
// and the error carries any failures collected so far.
func (r *Reconciler) Reconcile(ctx context.Context, target Target) (*Result, error) {
	if target.Count < 0 {
		return nil, fmt.Errorf("target count cannot be negative, got %d", target.Count)
	}

	start := time.Now()
	result := &Result{RunID: uuid.NewString()}
	fields := map[string]any{
		"run_id": result.RunID,
		"target": target.Count,
	}

	r.logger.Info("Starting reconciliation pass", fields)

	accounts, err := r.measure(ctx, result.RunID)
	if err != nil {
		return r.finish(result, start, metrics.ResultError, fmt.Errorf("failed to measure account population: %w", err))
	}

	result.Initial = len(accounts)
	r.metrics.SetAccountsObserved(result.Initial)

	if result.Initial >= target.Count {
		result.Accounts = accounts
		r.logger.Info("Account population satisfies target, nothing to create", map[string]any{
			"run_id":   result.RunID,
			"target":   target.Count,
			"observed": result.Initial,
		})
		return r.finish(result, start, metrics.ResultNoop, nil)
	}

	result.Deficit = target.Count - result.Initial

	r.logger.Info("Account population below target", map[string]any{
		"run_id":   result.RunID,
		"target":   target.Count,
		"observed": result.Initial,
		"deficit":  result.Deficit,
	})

	failures := &AggregateError{}
	if err := r.provision(ctx, result, accounts, failures); err != nil {
		return r.finish(result, start, metrics.ResultError, errors.Join(err, failures.orNil()))
	}

	final, err := r.enumerate(ctx)
	if err != nil {
		return r.finish(result, start, metrics.ResultError,
			errors.Join(fmt.Errorf("failed to re-enumerate accounts: %w", err), failures.orNil()))
	}
	result.Accounts = final
	r.metrics.SetAccountsObserved(len(final))

	if agg := failures.orNil(); agg != nil {
		return r.finish(result, start, metrics.ResultPartial, agg)
	}
	return r.finish(result, start, metrics.ResultSuccess, nil)
}

// provision creates result.Deficit identities. It returns a non-nil error only
// when the pass must abort.
func (r *Reconciler) provision(ctx context.Context, result *Result, existing []string, failures *AggregateError) error {
	known := make(map[string]bool, len(existing)+result.Deficit)
	for _, login := range existing {
		known[r.fold.String(login)] = true
	}

	pools := r.generator.NewPools()

	for i := range result.Deficit {
		id := r.generator.Generate(pools)
		fields := map[string]any{
			"run_id":   result.RunID,
			"login":    id.Login,
			"sequence": i + 1,
			"deficit":  result.Deficit,
		}

		if known[r.fold.String(id.Login)] {
			r.logger.Debug("Generated login matches an existing account", fields)
		}

		if err := r.directory.CreateAccount(ctx, id.Login); err != nil {
			if retry.IsAbort(err) {
				return fmt.Errorf("aborted creating account %d of %d: %w", i+1, result.Deficit, err)
			}
			r.recordFailure(failures, id.Login, StageCreate, err, fields)
			continue
		}
		result.Created++
		known[r.fold.String(id.Login)] = true
		r.metrics.RecordAccountCreated()

		if err := r.directory.SetAccountProperties(ctx, id.Login, BatchFor(id)); err != nil {
			if retry.IsAbort(err) {
				return fmt.Errorf("aborted setting properties of account %d of %d: %w", i+1, result.Deficit, err)
			}
			r.recordFailure(failures, id.Login, StageSetProperties, err, fields)
			continue
		}

		r.logger.Debug("Account provisioned", fields)
	}

	return nil
}

func (r *Reconciler) recordFailure(failures *AggregateError, login string, stage Stage, err error, fields map[string]any) {
	failures.add(login, stage, err)
	r.metrics.RecordIdentityFailure(string(stage))

	entry := maps.Clone(fields)
	entry["stage"] = string(stage)
	entry["error"] = err.Error()
	r.logger.Warn("Identity failed, continuing with the next one", entry)
}

// measure enumerates the initial population and applies the failure policy.
func (r *Reconciler) measure(ctx context.Context, runID string) ([]string, error) {
	accounts, err := r.enumerate(ctx)
	if err == nil {
		return accounts, nil
	}

	if r.onFailure == EnumerationTreatAsEmpty && !retry.IsAbort(err) &&
		!errors.Is(err, pagination.ErrProtocolViolation) {
		r.logger.Warn("Account enumeration failed, treating directory as empty", map[string]any{
			"run_id": runID,
			"policy": string(r.onFailure),
			"error":  err.Error(),
		})
		return []string{}, nil
	}

	return nil, err
}

func (r *Reconciler) enumerate(ctx context.Context) ([]string, error) {
	return pagination.Collect(r.lister.Enumerate(ctx, "accounts", r.directory.ListAccounts))
}

func (r *Reconciler) finish(result *Result, start time.Time, outcome string, err error) (*Result, error) {
	result.Duration = time.Since(start)
	r.metrics.RecordReconcile(outcome, result.Duration)

	fields := map[string]any{
		"run_id":      result.RunID,
		"outcome":     outcome,
		"initial":     result.Initial,
		"deficit":     result.Deficit,
		"created":     result.Created,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Accounts != nil {
		fields["final"] = len(result.Accounts)
	}

	if err != nil {
		fields["error"] = err.Error()
		r.logger.Error("Reconciliation pass finished with errors", fields)
	} else {
		r.logger.Info("Reconciliation pass finished", fields)
	}

	return result, err
}

// BatchFor builds the fixed eleven-property batch for a new account.
func BatchFor(id identity.AccountIdentity) papercut.PropertyBatch {
	restricted := "FALSE"
	if id.Restricted {
		restricted = "TRUE"
	}

	return papercut.PropertyBatch{
		{Name: papercut.PropertyPrimaryCardNumber, Value: id.PrimaryCard},
		{Name: papercut.PropertySecondaryCardNumber, Value: id.SecondaryCard},
		{Name: papercut.PropertyDepartment, Value: id.Department},
		{Name: papercut.PropertyEmail, Value: id.Email},
		{Name: papercut.PropertyFullName, Value: id.FullName},
		{Name: papercut.PropertyUsernameAlias, Value: id.Alias},
		{Name: papercut.PropertyNotes, Value: id.Notes},
		{Name: papercut.PropertyOffice, Value: id.Office},
		{Name: papercut.PropertyRestricted, Value: restricted},
		{Name: papercut.PropertyHome, Value: id.Home},
		{Name: papercut.PropertyCardPIN, Value: id.PIN},
	}
}
