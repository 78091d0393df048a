// Package jobs backfills the remote server's print log with simulated jobs.
//
// A run spreads a random number of jobs over each of the last few days,
// attributing them to existing users and printers, and submits each one as a
// raw job record.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/isometry/papercut-seeder/internal/logging"
	"github.com/isometry/papercut-seeder/internal/metrics"
	"github.com/isometry/papercut-seeder/internal/pagination"
	"github.com/isometry/papercut-seeder/internal/papercut"
	"github.com/isometry/papercut-seeder/internal/retry"
)

// TimeLayout is the job record timestamp format.
const TimeLayout = "20060102T150405"

const (
	minutesPerDay = 1440
	minJitter     = 5
	maxJitter     = 47
	maxPages      = 31
)

// FallbackUsers stand in when the directory has no accounts.
var FallbackUsers = []string{
	"user.A", "user.B", "user.C", "user.D", "user.E", "user.F",
	"user.G", "user.H", "user.I", "user.J", "user.K", "user.L",
}

// FallbackPrinters stand in when the directory has no printers.
var FallbackPrinters = []string{
	"printer A", "printer B", "printer C", "printer D",
	"printer E", "printer F", "printer G",
}

// Job is one simulated print job.
type Job struct {
	User       string
	Server     string
	Printer    string
	Time       time.Time
	TotalPages int
	ColorPages int
	Copies     int
	Document   string
	Comment    string
}

// Record renders the job in the comma-separated key=value form accepted by
// api.processJob. Commas and double quotes are stripped from every value.
func (j Job) Record() string {
	fields := []struct{ key, value string }{
		{"user", j.User},
		{"server", j.Server},
		{"printer", j.Printer},
		{"time", j.Time.Format(TimeLayout)},
		{"total-pages", strconv.Itoa(j.TotalPages)},
		{"total-color-pages", strconv.Itoa(j.ColorPages)},
		{"copies", strconv.Itoa(j.Copies)},
		{"document-name", j.Document},
		{"comment", j.Comment},
	}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(clean(f.value))
	}
	return b.String()
}

func clean(v string) string {
	return strings.TrimSpace(strings.NewReplacer(",", "", `"`, "").Replace(v))
}

// printerName drops the print server prefix of a server\printer name.
func printerName(p string) string {
	if _, name, ok := strings.Cut(p, `\`); ok {
		return name
	}
	return p
}

// Options configures a Simulator.
type Options struct {
	Days         int
	MaxDailyJobs int
	ServerName   string
	DocumentName string
	Comment      string
	Seed         uint64
	PageSize     int
	MaxPages     int
	Now          func() time.Time
	Logger       logging.Logger
	Metrics      *metrics.Recorder
}

// Result summarises one run.
type Result struct {
	RunID     string
	Users     int
	Printers  int
	Planned   int
	Submitted int
	Failed    int
	Duration  time.Duration
}

// JobError is one job the server rejected.
type JobError struct {
	Job Job
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job for %s on %s at %s: %v", e.Job.User, e.Job.Printer, e.Job.Time.Format(TimeLayout), e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Simulator generates and submits print jobs.
type Simulator struct {
	directory papercut.Directory
	lister    *pagination.Lister[string]
	faker     *gofakeit.Faker
	opts      Options
	logger    logging.Logger
}

// New creates a simulator.
func New(directory papercut.Directory, opts Options) (*Simulator, error) {
	if directory == nil {
		return nil, fmt.Errorf("directory cannot be nil")
	}
	if opts.Days < 1 {
		return nil, fmt.Errorf("days must be at least 1, got %d", opts.Days)
	}
	if opts.MaxDailyJobs < 1 {
		return nil, fmt.Errorf("max daily jobs must be at least 1, got %d", opts.MaxDailyJobs)
	}
	if opts.PageSize == 0 {
		opts.PageSize = pagination.MaxPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := logging.OrNop(opts.Logger)

	return &Simulator{
		directory: directory,
		lister:    pagination.NewLister[string](opts.PageSize,
			pagination.WithMaxPages(opts.MaxPages), pagination.WithLogger(logger)),
		faker:     gofakeit.New(opts.Seed),
		opts:      opts,
		logger:    logger,
	}, nil
}

// Plan lays out the jobs for the configured days without submitting them.
// Days run oldest first and end with yesterday. A day's jobs are evenly spaced
// from midnight, each shifted by a few seconds of jitter, and never spill into
// the next day.
func (s *Simulator) Plan(users, printers []string) []Job {
	if len(users) == 0 {
		users = FallbackUsers
	}
	if len(printers) == 0 {
		printers = FallbackPrinters
	}

	now := s.opts.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var jobs []Job
	for d := s.opts.Days; d >= 1; d-- {
		midnight := today.AddDate(0, 0, -d)
		count := s.dailyCount()
		interval := minutesPerDay * time.Minute / time.Duration(count)

		for i := range count {
			jitter := time.Duration(s.faker.IntRange(minJitter, maxJitter)) * time.Second
			at := midnight.Add(time.Duration(i) * interval).Add(jitter)

			pages := s.faker.IntRange(1, maxPages)
			jobs = append(jobs, Job{
				User:       users[s.faker.IntRange(0, len(users)-1)],
				Server:     s.opts.ServerName,
				Printer:    printerName(printers[s.faker.IntRange(0, len(printers)-1)]),
				Time:       at,
				TotalPages: pages,
				ColorPages: s.faker.IntRange(0, pages-1),
				Copies:     1,
				Document:   s.opts.DocumentName,
				Comment:    s.opts.Comment,
			})
		}
	}

	return jobs
}

// dailyCount draws from [max/2, max), never below one job.
func (s *Simulator) dailyCount() int {
	lo := max(s.opts.MaxDailyJobs/2, 1)
	hi := max(s.opts.MaxDailyJobs-1, lo)
	return s.faker.IntRange(lo, hi)
}

// Run enumerates users and printers, plans the jobs and submits them in
// chronological order. Rejected jobs are collected and returned joined;
// exhausted retries and cancellation stop the run.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: uuid.NewString()}

	s.logger.Info("Starting job simulation", map[string]any{
		"run_id":         result.RunID,
		"days":           s.opts.Days,
		"max_daily_jobs": s.opts.MaxDailyJobs,
	})

	users, err := pagination.Collect(s.lister.Enumerate(ctx, "accounts", s.directory.ListAccounts))
	if err != nil {
		return s.finish(result, start, fmt.Errorf("failed to enumerate accounts: %w", err))
	}
	printers, err := pagination.Collect(s.lister.Enumerate(ctx, "printers", s.directory.ListPrinters))
	if err != nil {
		return s.finish(result, start, fmt.Errorf("failed to enumerate printers: %w", err))
	}

	result.Users = len(users)
	result.Printers = len(printers)
	if len(users) == 0 || len(printers) == 0 {
		s.logger.Warn("Directory is empty, using placeholder names", map[string]any{
			"run_id":   result.RunID,
			"users":    len(users),
			"printers": len(printers),
		})
	}

	jobs := s.Plan(users, printers)
	result.Planned = len(jobs)

	var failures []error
	for i, job := range jobs {
		err := s.directory.SubmitJobRecord(ctx, job.Record())
		s.opts.Metrics.RecordJob(err)
		if err == nil {
			result.Submitted++
			continue
		}

		if retry.IsAbort(err) {
			failures = append([]error{fmt.Errorf("aborted at job %d of %d: %w", i+1, len(jobs), err)}, failures...)
			return s.finish(result, start, errors.Join(failures...))
		}

		result.Failed++
		failures = append(failures, &JobError{Job: job, Err: err})
		s.logger.Warn("Job rejected, continuing with the next one", map[string]any{
			"run_id":  result.RunID,
			"user":    job.User,
			"printer": job.Printer,
			"time":    job.Time.Format(TimeLayout),
			"error":   err.Error(),
		})
	}

	return s.finish(result, start, errors.Join(failures...))
}

func (s *Simulator) finish(result *Result, start time.Time, err error) (*Result, error) {
	result.Duration = time.Since(start)

	fields := map[string]any{
		"run_id":      result.RunID,
		"planned":     result.Planned,
		"submitted":   result.Submitted,
		"failed":      result.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger.Error("Job simulation finished with errors", fields)
	} else {
		s.logger.Info("Job simulation finished", fields)
	}

	return result, err
}
