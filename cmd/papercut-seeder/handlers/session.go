// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic: they take a context and plain options, and
// build every component from the loaded configuration.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/isometry/papercut-seeder/internal/config"
	"github.com/isometry/papercut-seeder/internal/identity"
	"github.com/isometry/papercut-seeder/internal/logging"
	"github.com/isometry/papercut-seeder/internal/metrics"
	"github.com/isometry/papercut-seeder/internal/pagination"
	"github.com/isometry/papercut-seeder/internal/papercut"
	"github.com/isometry/papercut-seeder/internal/retry"
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfig layers defaults, the config file and the process environment.
	loadConfig = func(path string) (*config.Config, error) {
		return config.Load(path, nil)
	}

	// newDirectory creates the remote directory client.
	newDirectory = func(cfg *config.Config, executor *retry.Executor, opts ...papercut.ClientOption) (papercut.Directory, error) {
		return papercut.NewClientFromConfig(cfg.RemoteServer.ConnectionConfig(), executor, opts...)
	}

	// stdout receives command output.
	stdout io.Writer = os.Stdout

	// now stamps run completion.
	now = time.Now
)

// session holds what every command needs once configuration is loaded.
type session struct {
	ctx       context.Context
	cfg       *config.Config
	directory papercut.Directory
	metrics   *metrics.Recorder
	logger    logging.Logger
}

func openSession(ctx context.Context, configPath string) (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ctx, err = logging.NewRootContext(ctx, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()

	executor, err := retry.NewExecutor(cfg.RetryPolicy.Policy(),
		retry.WithLogger(logging.NewTFLogger(ctx, logging.SubsystemRetry)))
	if err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	directory, err := newDirectory(cfg, executor,
		papercut.WithLogger(logging.NewTFLogger(ctx, logging.SubsystemPapercut)),
		papercut.WithObserver(recorder),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s := &session{
		ctx:       ctx,
		cfg:       cfg,
		directory: directory,
		metrics:   recorder,
		logger:    logging.NewTFLogger(ctx, logging.SubsystemCLI),
	}

	s.logger.Debug("Configuration loaded", logging.SanitizeFields(map[string]any{
		"config_path": configPath,
		"server":      cfg.RemoteServer.ConnectionConfig().Endpoint(),
		"auth_token":  cfg.RemoteServer.AuthToken,
		"page_size":   cfg.Enumeration.PageSize,
		"max_pages":   cfg.Enumeration.MaxPages,
		"on_failure":  cfg.Enumeration.OnFailure,
	}))

	return s, nil
}

func (s *session) listerOptions() []pagination.Option {
	return []pagination.Option{
		pagination.WithMaxPages(s.cfg.Enumeration.MaxPages),
		pagination.WithLogger(s.logger),
	}
}

// resolveSeed picks the effective generator seed and logs it once so a run can
// be reproduced.
func (s *session) resolveSeed(override *uint64) uint64 {
	seed := s.cfg.Generator.Seed
	if override != nil {
		seed = *override
	}
	resolved := identity.ResolveSeed(seed)
	s.logger.Info("Using generator seed", map[string]any{
		"seed":       resolved,
		"configured": seed,
	})
	return resolved
}

// close stamps the run and pushes metrics. A failed push is logged, never
// returned, so it cannot mask the command's own result.
func (s *session) close(command string) {
	s.metrics.MarkRun(command, now())

	if s.cfg.Metrics.PushGatewayURL == "" {
		return
	}
	// The command context may already be cancelled; the push still gets a
	// bounded window of its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()

	if err := s.metrics.Push(ctx, s.cfg.Metrics.PushGatewayURL, s.cfg.Metrics.JobName); err != nil {
		s.logger.Warn("Failed to push metrics", map[string]any{
			"error": err.Error(),
		})
	}
}
