package logging

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
)

// Subsystem names used across the seeder.
const (
	SubsystemCLI       = "cli"
	SubsystemPapercut  = "papercut"
	SubsystemRetry     = "retry"
	SubsystemReconcile = "reconcile"
	SubsystemJobs      = "jobs"
)

// EnvLevelPrefix is the environment variable prefix for per-subsystem levels.
// Pattern: PAPERCUT_SEEDER_LOG_<SUBSYSTEM>
const EnvLevelPrefix = "PAPERCUT_SEEDER_LOG"

var subsystems = []string{
	SubsystemCLI,
	SubsystemPapercut,
	SubsystemRetry,
	SubsystemReconcile,
	SubsystemJobs,
}

// NewRootContext installs the process-wide root logger and every subsystem.
// It must be called once, before any component is constructed.
func NewRootContext(ctx context.Context, level string) (context.Context, error) {
	lvl := hclog.LevelFromString(strings.TrimSpace(level))
	if lvl == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	ctx = tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName("papercut-seeder"),
		tfsdklog.WithLevel(lvl),
		tfsdklog.WithoutLocation(),
	)

	return WithSubsystems(ctx), nil
}

// WithSubsystems registers the seeder subsystems on a context that already
// carries a root logger.
func WithSubsystems(ctx context.Context) context.Context {
	for _, subsystem := range subsystems {
		ctx = tflog.NewSubsystem(ctx, subsystem,
			tflog.WithLevelFromEnv(EnvLevelPrefix, subsystem))
		ctx = tflog.SubsystemMaskFieldValuesWithFieldKeys(ctx, subsystem, "auth_token", "token")
	}
	return ctx
}
