// Package main is the entry point for the papercut-seeder CLI.
//
// papercut-seeder keeps a print-management server populated with synthetic
// user accounts and backfills its print log with simulated jobs, for
// demonstration and load-testing environments.
//
// Commands: seed, list, simulate-jobs, version.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/isometry/papercut-seeder/cmd/papercut-seeder/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
