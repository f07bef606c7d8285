package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pseudomuto/dbchores/pkg/cmd"
	"github.com/pseudomuto/dbchores/pkg/config"
	"go.uber.org/fx"
)

// NB: These are set by GoReleaser during a build.
var (
	version string
	commit  string
	date    string
)

func main() {
	// cancellation stops the batch before its next query
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fx.New(
		fx.NopLogger,
		fx.Provide(
			func() context.Context { return ctx },
			func() []string { return os.Args },
			func() *cmd.Version {
				return &cmd.Version{
					Version:   version,
					Commit:    commit,
					Timestamp: date,
				}
			},
		),
		config.Module,
		cmd.Module,
	).Run()
}
