package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/config"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Config     *config.File
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// Run creates and executes the dbchores CLI application. The application is
// started by the fx lifecycle and shuts the app down with a non-zero exit
// code when the command fails.
//
// Global Flags:
//   - --config, -c: the config file (DBCHORES_CONFIG, default dbchores.yaml)
//   - --log-level: debug, info, warn or error
//
// Example usage:
//
//	dbchores run --check
//	dbchores glob --engine postgres --db acme --dir ./sql
//	dbchores --config ops/dbchores.yaml history
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := &cli.Command{
		Name:  "dbchores",
		Usage: "Run batches of administrative SQL with a resumable history",
		Description: `dbchores runs batches of SQL against PostgreSQL, ClickHouse and SQLite.

A batch has two phases. Fact queries run first and store their results by
name; admin queries run next and may reference those facts as named
parameters or template values. Every completed query is appended to a
history file, and queries already in the history are skipped, so a failed
batch can simply be run again.`,
		Version: p.Version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "the dbchores config file",
				Sources: cli.EnvVars(consts.ConfigEnvVar),
				Value:   consts.DefaultConfigFile,
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := configureLogging(cmd.String("log-level")); err != nil {
				return ctx, err
			}

			if cmd.IsSet("config") {
				p.Config.Path = cmd.String("config")
			}

			return ctx, nil
		},
		Commands: p.Commands,
	}

	// batches routinely outlast fx's start timeout, so the command runs
	// outside the hook
	p.Lifecycle.Append(fx.StartHook(func() {
		go func() {
			if err := app.Run(p.Ctx, p.Args); err != nil {
				slog.Error("Error running command", "err", err)
				_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				return
			}

			_ = p.Shutdowner.Shutdown(fx.ExitCode(0))
		}()
	}))
}

func configureLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid log level: %s", level)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func requireConfig(file *config.File) func(context.Context, *cli.Command) (context.Context, error) {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if _, err := file.Load(); err != nil {
			return ctx, err
		}

		return ctx, nil
	}
}
