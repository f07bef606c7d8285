package cmd

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/batch"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/utils"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type globParams struct {
	fx.In

	Registry *engine.Registry
}

// globCmd creates the glob command, which runs every .sql and .tmpl file in
// a directory against a single engine and database, in path order. Files are
// recorded in the history by path.
//
// Example usage:
//
//	dbchores glob --engine postgres --host db1 --db acme --dir ./sql
//	DBCHORES_PASSWORD=secret dbchores glob --engine clickhouse --user ops --dir ./ch
//	dbchores glob --engine sqlite --host ./app.db --dir ./migrations --split
func globCmd(p globParams) *cli.Command {
	flags := append(batchFlags(),
		&cli.StringFlag{
			Name:     "engine",
			Aliases:  []string{"e"},
			Usage:    "the engine to run against (postgres, clickhouse, sqlite)",
			Required: true,
			Validator: func(s string) error {
				if slices.Contains(consts.Engines, s) {
					return nil
				}

				return errors.Errorf("unknown engine %q (expected one of %v)", s, consts.Engines)
			},
		},
		&cli.StringFlag{
			Name:     "dir",
			Usage:    "the directory of query files",
			Required: true,
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:  "db",
			Usage: "the database",
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "the server host (for sqlite, the database file)",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "the server port (defaults per engine)",
		},
		&cli.StringFlag{
			Name:  "socket",
			Usage: "unix socket used when host is localhost",
		},
		&cli.StringFlag{
			Name:  "ssl-mode",
			Usage: "TLS mode (disable, prefer, require, verify-ca, verify-full)",
		},
		&cli.StringFlag{
			Name:  "user",
			Usage: "the user to connect as (defaults per engine)",
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "the password to connect with",
			Sources: cli.EnvVars("DBCHORES_PASSWORD"),
		},
		&cli.BoolFlag{
			Name:  "autocommit",
			Usage: "run each statement outside a transaction",
		},
		&cli.BoolFlag{
			Name:  "split",
			Usage: "run and record each statement of a file separately",
		},
	)

	return &cli.Command{
		Name:  "glob",
		Usage: "Run every query file in a directory",
		Description: `Run every .sql and .tmpl file under --dir, ordered by path, as a single
admin group. No config file is needed.

Files are recorded in the history by path, so re-running the command only
runs files that haven't completed.`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runGlob(ctx, cmd, p)
		},
	}
}

func runGlob(ctx context.Context, cmd *cli.Command, p globParams) error {
	dir, err := filepath.Abs(cmd.String("dir"))
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", cmd.String("dir"))
	}

	engineName := cmd.String("engine")
	spec, err := batch.FromDir(os.DirFS(dir), dir, batch.QueryGroup{
		Name:       filepath.Base(dir),
		Engine:     engineName,
		DB:         cmd.String("db"),
		Autocommit: utils.Ptr(cmd.Bool("autocommit")),
		Split:      cmd.Bool("split"),
	})
	if err != nil {
		return err
	}

	resolver := &connection.Resolver{
		Defaults: connection.Defaults{Engine: engineName},
		Targets: map[string]connection.Target{
			engineName: {
				Host:    cmd.String("host"),
				Port:    int(cmd.Int("port")),
				Socket:  cmd.String("socket"),
				SSLMode: cmd.String("ssl-mode"),
			},
		},
		Credentials: connection.ChainCredentials{
			connection.StaticCredentials{
				engineName: {User: cmd.String("user"), Password: cmd.String("password")},
			},
			connection.EnvCredentials{},
		},
		Engines: p.Registry.Defaults(),
	}

	history := cmd.String("history")
	if history == "" {
		history = consts.DefaultHistoryFile
	}

	return executeBatch(ctx, cmd.Root().Writer, p.Registry, resolver, spec, batchOptions{
		Check:           cmd.Bool("check"),
		ContinueOnError: cmd.Bool("continue-on-error"),
		History:         history,
		MetricsFile:     cmd.String("metrics-file"),
		Timeout:         cmd.Duration("timeout"),
		BaseDir:         dir,
	})
}
