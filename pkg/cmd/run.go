package cmd

import (
	"context"
	"maps"

	"github.com/pseudomuto/dbchores/pkg/config"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type runParams struct {
	fx.In

	Config   *config.File
	Registry *engine.Registry
}

// runCmd creates the run command, which executes the batch described by the
// config file: every fact group, then every admin group.
//
// Command flags:
//   - --check: dry run; mutating statements are skipped unless autocommit
//   - --continue-on-error: keep going after a failure
//   - --history: history file (overrides the config)
//   - --facts-in / --facts-out: seed facts from, or save facts to, a JSON file
//   - --metrics-file: write Prometheus metrics when the batch ends
//   - --timeout: default per-query timeout (overrides the config)
//   - --var key=value: template variables (merged over the config's vars)
//
// Example usage:
//
//	dbchores run
//	dbchores run --check --facts-out facts.json
//	dbchores run --facts-in facts.json --var env=prod
func runCmd(p runParams) *cli.Command {
	flags := append(batchFlags(),
		&cli.StringFlag{
			Name:  "facts-in",
			Usage: "seed the fact store from a JSON file",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:  "facts-out",
			Usage: "write the fact store to a JSON file when the batch ends",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringSliceFlag{
			Name:  "var",
			Usage: "template variable as key=value (repeatable)",
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run the batch in the config file",
		Description: `Run every fact group, then every admin group, of the configured batch.

Queries already in the history file are skipped. On failure the command
stops (unless --continue-on-error) and exits non-zero; run it again to
resume from the failed query.`,
		Before: requireConfig(p.Config),
		Flags:  flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runRun(ctx, cmd, p)
		},
	}
}

func runRun(ctx context.Context, cmd *cli.Command, p runParams) error {
	cfg, err := p.Config.Load()
	if err != nil {
		return err
	}

	vars, err := parseVars(cmd.StringSlice("var"))
	if err != nil {
		return err
	}

	merged := maps.Clone(cfg.Vars)
	if merged == nil {
		merged = make(map[string]any)
	}
	maps.Copy(merged, vars)

	opts := batchOptions{
		Check:           cmd.Bool("check"),
		ContinueOnError: cmd.Bool("continue-on-error"),
		History:         cfg.HistoryPath(),
		FactsIn:         cmd.String("facts-in"),
		FactsOut:        cmd.String("facts-out"),
		MetricsFile:     cmd.String("metrics-file"),
		Timeout:         cfg.Timeout,
		Vars:            merged,
		BaseDir:         cfg.Dir,
	}

	if cmd.IsSet("history") {
		opts.History = cmd.String("history")
	}

	if cmd.IsSet("timeout") {
		opts.Timeout = cmd.Duration("timeout")
	}

	spec := cfg.Spec
	return executeBatch(ctx, cmd.Root().Writer, p.Registry, cfg.Resolver(p.Registry.Defaults()), &spec, opts)
}
