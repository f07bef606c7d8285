package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/config"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/ledger"
	"github.com/urfave/cli/v3"
)

// historyCmd lists the entries of a history file in the order they were
// recorded. The file is taken from --history, then the config, then the
// default location.
func historyCmd(file *config.File) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List completed queries",
		Description: `List the entries of the history file in the order they completed.

The file has one entry per line, written verbatim. Entries spanning several
lines are stored on one line starting with "-- dbchores:escaped ", with
newlines and backslashes escaped. Delete a line to make its query run again.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "history",
				Usage: "the history file",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "print entries without truncating them",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := historyPath(cmd, file)
			if err != nil {
				return err
			}

			entries, err := ledger.ReadFile(path)
			if err != nil {
				if os.IsNotExist(errors.Cause(err)) {
					fmt.Fprintf(cmd.Root().Writer, "No history at %s\n", path)
					return nil
				}

				return err
			}

			w := cmd.Root().Writer
			fmt.Fprintf(w, "%s (%d entries)\n", path, len(entries))
			for i, e := range entries {
				if !cmd.Bool("full") {
					e = engine.Truncate(e, 100)
				}

				fmt.Fprintf(w, "%4d  %s\n", i+1, e)
			}

			return nil
		},
	}
}

func historyPath(cmd *cli.Command, file *config.File) (string, error) {
	if cmd.IsSet("history") {
		return cmd.String("history"), nil
	}

	if !file.Exists() {
		return consts.DefaultHistoryFile, nil
	}

	cfg, err := file.Load()
	if err != nil {
		return "", err
	}

	return cfg.HistoryPath(), nil
}
