package cmd

import (
	"context"
	"fmt"

	"github.com/pseudomuto/dbchores/pkg/batch"
	"github.com/pseudomuto/dbchores/pkg/source"
	"github.com/urfave/cli/v3"
)

// validateCmd checks the config and the batch structure and resolves every
// query's connection, without connecting or reading the history.
func validateCmd(p runParams) *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Validate the config and batch without running anything",
		Before: requireConfig(p.Config),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := p.Config.Load()
			if err != nil {
				return err
			}

			o := batch.New(batch.Config{
				Resolver: cfg.Resolver(p.Registry.Defaults()),
				Registry: p.Registry,
				Loader:   &source.Loader{BaseDir: cfg.Dir},
			})

			if err := o.Validate(&cfg.Spec); err != nil {
				return err
			}

			fmt.Fprintf(cmd.Root().Writer, "✅ %s is valid: %d queries in %d fact and %d admin groups\n",
				p.Config.Path,
				cfg.Len(),
				len(cfg.FactGroups),
				len(cfg.AdminGroups),
			)

			return nil
		},
	}
}
