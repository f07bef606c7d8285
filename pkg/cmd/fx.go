package cmd

import (
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/engine/clickhouse"
	"github.com/pseudomuto/dbchores/pkg/engine/postgres"
	"github.com/pseudomuto/dbchores/pkg/engine/sqlite"
	"go.uber.org/fx"
)

var Module = fx.Module("cli",
	fx.Provide(
		newRegistry,
		fx.Annotate(globCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(historyCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(runCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(validateCmd, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)

func newRegistry() *engine.Registry {
	return engine.NewRegistry(map[string]engine.Driver{
		consts.EnginePostgres:   postgres.New(),
		consts.EngineClickHouse: clickhouse.New(),
		consts.EngineSQLite:     sqlite.New(),
	})
}
