package consts

import "os"

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// DefaultConfigFile is the config file loaded when --config isn't given
	DefaultConfigFile = "dbchores.yaml"

	// DefaultClickHouseVersion is the ClickHouse image tag used by test containers
	DefaultClickHouseVersion = "25.7"

	// TemplateSuffix marks query files that must be rendered before execution
	TemplateSuffix = ".tmpl"

	// SQLSuffix marks plain SQL script files
	SQLSuffix = ".sql"
)

// Engine names known to the CLI.
const (
	EnginePostgres   = "postgres"
	EngineClickHouse = "clickhouse"
	EngineSQLite     = "sqlite"
)

const (
	// ConfigEnvVar overrides the config file location
	ConfigEnvVar = "DBCHORES_CONFIG"

	// DefaultHistoryFile is the ledger used when none is configured
	DefaultHistoryFile = ".dbchores_history"

	// FactsSidecarSuffix names the file, next to the history, that keeps the
	// facts of previous runs
	FactsSidecarSuffix = ".facts.json"
)

// Engines lists every engine name in the order they're documented.
var Engines = []string{EnginePostgres, EngineClickHouse, EngineSQLite}
