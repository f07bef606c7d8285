package config_test

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/pseudomuto/dbchores/pkg/config"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/dbchores.yaml
var testConfigYAML string

func TestLoadConfig(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		config, err := LoadConfig(strings.NewReader(testConfigYAML))
		require.NoError(t, err)
		validateTestConfig(t, config)
		require.Empty(t, config.Dir)
		require.Equal(t, "state/history.log", config.HistoryPath())
	})

	t.Run("defaults", func(t *testing.T) {
		config, err := LoadConfig(strings.NewReader("other_key: value"))
		require.NoError(t, err)
		require.Equal(t, consts.DefaultHistoryFile, config.History)
		require.Zero(t, config.Timeout)
		require.Zero(t, config.Len())
	})

	t.Run("error", func(t *testing.T) {
		config, err := LoadConfig(strings.NewReader("invalid: yaml: ["))
		require.Error(t, err)
		require.Nil(t, config)
		require.Contains(t, err.Error(), "failed to unmarshal config")

		config, err = LoadConfig(strings.NewReader(""))
		require.Error(t, err)
		require.Nil(t, config)
		require.Contains(t, err.Error(), "failed to unmarshal config")
	})
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "port out of range",
			yaml:   "targets:\n  postgres:\n    port: 70000\n",
			errMsg: "Port",
		},
		{
			name:   "unknown ssl mode",
			yaml:   "targets:\n  postgres:\n    ssl_mode: sometimes\n",
			errMsg: "SSLMode",
		},
		{
			name:   "unknown target engine",
			yaml:   "targets:\n  oracle:\n    host: db\n",
			errMsg: "engine",
		},
		{
			name:   "unknown credentials engine",
			yaml:   "credentials:\n  mysql:\n    user: root\n",
			errMsg: "engine",
		},
		{
			name:   "unknown default engine",
			yaml:   "defaults:\n  engine: oracle\n",
			errMsg: `unknown engine "oracle"`,
		},
		{
			name:   "unknown group engine",
			yaml:   "admin_groups:\n  - engine: mssql\n    queries:\n      - query: SELECT 1\n",
			errMsg: `unknown engine "mssql"`,
		},
		{
			name:   "unknown item engine",
			yaml:   "fact_groups:\n  - queries:\n      - name: x\n        engine: db2\n        query: SELECT 1\n",
			errMsg: `unknown engine "db2"`,
		},
		{
			name:   "negative timeout",
			yaml:   "timeout: -5s\n",
			errMsg: "Timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(strings.NewReader(tt.yaml))
			require.Error(t, err)
			require.Nil(t, config)
			require.Contains(t, err.Error(), "invalid config")
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dbchores.yaml")
		require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), consts.ModeFile))

		config, err := LoadConfigFile(path)
		require.NoError(t, err)
		validateTestConfig(t, config)
		require.Equal(t, dir, config.Dir)
		require.Equal(t, filepath.Join(dir, "state", "history.log"), config.HistoryPath())
	})

	t.Run("error", func(t *testing.T) {
		config, err := LoadConfigFile("nonexistent.yaml")
		require.Error(t, err)
		require.Nil(t, config)
		require.Contains(t, err.Error(), "failed to open file")

		config, err = LoadConfigFile(t.TempDir())
		require.Error(t, err)
		require.Nil(t, config)
	})
}

func TestConfig_Resolver(t *testing.T) {
	config, err := LoadConfig(strings.NewReader(testConfigYAML))
	require.NoError(t, err)

	t.Setenv("DBCHORES_POSTGRES_PASSWORD", "from-env")

	resolver := config.Resolver(map[string]connection.EngineDefaults{
		"postgres":   {Target: connection.Target{Port: 5432}, User: "postgres"},
		"clickhouse": {Target: connection.Target{Port: 9000}, User: "default"},
	})

	cctx, err := resolver.Resolve(connection.Request{})
	require.NoError(t, err)
	require.Equal(t, "postgres", cctx.Engine)
	require.Equal(t, "acme", cctx.DB)
	require.Equal(t, "db1.internal", cctx.Target.Host)
	require.Equal(t, 6432, cctx.Target.Port)
	require.Equal(t, connection.Credentials{User: "admin", Password: "from-env"}, cctx.Credentials)

	cctx, err = resolver.Resolve(connection.Request{GroupEngine: "clickhouse", GroupDB: "analytics"})
	require.NoError(t, err)
	require.Equal(t, 9000, cctx.Target.Port)
	require.Equal(t, "ch1.internal", cctx.Target.Host)
	require.Equal(t, connection.Credentials{User: "ops", Password: "secret"}, cctx.Credentials)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dbchores.yaml")

	missing := &File{Path: path}
	require.False(t, missing.Exists())

	_, err := missing.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")

	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), consts.ModeFile))

	file := &File{Path: path}
	require.True(t, file.Exists())

	first, err := file.Load()
	require.NoError(t, err)
	validateTestConfig(t, first)

	second, err := file.Load()
	require.NoError(t, err)
	require.Same(t, first, second)
}

func validateTestConfig(t *testing.T, config *Config) {
	t.Helper()

	require.Equal(t, connection.Defaults{Engine: "postgres", DB: "acme"}, config.Defaults)
	require.Equal(t, connection.Target{
		Host:        "db1.internal",
		Port:        6432,
		SSLMode:     "verify-full",
		SSLRootCert: "/etc/ssl/certs/root.pem",
	}, config.Targets["postgres"])
	require.Equal(t, "/etc/ssl/ch/ca.crt", config.Targets["clickhouse"].CAFile)
	require.Equal(t, "admin", config.Credentials["postgres"].User)
	require.Equal(t, "state/history.log", config.History)
	require.Equal(t, 30*time.Second, config.Timeout)
	require.Equal(t, map[string]any{"privilege": "SELECT"}, config.Vars)

	require.Len(t, config.FactGroups, 1)
	owner := config.FactGroups[0].Queries[0]
	require.Equal(t, "owner", owner.Name)
	require.Equal(t, map[string]any{"org": 42}, owner.NamedArgs)
	require.Equal(t, "queries/tables.sql", config.FactGroups[0].Queries[1].Query)

	require.Len(t, config.AdminGroups, 2)
	grants := config.AdminGroups[0]
	require.Equal(t, "grants", grants.Name)
	require.NotNil(t, grants.Autocommit)
	require.True(t, *grants.Autocommit)
	require.Equal(t, 5*time.Minute, grants.Timeout)
	require.Equal(t, []any{1}, grants.Queries[1].PositionalArgs)
	require.Equal(t, 10*time.Second, grants.Queries[1].Timeout)

	ch := config.AdminGroups[1]
	require.Equal(t, "clickhouse", ch.Engine)
	require.True(t, ch.Split)
	require.Nil(t, ch.Autocommit)
	require.Equal(t, "events", ch.Queries[0].DB)

	require.Equal(t, 5, config.Len())
}
