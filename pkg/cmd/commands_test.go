package cmd

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/dbchores/pkg/cmd/testutil"
	"github.com/pseudomuto/dbchores/pkg/config"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/pseudomuto/dbchores/pkg/ledger"
	"github.com/stretchr/testify/require"
)

const projectConfig = `defaults:
  engine: sqlite
targets:
  sqlite:
    host: %s
history: history.log
vars:
  extra: bob
fact_groups:
  - name: owners
    queries:
      - name: owner
        query: SELECT 'alice' AS owner
admin_groups:
  - name: setup
    queries:
      - query: CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT)
      - query: queries/seed.sql.tmpl
      - query: INSERT INTO accounts (owner) VALUES (%%(owner)s)
`

type project struct {
	dir      string
	dbPath   string
	history  string
	template string
	params   runParams
}

func newProject(t *testing.T) *project {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")

	cfgPath := testutil.WriteFile(t, dir, "dbchores.yaml", fmt.Sprintf(projectConfig, dbPath))
	tmpl := testutil.WriteFile(t, dir, "queries/seed.sql.tmpl",
		"INSERT INTO accounts (owner) VALUES ('{{ .vars.extra }}')\n")

	return &project{
		dir:      dir,
		dbPath:   dbPath,
		history:  filepath.Join(dir, "history.log"),
		template: tmpl,
		params: runParams{
			Config:   &config.File{Path: cfgPath},
			Registry: newRegistry(),
		},
	}
}

func (p *project) owners(t *testing.T) []string {
	t.Helper()

	db, err := sql.Open("sqlite", p.dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows, err := db.Query("SELECT owner FROM accounts ORDER BY id")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var owners []string
	for rows.Next() {
		var o string
		require.NoError(t, rows.Scan(&o))
		owners = append(owners, o)
	}

	require.NoError(t, rows.Err())
	return owners
}

func TestRunCommand(t *testing.T) {
	p := newProject(t)

	out, err := testutil.RunCommand(t, runCmd(p.params))
	require.NoError(t, err)
	require.Contains(t, out, "Summary: 4 successful, 0 failed, 0 skipped")
	require.Contains(t, out, "[fact/owners] SELECT 'alice' AS owner -> owner completed")

	require.Equal(t, []string{"bob", "alice"}, p.owners(t))
	testutil.RequireHistory(t, p.history,
		"SELECT 'alice' AS owner",
		"CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT)",
		p.template,
		"INSERT INTO accounts (owner) VALUES (%(owner)s)",
	)

	// a second run finds everything in the history
	out, err = testutil.RunCommand(t, runCmd(p.params))
	require.NoError(t, err)
	require.Contains(t, out, "Summary: 0 successful, 0 failed, 4 skipped")
	require.Contains(t, out, "Nothing to do.")
	require.Equal(t, []string{"bob", "alice"}, p.owners(t))
}

func TestRunCommand_Check(t *testing.T) {
	p := newProject(t)

	out, err := testutil.RunCommand(t, runCmd(p.params), "--check")
	require.NoError(t, err)
	require.Contains(t, out, "check mode, nothing recorded")
	require.Contains(t, out, "Summary: 1 successful, 0 failed, 3 skipped")
	require.NoFileExists(t, p.history)
	require.NoFileExists(t, p.history+consts.FactsSidecarSuffix)
}

func TestRunCommand_FactsAndMetrics(t *testing.T) {
	p := newProject(t)
	factsOut := filepath.Join(p.dir, "facts.json")
	metricsOut := filepath.Join(p.dir, "dbchores.prom")

	_, err := testutil.RunCommand(t, runCmd(p.params),
		"--facts-out", factsOut,
		"--metrics-file", metricsOut,
		"--var", "extra=carol",
	)
	require.NoError(t, err)
	require.Equal(t, []string{"carol", "alice"}, p.owners(t))

	testutil.RequireFileContains(t, factsOut, `"owner"`, `"alice"`)
	testutil.RequireFileContains(t, metricsOut,
		`dbchores_queries_total{engine="sqlite",outcome="executed",phase="admin"} 3`,
		`dbchores_batch_state{state="Done"} 1`,
		"dbchores_facts 1",
	)
}

func TestRunCommand_Failure(t *testing.T) {
	p := newProject(t)

	// the table already exists, so the batch fails on its first admin query
	db, err := sql.Open("sqlite", p.dbPath)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := testutil.RunCommand(t, runCmd(p.params))
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
	require.Contains(t, out, "❌ [admin/setup] CREATE TABLE accounts")
	require.Contains(t, out, "Summary: 1 successful, 1 failed, 0 skipped")

	testutil.RequireHistory(t, p.history, "SELECT 'alice' AS owner")
	require.Empty(t, p.owners(t))
}

func TestRunCommand_ResumesAfterAdminFailure(t *testing.T) {
	p := newProject(t)

	db, err := sql.Open("sqlite", p.dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec("CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT)")
	require.NoError(t, err)

	_, err = testutil.RunCommand(t, runCmd(p.params))
	require.Error(t, err)
	testutil.RequireHistory(t, p.history, "SELECT 'alice' AS owner")
	testutil.RequireFileContains(t, p.history+consts.FactsSidecarSuffix, `"owner"`, `"alice"`)

	// the fact query is in the history now, so the second run only has the
	// saved facts to bind %(owner)s with
	_, err = db.Exec("DROP TABLE accounts")
	require.NoError(t, err)

	out, err := testutil.RunCommand(t, runCmd(p.params))
	require.NoError(t, err)
	require.Contains(t, out, "Summary: 3 successful, 0 failed, 1 skipped")
	require.Equal(t, []string{"bob", "alice"}, p.owners(t))

	testutil.RequireHistory(t, p.history,
		"SELECT 'alice' AS owner",
		"CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT)",
		p.template,
		"INSERT INTO accounts (owner) VALUES (%(owner)s)",
	)
}

func TestRunCommand_FactsInOverridesSavedFacts(t *testing.T) {
	p := newProject(t)
	factsIn := testutil.WriteFile(t, p.dir, "facts.json", `{"owner": [{"owner": "dave"}]}`)
	testutil.WriteFile(t, p.dir, "history.log"+consts.FactsSidecarSuffix, `{"owner": [{"owner": "erin"}]}`)

	// with the fact query already recorded, the seeded value is what binds
	testutil.WriteFile(t, p.dir, "history.log", "SELECT 'alice' AS owner\n")

	_, err := testutil.RunCommand(t, runCmd(p.params), "--facts-in", factsIn)
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "dave"}, p.owners(t))
}

func TestRunCommand_MissingConfig(t *testing.T) {
	params := runParams{
		Config:   &config.File{Path: filepath.Join(t.TempDir(), "dbchores.yaml")},
		Registry: newRegistry(),
	}

	_, err := testutil.RunCommand(t, runCmd(params))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestGlobCommand(t *testing.T) {
	dir := t.TempDir()
	sqlDir := filepath.Join(dir, "sql")
	dbPath := filepath.Join(dir, "app.db")
	history := filepath.Join(dir, "history.log")

	testutil.WriteFile(t, sqlDir, "b.sql", "INSERT INTO log VALUES ('b');\nINSERT INTO log VALUES ('b2');\n")
	testutil.WriteFile(t, sqlDir, "a.sql", "CREATE TABLE log (v TEXT);\n")
	testutil.WriteFile(t, sqlDir, "c.sql.tmpl", "INSERT INTO log VALUES ('{{ len .facts }}')\n")
	testutil.WriteFile(t, sqlDir, "README.md", "ignored")

	args := []string{
		"--engine", "sqlite",
		"--host", dbPath,
		"--dir", sqlDir,
		"--history", history,
	}

	out, err := testutil.RunCommand(t, globCmd(globParams{Registry: newRegistry()}), args...)
	require.NoError(t, err)
	require.Contains(t, out, "Summary: 3 successful, 0 failed, 0 skipped")

	testutil.RequireHistory(t, history,
		filepath.Join(sqlDir, "a.sql"),
		filepath.Join(sqlDir, "b.sql"),
		filepath.Join(sqlDir, "c.sql.tmpl"),
	)

	out, err = testutil.RunCommand(t, globCmd(globParams{Registry: newRegistry()}), args...)
	require.NoError(t, err)
	require.Contains(t, out, "Summary: 0 successful, 0 failed, 3 skipped")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM log").Scan(&count))
	require.Equal(t, 3, count)
}

func TestGlobCommand_Split(t *testing.T) {
	dir := t.TempDir()
	sqlDir := filepath.Join(dir, "sql")
	history := filepath.Join(dir, "history.log")

	testutil.WriteFile(t, sqlDir, "setup.sql", "CREATE TABLE t (v INT);\nINSERT INTO t VALUES (1);\n")

	_, err := testutil.RunCommand(t, globCmd(globParams{Registry: newRegistry()}),
		"--engine", "sqlite",
		"--host", filepath.Join(dir, "app.db"),
		"--dir", sqlDir,
		"--history", history,
		"--split",
	)
	require.NoError(t, err)
	testutil.RequireHistory(t, history, "CREATE TABLE t (v INT)", "INSERT INTO t VALUES (1)")
}

func TestGlobCommand_UnknownEngine(t *testing.T) {
	_, err := testutil.RunCommand(t, globCmd(globParams{Registry: newRegistry()}),
		"--engine", "oracle",
		"--dir", t.TempDir(),
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown engine "oracle"`)
}

func TestValidateCommand(t *testing.T) {
	p := newProject(t)

	out, err := testutil.RunCommand(t, validateCmd(p.params))
	require.NoError(t, err)
	require.Contains(t, out, "is valid: 4 queries in 1 fact and 1 admin groups")

	// nothing ran
	require.NoFileExists(t, p.history)
	require.NoFileExists(t, p.dbPath)
}

func TestValidateCommand_Invalid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testutil.WriteFile(t, dir, "dbchores.yaml", `fact_groups:
  - queries:
      - query: SELECT 1
`)

	_, err := testutil.RunCommand(t, validateCmd(runParams{
		Config:   &config.File{Path: cfgPath},
		Registry: newRegistry(),
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "fact queries require a name")
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.log")

	history, err := ledger.Open(path)
	require.NoError(t, err)
	require.NoError(t, history.Record("CREATE TABLE t (id int)"))
	require.NoError(t, history.Record("INSERT INTO t VALUES (1);\nINSERT INTO t VALUES (2)"))
	require.NoError(t, history.Close())

	file := &config.File{Path: filepath.Join(dir, "missing.yaml")}

	out, err := testutil.RunCommand(t, historyCmd(file), "--history", path)
	require.NoError(t, err)
	require.Contains(t, out, "(2 entries)")
	require.Contains(t, out, "   1  CREATE TABLE t (id int)")
	require.Contains(t, out, "   2  INSERT INTO t VALUES (1); INSERT INTO t VALUES (2)")

	out, err = testutil.RunCommand(t, historyCmd(file), "--history", filepath.Join(dir, "none.log"))
	require.NoError(t, err)
	require.Contains(t, out, "No history at")
}

func TestHistoryCommand_FromConfig(t *testing.T) {
	p := newProject(t)

	_, err := testutil.RunCommand(t, runCmd(p.params))
	require.NoError(t, err)

	out, err := testutil.RunCommand(t, historyCmd(p.params.Config))
	require.NoError(t, err)
	require.Contains(t, out, p.history+" (4 entries)")
}
