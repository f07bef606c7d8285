// Package sqlite is the engine driver for SQLite files, using the pure Go
// modernc.org/sqlite driver. The target's host is the database file path;
// the database name is ignored and no credentials are needed.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/facts"
	"github.com/pseudomuto/dbchores/pkg/params"
	"github.com/pseudomuto/dbchores/pkg/sqltext"

	_ "modernc.org/sqlite"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

type (
	// Driver opens SQLite databases.
	Driver struct{}

	querier interface {
		QueryContext(context.Context, string, ...any) (*sql.Rows, error)
		ExecContext(context.Context, string, ...any) (sql.Result, error)
	}

	conn struct {
		db         *sql.DB
		autocommit bool
	}
)

// New creates the sqlite driver.
func New() *Driver { return &Driver{} }

func (d *Driver) Defaults() connection.EngineDefaults {
	return connection.EngineDefaults{
		Target:        connection.Target{Host: Memory},
		NoCredentials: true,
	}
}

func (d *Driver) Connect(ctx context.Context, cctx *connection.Context) (engine.Conn, error) {
	path := cctx.Target.Host
	if path == "" {
		path = Memory
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", path)
	}

	// a single connection keeps :memory: databases alive between statements
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	return &conn{db: db, autocommit: cctx.Autocommit}, nil
}

func (c *conn) Execute(ctx context.Context, stmt *params.Bound) (*engine.Result, error) {
	query, args, err := stmt.Native(params.Question)
	if err != nil {
		return nil, err
	}

	if c.autocommit {
		return run(ctx, c.db, query, args)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	res, err := run(ctx, tx, query, args)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}

	return res, nil
}

func (c *conn) Close() error {
	return c.db.Close()
}

func run(ctx context.Context, q querier, query string, args []any) (*engine.Result, error) {
	stmts, err := sqltext.Split(query)
	if err != nil || len(stmts) != 1 || sqltext.Classify(query) == sqltext.Mutating {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}

		n, _ := res.RowsAffected()
		return &engine.Result{RowsAffected: n}, nil
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &engine.Result{Columns: columns, Rows: facts.Rows{}}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}

		res.Rows = append(res.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.RowsAffected = int64(len(res.Rows))
	return res, nil
}
