// Package postgres is the engine driver for PostgreSQL, built on pgx.
package postgres

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/facts"
	"github.com/pseudomuto/dbchores/pkg/params"
	"github.com/pseudomuto/dbchores/pkg/sqltext"
)

const (
	// DefaultPort is the standard PostgreSQL port.
	DefaultPort = 5432

	// DefaultUser is used when credentials don't name a user.
	DefaultUser = "postgres"

	// DefaultSSLMode matches libpq's default.
	DefaultSSLMode = "prefer"

	closeTimeout = 5 * time.Second
)

type (
	// Driver connects to PostgreSQL.
	Driver struct{}

	querier interface {
		Query(context.Context, string, ...any) (pgx.Rows, error)
		Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	}

	conn struct {
		pg         *pgx.Conn
		autocommit bool
	}
)

// New creates the postgres driver.
func New() *Driver { return &Driver{} }

func (d *Driver) Defaults() connection.EngineDefaults {
	return connection.EngineDefaults{
		Target: connection.Target{Port: DefaultPort, SSLMode: DefaultSSLMode},
		User:   DefaultUser,
	}
}

func (d *Driver) Connect(ctx context.Context, cctx *connection.Context) (engine.Conn, error) {
	cfg, err := pgx.ParseConfig(DSN(cctx))
	if err != nil {
		return nil, errors.Wrap(err, "invalid connection settings")
	}

	pg, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &conn{pg: pg, autocommit: cctx.Autocommit}, nil
}

// DSN builds a postgres:// URL for cctx. A unix socket directory is passed
// as the host query parameter.
func DSN(cctx *connection.Context) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cctx.Credentials.User, cctx.Credentials.Password),
	}

	if cctx.Credentials.Password == "" {
		u.User = url.User(cctx.Credentials.User)
	}

	if cctx.HasDB() {
		u.Path = "/" + cctx.DB
	}

	q := url.Values{}
	port := cctx.Target.Port
	if port == 0 {
		port = DefaultPort
	}

	addr := cctx.Address()
	if addr == cctx.Target.Socket && addr != "" {
		q.Set("host", addr)
		q.Set("port", strconv.Itoa(port))
	} else {
		host := addr
		if host == "" {
			host = "localhost"
		}

		u.Host = net.JoinHostPort(host, strconv.Itoa(port))
	}

	if cctx.Target.SSLMode != "" {
		q.Set("sslmode", cctx.Target.SSLMode)
	}

	if cctx.Target.SSLRootCert != "" {
		q.Set("sslrootcert", cctx.Target.SSLRootCert)
	}

	if cctx.Target.CertFile != "" {
		q.Set("sslcert", cctx.Target.CertFile)
	}

	if cctx.Target.KeyFile != "" {
		q.Set("sslkey", cctx.Target.KeyFile)
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// Execute runs stmt, inside a transaction unless the connection is in
// autocommit mode.
func (c *conn) Execute(ctx context.Context, stmt *params.Bound) (*engine.Result, error) {
	sql, args, err := stmt.Native(params.Dollar)
	if err != nil {
		return nil, err
	}

	if c.autocommit {
		return run(ctx, c.pg, sql, args)
	}

	tx, err := c.pg.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	res, err := run(ctx, tx, sql, args)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}

	return res, nil
}

func (c *conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	return c.pg.Close(ctx)
}

// run sends a single statement through the extended protocol so rows come
// back. Scripts holding several statements go through Exec, which uses the
// simple protocol when there are no arguments.
func run(ctx context.Context, q querier, sql string, args []any) (*engine.Result, error) {
	if stmts, err := sqltext.Split(sql); err != nil || len(stmts) > 1 {
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return nil, err
		}

		return &engine.Result{RowsAffected: tag.RowsAffected()}, nil
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	res := &engine.Result{RowsAffected: rows.CommandTag().RowsAffected()}
	if len(columns) > 0 {
		res.Columns = columns
		res.Rows = make(facts.Rows, len(collected))
		for i, row := range collected {
			res.Rows[i] = normalize(row)
		}
	}

	return res, nil
}

// normalize converts pgx values without a natural JSON or template form.
func normalize(row map[string]any) map[string]any {
	for k, v := range row {
		switch val := v.(type) {
		case [16]byte:
			row[k] = uuid.UUID(val).String()
		case pgtype.Numeric:
			f, err := val.Float64Value()
			if err != nil || !f.Valid {
				row[k] = nil
				continue
			}

			row[k] = f.Float64
		}
	}

	return row
}
