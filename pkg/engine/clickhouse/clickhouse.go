// Package clickhouse is the engine driver for ClickHouse over the native
// protocol.
//
// ClickHouse has no multi-statement transactions, so every statement is
// effectively autocommitted regardless of the connection context. Scripts
// holding several statements are split and sent one at a time; the rows of
// the last read-only statement form the result.
package clickhouse

import (
	"context"
	"net"
	"reflect"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/facts"
	"github.com/pseudomuto/dbchores/pkg/params"
	"github.com/pseudomuto/dbchores/pkg/sqltext"
)

const (
	// DefaultPort is the native protocol port.
	DefaultPort = 9000

	// DefaultUser is ClickHouse's built-in user.
	DefaultUser = "default"

	dialTimeout = 10 * time.Second
)

type (
	// ClickHouse is the subset of driver.Conn used to run statements.
	ClickHouse interface {
		Query(context.Context, string, ...any) (driver.Rows, error)
		Exec(context.Context, string, ...any) error
		Close() error
	}

	// Driver connects to ClickHouse.
	Driver struct{}

	conn struct {
		ch ClickHouse
	}
)

// New creates the clickhouse driver.
func New() *Driver { return &Driver{} }

func (d *Driver) Defaults() connection.EngineDefaults {
	return connection.EngineDefaults{
		Target: connection.Target{Host: "localhost", Port: DefaultPort},
		User:   DefaultUser,
	}
}

// Connect opens a native connection and pings the server.
//
// Example:
//
//	conn, err := clickhouse.New().Connect(ctx, &connection.Context{
//		Engine:      "clickhouse",
//		Target:      connection.Target{Host: "localhost", Port: 9000},
//		Credentials: connection.Credentials{User: "default"},
//		DB:          "events",
//	})
func (d *Driver) Connect(ctx context.Context, cctx *connection.Context) (engine.Conn, error) {
	opts, err := Options(cctx)
	if err != nil {
		return nil, err
	}

	ch, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := ch.Ping(ctx); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return Wrap(ch), nil
}

// Options builds the clickhouse-go options for cctx.
func Options(cctx *connection.Context) (*clickhouse.Options, error) {
	port := cctx.Target.Port
	if port == 0 {
		port = DefaultPort
	}

	host := cctx.Target.Host
	if host == "" {
		host = "localhost"
	}

	tlsConfig, err := TLSConfig(cctx.Target)
	if err != nil {
		return nil, err
	}

	return &clickhouse.Options{
		Addr: []string{net.JoinHostPort(host, strconv.Itoa(port))},
		Auth: clickhouse.Auth{
			Database: cctx.DB,
			Username: cctx.Credentials.User,
			Password: cctx.Credentials.Password,
		},
		TLS:         tlsConfig,
		DialTimeout: dialTimeout,
	}, nil
}

// Wrap adapts an open ClickHouse connection to engine.Conn.
func Wrap(ch ClickHouse) engine.Conn {
	return &conn{ch: ch}
}

func (c *conn) Execute(ctx context.Context, stmt *params.Bound) (*engine.Result, error) {
	sql, args, err := stmt.Native(params.Question)
	if err != nil {
		return nil, err
	}

	stmts, err := sqltext.Split(sql)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split statement")
	}

	if len(stmts) > 1 && len(args) > 0 {
		return nil, errors.New("placeholders are not supported in multi-statement scripts")
	}

	res := &engine.Result{}
	for _, s := range stmts {
		if sqltext.Classify(s) == sqltext.Mutating {
			if err := c.ch.Exec(ctx, s, args...); err != nil {
				return nil, err
			}

			continue
		}

		if res, err = c.query(ctx, s, args); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (c *conn) Close() error {
	return c.ch.Close()
}

func (c *conn) query(ctx context.Context, sql string, args []any) (*engine.Result, error) {
	rows, err := c.ch.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	types := rows.ColumnTypes()
	res := &engine.Result{
		Columns: make([]string, len(types)),
		Rows:    facts.Rows{},
	}

	for i, ct := range types {
		res.Columns[i] = ct.Name()
	}

	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		row := make(map[string]any, len(types))
		for i, name := range res.Columns {
			row[name] = deref(reflect.ValueOf(dest[i]).Elem())
		}

		res.Rows = append(res.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.RowsAffected = int64(len(res.Rows))
	return res, nil
}

// deref unwraps Nullable(T) columns, which scan into *T.
func deref(v reflect.Value) any {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}

		v = v.Elem()
	}

	return v.Interface()
}
