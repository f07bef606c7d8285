// Package enginetest provides an in-memory engine.Driver for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/params"
)

type (
	// Call records one Execute.
	Call struct {
		Context connection.Context
		SQL     string
		Args    []any
	}

	// Driver is a fake engine.Driver. Statements are answered from Results
	// (keyed by SQL as written) or ExecuteFunc; anything else returns an
	// empty result.
	Driver struct {
		ConnectFunc func(*connection.Context) error
		ExecuteFunc func(*connection.Context, *params.Bound) (*engine.Result, error)
		Results     map[string]*engine.Result
		Builtin     connection.EngineDefaults

		mu       sync.Mutex
		calls    []Call
		connects int
		closes   int
	}

	conn struct {
		d    *Driver
		cctx connection.Context
	}
)

// New creates a fake driver. Credentials are not required unless
// Builtin is changed.
func New() *Driver {
	return &Driver{
		Results: make(map[string]*engine.Result),
		Builtin: connection.EngineDefaults{NoCredentials: true},
	}
}

// Rows builds a result with the given columns and one row per map.
func Rows(cols []string, rows ...map[string]any) *engine.Result {
	return &engine.Result{Columns: cols, Rows: rows}
}

// Scalar builds a one row, one column result.
func Scalar(col string, v any) *engine.Result {
	return Rows([]string{col}, map[string]any{col: v})
}

func (d *Driver) Defaults() connection.EngineDefaults { return d.Builtin }

func (d *Driver) Connect(_ context.Context, cctx *connection.Context) (engine.Conn, error) {
	if d.ConnectFunc != nil {
		if err := d.ConnectFunc(cctx); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.connects++
	return &conn{d: d, cctx: *cctx}, nil
}

// Calls returns the executed statements in order.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]Call(nil), d.calls...)
}

// SQL returns the text of every executed statement in order.
func (d *Driver) SQL() []string {
	calls := d.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.SQL
	}

	return out
}

// Connects is the number of connections opened.
func (d *Driver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.connects
}

// Closes is the number of connections closed.
func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closes
}

func (c *conn) Execute(ctx context.Context, stmt *params.Bound) (*engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.d.mu.Lock()
	c.d.calls = append(c.d.calls, Call{Context: c.cctx, SQL: stmt.SQL, Args: stmt.Args()})
	res, ok := c.d.Results[stmt.SQL]
	fn := c.d.ExecuteFunc
	c.d.mu.Unlock()

	if ok {
		cp := *res
		return &cp, nil
	}

	if fn != nil {
		return fn(&c.cctx, stmt)
	}

	return &engine.Result{}, nil
}

func (c *conn) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()

	c.d.closes++
	return nil
}
