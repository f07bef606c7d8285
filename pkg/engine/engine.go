package engine

import (
	"context"
	"fmt"

	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/facts"
	"github.com/pseudomuto/dbchores/pkg/params"
)

const (
	// StatusExecuted indicates the statement was sent to the engine.
	StatusExecuted Status = "executed"

	// StatusSkippedCheck indicates a mutating statement was not sent because
	// the run is in check mode.
	StatusSkippedCheck Status = "skipped-check"
)

type (
	// Driver opens connections to one kind of engine.
	//
	// Drivers are registered by name in a Registry; nothing outside the driver
	// packages knows about a particular engine.
	Driver interface {
		// Connect opens a connection for cctx. When cctx.Autocommit is false the
		// returned Conn runs every statement in its own transaction.
		Connect(ctx context.Context, cctx *connection.Context) (Conn, error)

		// Defaults are the built-in target and user for the engine.
		Defaults() connection.EngineDefaults
	}

	// Conn is an open connection.
	Conn interface {
		Execute(ctx context.Context, stmt *params.Bound) (*Result, error)
		Close() error
	}

	// Result is the outcome of a single statement.
	Result struct {
		Columns      []string
		Rows         facts.Rows
		RowsAffected int64

		// Changed is true when a mutating statement was executed.
		Changed bool
		Status  Status
	}

	// Status describes what happened to a dispatched statement.
	Status string

	// ConnectError is returned when a connection can't be established.
	ConnectError struct {
		Engine  string
		Address string
		Err     error
	}

	// ExecutionError is returned when the engine rejects a statement.
	ExecutionError struct {
		Engine   string
		Identity string
		Err      error
	}
)

// Value is what a fact query contributes to the fact store: the row set, or
// the affected row count for statements that return no columns.
func (r *Result) Value() any {
	if len(r.Columns) == 0 && len(r.Rows) == 0 {
		return r.RowsAffected
	}

	if r.Rows == nil {
		return facts.Rows{}
	}

	return r.Rows
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s at %s: %v", e.Engine, e.Address, e.Err)
}

func (e *ConnectError) Cause() error  { return e.Err }
func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: failed to execute %s: %v", e.Engine, Truncate(e.Identity, 80), e.Err)
}

func (e *ExecutionError) Cause() error  { return e.Err }
func (e *ExecutionError) Unwrap() error { return e.Err }

// Truncate shortens s to at most n runes for log output, collapsing newlines.
func Truncate(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' || c == '\t' {
			r[i] = ' '
		}
	}

	if len(r) <= n {
		return string(r)
	}

	return string(r[:n-3]) + "..."
}
