package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/params"
	"github.com/pseudomuto/dbchores/pkg/sqltext"
)

type (
	// Options configure a Dispatcher.
	Options struct {
		// Check enables dry-run mode. Mutating statements are skipped unless
		// they run with autocommit.
		Check bool

		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Dispatcher sends bound statements to the driver registered for their
	// engine.
	//
	// A Dispatcher holds no connections itself. Each query group gets its own
	// Session, which owns the connections it opens.
	//
	// Example usage:
	//
	//	d := engine.NewDispatcher(registry, engine.Options{Check: true})
	//
	//	sess := d.Session()
	//	defer sess.Close()
	//
	//	res, err := sess.Dispatch(ctx, cctx, engine.Statement{
	//		Identity: "SELECT 1",
	//		Bound:    bound,
	//	})
	Dispatcher struct {
		registry *Registry
		check    bool
		logger   *slog.Logger
	}

	// Statement is a unit of work for Dispatch.
	Statement struct {
		// Identity names the statement in logs and errors (the ledger key).
		Identity string
		Bound    *params.Bound

		// Timeout bounds connecting and executing. Zero means no limit.
		Timeout time.Duration
	}

	// Session is a group-scoped set of connections, one per distinct
	// engine and database. It is not safe for concurrent use.
	Session struct {
		d     *Dispatcher
		conns map[string]Conn
		keys  []string
	}
)

// NewDispatcher creates a dispatcher over the drivers in registry.
func NewDispatcher(registry *Registry, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		registry: registry,
		check:    opts.Check,
		logger:   logger,
	}
}

// Session starts a new, empty session. Callers must Close it.
func (d *Dispatcher) Session() *Session {
	return &Session{d: d, conns: make(map[string]Conn)}
}

// Dispatch executes stmt in the connection for cctx, opening it on first use.
//
// In check mode read-only statements still execute so that fact queries
// produce values. Mutating statements are reported as StatusSkippedCheck,
// except when cctx.Autocommit is set: those execute for real and a warning
// is logged.
func (s *Session) Dispatch(ctx context.Context, cctx *connection.Context, stmt Statement) (*Result, error) {
	kind := sqltext.Classify(stmt.Bound.SQL)
	logger := s.d.logger.With("engine", cctx.Engine, "db", cctx.DB, "query", Truncate(stmt.Identity, 60))

	if s.d.check && kind == sqltext.Mutating {
		if !cctx.Autocommit {
			logger.Info("Check mode, skipping mutating statement")
			return &Result{Status: StatusSkippedCheck}, nil
		}

		logger.Warn("Check mode does not apply to autocommit statements, executing")
	}

	if stmt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stmt.Timeout)
		defer cancel()
	}

	conn, err := s.conn(ctx, cctx)
	if err != nil {
		return nil, err
	}

	logger.Debug("Executing statement", "kind", kind, "params", stmt.Bound)

	res, err := conn.Execute(ctx, stmt.Bound)
	if err != nil {
		return nil, &ExecutionError{Engine: cctx.Engine, Identity: stmt.Identity, Err: err}
	}

	res.Status = StatusExecuted
	res.Changed = kind == sqltext.Mutating
	return res, nil
}

// Close closes every connection the session opened. The first error is
// returned; later ones are logged.
func (s *Session) Close() error {
	var first error
	for _, key := range s.keys {
		if err := s.conns[key].Close(); err != nil {
			if first == nil {
				first = err
				continue
			}

			s.d.logger.Warn("Failed to close connection", "error", err)
		}
	}

	s.conns = make(map[string]Conn)
	s.keys = nil
	return first
}

// Open reports how many connections the session holds.
func (s *Session) Open() int { return len(s.conns) }

func (s *Session) conn(ctx context.Context, cctx *connection.Context) (Conn, error) {
	key := cctx.Key()
	if conn, ok := s.conns[key]; ok {
		return conn, nil
	}

	driver, ok := s.d.registry.Driver(cctx.Engine)
	if !ok {
		return nil, &connection.ConfigError{Engine: cctx.Engine, Reason: "unsupported engine"}
	}

	s.d.logger.Debug("Opening connection", "context", cctx.String())

	conn, err := driver.Connect(ctx, cctx)
	if err != nil {
		return nil, &ConnectError{Engine: cctx.Engine, Address: cctx.Address(), Err: err}
	}

	s.conns[key] = conn
	s.keys = append(s.keys, key)
	return conn, nil
}
