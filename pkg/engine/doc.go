// Package engine dispatches parameterized statements to database drivers.
//
// Drivers for individual engines live in sub-packages (postgres, clickhouse,
// sqlite) and are registered by name:
//
//	registry := engine.NewRegistry(map[string]engine.Driver{
//		"clickhouse": clickhouse.New(),
//		"postgres":   postgres.New(),
//		"sqlite":     sqlite.New(),
//	})
//
// A Dispatcher applies the run-wide policy (check mode) and hands out
// Sessions. A Session is scoped to one query group and owns the connections
// it opens; closing it closes them all.
//
// # Check mode
//
// Read-only statements (SELECT, SHOW, DESCRIBE, EXPLAIN, VALUES and WITH
// queries without data-modifying clauses) always execute. Mutating
// statements are skipped, unless the context is in autocommit mode, in which
// case they execute and a warning is logged. Operators relying on check mode
// must not enable autocommit.
package engine
