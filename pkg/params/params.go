package params

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/facts"
	"github.com/pseudomuto/dbchores/pkg/sqltext"
)

const (
	// Dollar renders placeholders as $1, $2, ... (postgres).
	Dollar Style = iota

	// Question renders every placeholder as ? (clickhouse, sqlite).
	Question
)

type (
	// Style is the native placeholder syntax of a driver.
	Style int

	// Bound is a statement together with the values for each of its
	// placeholders. SQL is the statement exactly as it was given; values are
	// never interpolated into it.
	Bound struct {
		SQL          string
		Positional   []any
		Named        map[string]any
		Placeholders []sqltext.Placeholder
	}

	// UnresolvedParameterError is returned when a named placeholder has no
	// value in either the named arguments or the fact store.
	UnresolvedParameterError struct {
		Name string
	}

	// ArityError is returned when the number of positional placeholders and
	// positional arguments differ.
	ArityError struct {
		Placeholders int
		Args         int
	}
)

func (e *UnresolvedParameterError) Error() string {
	return fmt.Sprintf("unresolved named parameter %q: not in named_args or facts", e.Name)
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("positional parameter count mismatch: %d placeholder(s), %d argument(s)", e.Placeholders, e.Args)
}

// Resolve finds the placeholders in sql and pairs them with values.
//
// Positional placeholders are bound strictly in the order of positional.
// Named placeholders are looked up in named first and fall back to store
// (which may be nil). Fact values holding a single-cell row set bind as that
// cell's value.
//
// Example:
//
//	bound, err := params.Resolve(
//		"SELECT * FROM users WHERE org = %(org)s LIMIT %s",
//		[]any{10},
//		nil,
//		store,
//	)
func Resolve(sql string, positional []any, named map[string]any, store facts.Reader) (*Bound, error) {
	placeholders, err := sqltext.Placeholders(sql)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan placeholders")
	}

	bound := &Bound{
		SQL:          sql,
		Placeholders: placeholders,
		Named:        make(map[string]any),
	}

	positionalCount := 0
	for _, p := range placeholders {
		if p.Kind == sqltext.Positional {
			positionalCount++
			continue
		}

		if _, done := bound.Named[p.Name]; done {
			continue
		}

		if v, ok := named[p.Name]; ok {
			bound.Named[p.Name] = v
			continue
		}

		if store != nil {
			if v, ok := store.Get(p.Name); ok {
				bound.Named[p.Name] = facts.ScalarOf(v)
				continue
			}
		}

		return nil, &UnresolvedParameterError{Name: p.Name}
	}

	if positionalCount != len(positional) {
		return nil, &ArityError{Placeholders: positionalCount, Args: len(positional)}
	}

	if positionalCount > 0 {
		bound.Positional = append([]any(nil), positional...)
	}

	return bound, nil
}

// Args returns one value per placeholder, in order of appearance. Named
// placeholders that occur more than once appear once per occurrence.
func (b *Bound) Args() []any {
	args := make([]any, 0, len(b.Placeholders))
	pos := 0

	for _, p := range b.Placeholders {
		if p.Kind == sqltext.Positional {
			args = append(args, b.Positional[pos])
			pos++
			continue
		}

		args = append(args, b.Named[p.Name])
	}

	return args
}

// Native rewrites the statement into the driver's placeholder style and
// returns it with the ordered argument list to bind.
//
// For Dollar, repeated named placeholders share one ordinal.
func (b *Bound) Native(style Style) (string, []any, error) {
	if len(b.Placeholders) == 0 {
		return b.SQL, nil, nil
	}

	if style == Question {
		sql, err := sqltext.Rewrite(b.SQL, func(sqltext.Placeholder, int) (string, error) {
			return "?", nil
		})
		if err != nil {
			return "", nil, err
		}

		return sql, b.Args(), nil
	}

	var (
		args     []any
		pos      int
		ordinals = make(map[string]int)
	)

	sql, err := sqltext.Rewrite(b.SQL, func(p sqltext.Placeholder, _ int) (string, error) {
		if p.Kind == sqltext.Named {
			if n, ok := ordinals[p.Name]; ok {
				return fmt.Sprintf("$%d", n), nil
			}

			args = append(args, b.Named[p.Name])
			ordinals[p.Name] = len(args)
			return fmt.Sprintf("$%d", len(args)), nil
		}

		if pos >= len(b.Positional) {
			return "", &ArityError{Placeholders: pos + 1, Args: len(b.Positional)}
		}

		args = append(args, b.Positional[pos])
		pos++
		return fmt.Sprintf("$%d", len(args)), nil
	})
	if err != nil {
		return "", nil, err
	}

	return sql, args, nil
}

// String describes the bound values for logging. Values are elided so that
// credentials passed as arguments never reach the logs.
func (b *Bound) String() string {
	names := make([]string, 0, len(b.Named))
	for k := range b.Named {
		names = append(names, k)
	}
	sort.Strings(names)

	return fmt.Sprintf("positional=%d named=[%s]", len(b.Positional), strings.Join(names, ","))
}
