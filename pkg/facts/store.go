package facts

import (
	"encoding/json"
	"io"
	"maps"
	"sort"

	"github.com/pkg/errors"
)

// ErrFrozen is returned when a fact is written after the store was frozen.
var ErrFrozen = errors.New("fact store is read-only")

type (
	// Reader is the read-only view of a Store handed to parameter resolution
	// and template rendering.
	Reader interface {
		Get(name string) (any, bool)
		Snapshot() map[string]any
	}

	// Rows is a query result in column:value form, one map per row.
	Rows []map[string]any

	// Store maps fact names to query results. It grows during the fact phase
	// and is frozen before the admin phase begins.
	Store struct {
		values map[string]any
		frozen bool
	}
)

// Scalar returns the single value of a one row, one column result.
func (r Rows) Scalar() (any, bool) {
	if len(r) != 1 || len(r[0]) != 1 {
		return nil, false
	}

	for _, v := range r[0] {
		return v, true
	}

	return nil, false
}

// ScalarOf unwraps single-cell results, including ones decoded from JSON where
// the row set is a []any of objects. Any other value is returned unchanged.
func ScalarOf(v any) any {
	switch rows := v.(type) {
	case Rows:
		if s, ok := rows.Scalar(); ok {
			return s
		}
	case []any:
		if len(rows) != 1 {
			return v
		}

		if row, ok := rows[0].(map[string]any); ok {
			if s, ok := Rows([]map[string]any{row}).Scalar(); ok {
				return s
			}
		}
	}

	return v
}

// New creates a Store, optionally pre-seeded with the given values.
func New(seed map[string]any) *Store {
	values := make(map[string]any, len(seed))
	maps.Copy(values, seed)
	return &Store{values: values}
}

// Load reads a JSON object of facts, typically written by WriteTo in a
// previous run.
func Load(r io.Reader) (*Store, error) {
	seed := make(map[string]any)
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "failed to decode facts")
	}

	return New(seed), nil
}

func (s *Store) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Set stores value under name. Setting a name twice replaces the previous
// value; the batch orchestrator rejects duplicate fact names up front.
func (s *Store) Set(name string, value any) error {
	if s.frozen {
		return errors.Wrapf(ErrFrozen, "cannot set %q", name)
	}

	s.values[name] = value
	return nil
}

// Freeze makes the store read-only.
func (s *Store) Freeze() { s.frozen = true }

func (s *Store) Frozen() bool { return s.frozen }

func (s *Store) Len() int { return len(s.values) }

// Names returns the fact names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}

	sort.Strings(names)
	return names
}

// Snapshot returns a shallow copy of the current facts.
func (s *Store) Snapshot() map[string]any {
	return maps.Clone(s.values)
}

// WriteTo writes the facts as an indented JSON object.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode facts")
	}

	n, err := w.Write(append(data, '\n'))
	return int64(n), err
}
