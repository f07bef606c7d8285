package batch

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/consts"
)

const (
	// FactPhaseName labels items of fact groups.
	FactPhaseName Phase = "fact"

	// AdminPhaseName labels items of admin groups.
	AdminPhaseName Phase = "admin"
)

type (
	// Phase names the half of a batch an item belongs to.
	Phase string

	// QueryItem is a single query in a group.
	QueryItem struct {
		// Name is the fact key. Required for fact queries.
		Name string `yaml:"name,omitempty"`

		// Query is inline SQL, a path to a .sql file or a path to a .tmpl
		// template.
		Query          string         `yaml:"query"`
		PositionalArgs []any          `yaml:"positional_args,omitempty"`
		NamedArgs      map[string]any `yaml:"named_args,omitempty"`

		// DB and Engine override the group's values for this query only.
		DB      string        `yaml:"db,omitempty"`
		Engine  string        `yaml:"engine,omitempty"`
		Timeout time.Duration `yaml:"timeout,omitempty"`
	}

	// QueryGroup is an ordered list of queries sharing an engine, database
	// and autocommit setting.
	QueryGroup struct {
		// Name is an optional label used in logs and reports.
		Name       string        `yaml:"name,omitempty"`
		Engine     string        `yaml:"engine,omitempty"`
		DB         string        `yaml:"db,omitempty"`
		Autocommit *bool         `yaml:"autocommit,omitempty"`
		Timeout    time.Duration `yaml:"timeout,omitempty"`

		// Split executes each statement of a query separately, recording
		// every statement in the history by its text.
		Split   bool        `yaml:"split,omitempty"`
		Queries []QueryItem `yaml:"queries"`
	}

	// Spec is a complete batch: fact groups followed by admin groups.
	Spec struct {
		FactGroups  []QueryGroup `yaml:"fact_groups,omitempty"`
		AdminGroups []QueryGroup `yaml:"admin_groups,omitempty"`
	}

	// SpecError reports a structurally invalid batch.
	SpecError struct {
		Phase  Phase
		Group  int
		Item   int
		Reason string
	}
)

func (e *SpecError) Error() string {
	return fmt.Sprintf("invalid batch: %s group %d, query %d: %s", e.Phase, e.Group+1, e.Item+1, e.Reason)
}

// Label names the group for logs: its Name, or "<phase> group <n>".
func (g *QueryGroup) Label(phase Phase, index int) string {
	if g.Name != "" {
		return g.Name
	}

	return fmt.Sprintf("%s group %d", phase, index+1)
}

// Len is the number of queries across all groups.
func (s *Spec) Len() int {
	n := 0
	for _, g := range s.FactGroups {
		n += len(g.Queries)
	}

	for _, g := range s.AdminGroups {
		n += len(g.Queries)
	}

	return n
}

// Validate checks the structure of the batch: every query is non-empty, and
// every fact query has a name that is unique across the fact phase.
func (s *Spec) Validate() error {
	names := make(map[string]bool)

	for gi, g := range s.FactGroups {
		for qi, q := range g.Queries {
			if strings.TrimSpace(q.Query) == "" {
				return &SpecError{Phase: FactPhaseName, Group: gi, Item: qi, Reason: "query is empty"}
			}

			if q.Name == "" {
				return &SpecError{Phase: FactPhaseName, Group: gi, Item: qi, Reason: "fact queries require a name"}
			}

			if names[q.Name] {
				return &SpecError{Phase: FactPhaseName, Group: gi, Item: qi, Reason: fmt.Sprintf("duplicate fact name %q", q.Name)}
			}

			names[q.Name] = true
		}
	}

	for gi, g := range s.AdminGroups {
		for qi, q := range g.Queries {
			if strings.TrimSpace(q.Query) == "" {
				return &SpecError{Phase: AdminPhaseName, Group: gi, Item: qi, Reason: "query is empty"}
			}
		}
	}

	return nil
}

// FromDir builds a fileglob batch: a single admin group, based on group,
// whose queries are the .sql and .tmpl files in fsys, ordered by full path.
// Query paths are joined onto dir, the location of fsys on disk, so ledger
// identities are file paths rather than file contents.
//
// Example:
//
//	spec, err := batch.FromDir(os.DirFS("/srv/sql"), "/srv/sql", batch.QueryGroup{
//		Engine: "postgres",
//		DB:     "acme",
//	})
func FromDir(fsys fs.FS, dir string, group QueryGroup) (*Spec, error) {
	var files []string

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if strings.HasSuffix(p, consts.SQLSuffix) || strings.HasSuffix(p, consts.TemplateSuffix) {
			files = append(files, p)
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory: %s", dir)
	}

	sort.Strings(files)

	group.Queries = make([]QueryItem, len(files))
	for i, f := range files {
		group.Queries[i] = QueryItem{Query: filepath.Join(dir, filepath.FromSlash(f))}
	}

	return &Spec{AdminGroups: []QueryGroup{group}}, nil
}
