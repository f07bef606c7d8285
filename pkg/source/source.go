package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/pseudomuto/dbchores/pkg/facts"
)

const (
	// Literal is inline SQL text.
	Literal Kind = iota

	// FilePlain is a path to a SQL script that is read verbatim.
	FilePlain

	// FileTemplate is a path to a script that is rendered before use.
	FileTemplate
)

type (
	// Kind is the variant of a query source.
	Kind int

	// Source is a query resolved to SQL text.
	Source struct {
		Kind Kind

		// Text is the SQL to execute.
		Text string

		// Identity is the history ledger key: the literal text for inline
		// queries, the absolute path for files.
		Identity string

		// Path is the absolute file path, empty for literals.
		Path string
	}

	// Loader turns query fields into SQL text.
	Loader struct {
		// BaseDir resolves relative paths. Defaults to the working directory.
		BaseDir string

		// Renderer renders FileTemplate sources. Defaults to TextRenderer.
		Renderer Renderer

		// ReadFile defaults to os.ReadFile.
		ReadFile func(string) ([]byte, error)
	}

	// SourceNotFoundError is returned when a query path can't be read.
	SourceNotFoundError struct {
		Path string
		Err  error
	}

	// TemplateError is returned when a templated script fails to render.
	TemplateError struct {
		Path string
		Err  error
	}
)

func (k Kind) String() string {
	switch k {
	case FilePlain:
		return "file"
	case FileTemplate:
		return "template"
	default:
		return "literal"
	}
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("query source not found: %s: %v", e.Path, e.Err)
}

func (e *SourceNotFoundError) Cause() error  { return e.Err }
func (e *SourceNotFoundError) Unwrap() error { return e.Err }

func (e *TemplateError) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Path, e.Err)
}

func (e *TemplateError) Cause() error  { return e.Err }
func (e *TemplateError) Unwrap() error { return e.Err }

// Classify determines the kind of a query field by its suffix. Anything that
// doesn't end in .sql or .tmpl is literal SQL.
func Classify(query string) Kind {
	q := strings.TrimSpace(query)
	switch {
	case strings.ContainsAny(q, "\n;"):
		return Literal
	case strings.HasSuffix(q, consts.TemplateSuffix):
		return FileTemplate
	case strings.HasSuffix(q, consts.SQLSuffix):
		return FilePlain
	default:
		return Literal
	}
}

// Load resolves query to SQL text. Templates are rendered with store and
// vars as their context; either may be nil.
//
// Example:
//
//	loader := &source.Loader{BaseDir: "/srv/playbook"}
//
//	src, err := loader.Load("scripts/grant_owner.sql.tmpl", store, map[string]any{"env": "prod"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Println(src.Identity) // /srv/playbook/scripts/grant_owner.sql.tmpl
func (l *Loader) Load(query string, store facts.Reader, vars map[string]any) (*Source, error) {
	kind := Classify(query)
	if kind == Literal {
		return &Source{Kind: Literal, Text: query, Identity: query}, nil
	}

	path, err := l.Identity(query)
	if err != nil {
		return nil, err
	}

	data, err := l.readFile(path)
	if err != nil {
		return nil, &SourceNotFoundError{Path: path, Err: err}
	}

	// NB: trailing newlines are never part of the statement.
	text := strings.TrimRight(string(data), "\r\n")

	if kind == FileTemplate {
		text, err = l.renderer().Render(path, text, Context(store, vars))
		if err != nil {
			return nil, &TemplateError{Path: path, Err: err}
		}
	}

	return &Source{Kind: kind, Text: text, Identity: path, Path: path}, nil
}

// Identity returns the ledger key of query without reading or rendering it.
func (l *Loader) Identity(query string) (string, error) {
	if Classify(query) == Literal {
		return query, nil
	}

	path, err := l.absPath(strings.TrimSpace(query))
	if err != nil {
		return "", &SourceNotFoundError{Path: query, Err: err}
	}

	return path, nil
}

// Context builds the template data: every fact at the top level, plus the
// "facts" and "vars" maps. Top-level facts never shadow "facts" or "vars".
func Context(store facts.Reader, vars map[string]any) map[string]any {
	data := make(map[string]any)

	snapshot := map[string]any{}
	if store != nil {
		snapshot = store.Snapshot()
	}

	for k, v := range snapshot {
		data[k] = v
	}

	if vars == nil {
		vars = map[string]any{}
	}

	data["facts"] = snapshot
	data["vars"] = vars
	return data
}

func (l *Loader) absPath(path string) (string, error) {
	if !filepath.IsAbs(path) && l.BaseDir != "" {
		path = filepath.Join(l.BaseDir, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve path: %s", path)
	}

	return filepath.Clean(abs), nil
}

func (l *Loader) readFile(path string) ([]byte, error) {
	if l.ReadFile != nil {
		return l.ReadFile(path)
	}

	return os.ReadFile(path)
}

func (l *Loader) renderer() Renderer {
	if l.Renderer != nil {
		return l.Renderer
	}

	return NewTextRenderer()
}
