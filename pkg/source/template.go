package source

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/utils"
)

type (
	// Renderer renders a templated script.
	Renderer interface {
		Render(name, text string, data map[string]any) (string, error)
	}

	// TextRenderer renders scripts with text/template. Missing keys are an
	// error rather than rendering as "<no value>".
	TextRenderer struct {
		funcs template.FuncMap
	}

	// RendererFunc adapts a function to the Renderer interface.
	RendererFunc func(name, text string, data map[string]any) (string, error)
)

func (f RendererFunc) Render(name, text string, data map[string]any) (string, error) {
	return f(name, text, data)
}

// NewTextRenderer creates a TextRenderer with the default helper functions:
//
//   - quote: wraps a value in single quotes, doubling embedded quotes
//   - literal: a SQL literal; numbers and booleans stay bare
//   - ident: a double-quoted (PostgreSQL, SQLite) identifier
//   - backtick: a backticked (ClickHouse) identifier
//   - join: strings.Join
//   - upper, lower: case conversion
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{funcs: template.FuncMap{
		"quote":    utils.QuoteString,
		"literal":  utils.Literal,
		"ident":    utils.DoubleQuoteIdentifier,
		"backtick": utils.BacktickIdentifier,
		"join":     strings.Join,
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
	}}
}

// Funcs adds helpers to the renderer.
func (r *TextRenderer) Funcs(funcs template.FuncMap) *TextRenderer {
	for k, v := range funcs {
		r.funcs[k] = v
	}

	return r
}

func (r *TextRenderer) Render(name, text string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(r.funcs).
		Parse(text)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to execute template")
	}

	return buf.String(), nil
}
