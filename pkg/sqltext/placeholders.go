package sqltext

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	// Positional is a %s placeholder, bound by order.
	Positional PlaceholderKind = iota

	// Named is a %(name)s placeholder, bound by name.
	Named
)

type (
	// PlaceholderKind distinguishes positional from named placeholders.
	PlaceholderKind int

	// Placeholder is a single parameter marker found in a statement.
	Placeholder struct {
		Kind PlaceholderKind

		// Name is set for named placeholders only.
		Name string

		// Offset is the byte offset of the marker in the statement.
		Offset int
	}
)

func (k PlaceholderKind) String() string {
	if k == Named {
		return "named"
	}

	return "positional"
}

// Placeholders returns the parameter markers in sql in the order they appear.
// Markers inside string literals, quoted identifiers and comments are ignored.
func Placeholders(sql string) ([]Placeholder, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return nil, err
	}

	var found []Placeholder
	for _, tok := range tokens {
		switch tok.Type {
		case tokPositionalParam:
			found = append(found, Placeholder{Kind: Positional, Offset: tok.Pos.Offset})
		case tokNamedParam:
			found = append(found, Placeholder{
				Kind:   Named,
				Name:   tok.Value[2 : len(tok.Value)-2],
				Offset: tok.Pos.Offset,
			})
		}
	}

	return found, nil
}

// Rewrite returns sql with every placeholder replaced by the result of
// replace, which receives the placeholder and its zero-based index. When the
// statement contains at least one placeholder, %% escapes collapse to a
// single %, in string literals as well, matching pyformat parameter style.
func Rewrite(sql string, replace func(Placeholder, int) (string, error)) (string, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return "", err
	}

	hasParams := false
	for _, tok := range tokens {
		if tok.Type == tokPositionalParam || tok.Type == tokNamedParam {
			hasParams = true
			break
		}
	}

	if !hasParams {
		return sql, nil
	}

	var (
		buf strings.Builder
		idx int
	)

	for _, tok := range tokens {
		var p *Placeholder

		switch tok.Type {
		case tokPercent:
			buf.WriteByte('%')
			continue
		case tokString:
			buf.WriteString(strings.ReplaceAll(tok.Value, "%%", "%"))
			continue
		case tokPositionalParam:
			p = &Placeholder{Kind: Positional, Offset: tok.Pos.Offset}
		case tokNamedParam:
			p = &Placeholder{Kind: Named, Name: tok.Value[2 : len(tok.Value)-2], Offset: tok.Pos.Offset}
		default:
			buf.WriteString(tok.Value)
			continue
		}

		text, err := replace(*p, idx)
		if err != nil {
			return "", errors.Wrapf(err, "failed to rewrite placeholder %d", idx+1)
		}

		buf.WriteString(text)
		idx++
	}

	return buf.String(), nil
}
