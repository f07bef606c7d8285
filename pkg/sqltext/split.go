package sqltext

import (
	"strings"
)

// Split breaks a script into statements. A statement ends at a semicolon that
// is followed by whitespace or the end of the script; semicolons inside
// literals, comments or glued to other text don't split. The terminating
// semicolon is dropped, surrounding whitespace is trimmed and statements
// consisting only of comments are omitted.
func Split(script string) ([]string, error) {
	tokens, err := tokenize(script)
	if err != nil {
		return nil, err
	}

	var (
		stmts   []string
		current strings.Builder
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		current.Reset()

		if stmt != "" && !IsEmpty(stmt) {
			stmts = append(stmts, stmt)
		}
	}

	for i, tok := range tokens {
		if tok.Type == tokSemicolon {
			last := i == len(tokens)-1
			if last || tokens[i+1].Type == tokWhitespace {
				flush()
				continue
			}
		}

		current.WriteString(tok.Value)
	}

	flush()
	return stmts, nil
}
