package sqltext

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

const (
	// ReadOnly statements never change server state.
	ReadOnly StatementKind = iota

	// Mutating statements may change server state.
	Mutating
)

// StatementKind classifies a statement for dry-run handling.
type StatementKind int

var (
	readOnlyKeywords = map[string]bool{
		"SELECT":   true,
		"SHOW":     true,
		"DESCRIBE": true,
		"DESC":     true,
		"EXPLAIN":  true,
		"VALUES":   true,
		"TABLE":    true,
		"EXISTS":   true,
		"WITH":     true,
	}

	// keywords that turn a WITH query into a data-modifying one
	writeKeywords = map[string]bool{
		"INSERT": true,
		"UPDATE": true,
		"DELETE": true,
		"MERGE":  true,
	}
)

func (k StatementKind) String() string {
	if k == Mutating {
		return "mutating"
	}

	return "read-only"
}

// Classify reports whether sql might change server state. Every statement of
// a script is inspected and the script is Mutating if any one of them is.
// Anything that cannot be tokenized or isn't known to be read-only is
// reported as Mutating, so callers err on the side of not running it during a
// dry run.
func Classify(sql string) StatementKind {
	tokens, err := tokenize(sql)
	if err != nil {
		return Mutating
	}

	for _, stmt := range statements(tokens) {
		if classifyStatement(stmt) == Mutating {
			return Mutating
		}
	}

	return ReadOnly
}

// statements splits tokens at every semicolon. Unlike Split, a semicolon
// glued to the next statement still ends one.
func statements(tokens []lexer.Token) [][]lexer.Token {
	var (
		stmts [][]lexer.Token
		start int
	)

	for i, tok := range tokens {
		if tok.Type == tokSemicolon {
			stmts = append(stmts, tokens[start:i])
			start = i + 1
		}
	}

	return append(stmts, tokens[start:])
}

func classifyStatement(tokens []lexer.Token) StatementKind {
	lead, rest := leadingKeyword(tokens)
	if lead == "" {
		return ReadOnly
	}

	if !readOnlyKeywords[lead] {
		return Mutating
	}

	switch lead {
	case "WITH":
		for _, tok := range rest {
			if writeKeywords[keyword(tok)] {
				return Mutating
			}
		}
	case "SELECT":
		// SELECT ... INTO creates a table in postgres
		for _, tok := range rest {
			if keyword(tok) == "INTO" {
				return Mutating
			}
		}
	case "EXPLAIN":
		// EXPLAIN ANALYZE executes the statement it explains
		if target, analyze := explained(rest); analyze {
			return classifyStatement(target)
		}
	}

	return ReadOnly
}

// explained skips the options following EXPLAIN, either bare keywords or a
// parenthesized list, and returns the explained statement along with whether
// ANALYZE was among the options.
func explained(tokens []lexer.Token) ([]lexer.Token, bool) {
	var (
		analyze bool
		depth   int
	)

	for i, tok := range tokens {
		if isTrivia(tok) {
			continue
		}

		switch kw := keyword(tok); {
		case tok.Type == tokPunct && tok.Value == "(" && (depth > 0 || i == firstSignificant(tokens)):
			depth++
		case tok.Type == tokPunct && tok.Value == ")" && depth > 0:
			depth--
		case kw == "ANALYZE" || kw == "ANALYSE":
			analyze = true
		case depth > 0 || kw == "VERBOSE":
		default:
			return tokens[i:], analyze
		}
	}

	return nil, analyze
}

func firstSignificant(tokens []lexer.Token) int {
	for i, tok := range tokens {
		if !isTrivia(tok) {
			return i
		}
	}

	return -1
}

// leadingKeyword returns the first keyword of the statement, skipping trivia
// and opening parentheses, along with the remaining tokens.
func leadingKeyword(tokens []lexer.Token) (string, []lexer.Token) {
	for i, tok := range tokens {
		if isTrivia(tok) || (tok.Type == tokPunct && tok.Value == "(") {
			continue
		}

		return keyword(tok), tokens[i+1:]
	}

	return "", nil
}

// IsEmpty reports whether sql contains nothing but whitespace and comments.
func IsEmpty(sql string) bool {
	tokens, err := tokenize(sql)
	if err != nil {
		return strings.TrimSpace(sql) == ""
	}

	for _, tok := range tokens {
		if !isTrivia(tok) && tok.Type != tokSemicolon {
			return false
		}
	}

	return true
}
