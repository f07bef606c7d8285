package utils

import "strings"

// QuoteIdentifier wraps each dot-separated part of name in q, doubling any q
// inside a part. Parts that are already wrapped in q are left alone.
//
// Examples:
//   - ("users", '"') -> "\"users\""
//   - ("analytics.events", '`') -> "`analytics`.`events`"
//   - ("`db`.events", '`') -> "`db`.`events`"
//   - ("", '"') -> ""
func QuoteIdentifier(name string, q byte) string {
	if name == "" {
		return ""
	}

	quote := string(q)
	if IsQuoted(name, q) {
		return name
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		if IsQuoted(part, q) {
			continue
		}

		parts[i] = quote + strings.ReplaceAll(part, quote, quote+quote) + quote
	}

	return strings.Join(parts, ".")
}

// BacktickIdentifier quotes a (possibly qualified) ClickHouse identifier.
func BacktickIdentifier(name string) string { return QuoteIdentifier(name, '`') }

// DoubleQuoteIdentifier quotes a (possibly qualified) PostgreSQL or SQLite
// identifier.
func DoubleQuoteIdentifier(name string) string { return QuoteIdentifier(name, '"') }

// IsQuoted reports whether s is a single identifier wrapped in q.
//
// Examples:
//   - ("`table`", '`') -> true
//   - ("table", '`') -> false
//   - ("`db`.`table`", '`') -> false (qualified name)
func IsQuoted(s string, q byte) bool {
	return len(s) >= 2 && s[0] == q && s[len(s)-1] == q && !strings.Contains(s[1:len(s)-1], string(q))
}
