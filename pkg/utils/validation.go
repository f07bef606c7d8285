package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// IsNumericValue checks if a string represents a valid numeric value,
// including scientific notation.
//
// Examples:
//   - "123" -> true
//   - "-123.45" -> true
//   - "1.23e-4" -> true
//   - "1.2.3" -> false
//   - "" -> false
func IsNumericValue(value string) bool {
	if value == "" {
		return false
	}

	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// IsBooleanValue checks if a string is "true" or "false", ignoring case.
func IsBooleanValue(value string) bool {
	lowered := strings.ToLower(value)
	return lowered == "true" || lowered == "false"
}

// QuoteString renders s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Literal renders v as a SQL literal. Strings that hold a number or a boolean
// (as values passed on the command line do) are rendered bare.
//
// Examples:
//   - nil -> NULL
//   - 42 -> 42
//   - "10" -> 10
//   - "TRUE" -> TRUE
//   - "o'neil" -> 'o''neil'
func Literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strings.ToUpper(strconv.FormatBool(t))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t)
	case string:
		if IsNumericValue(t) {
			return t
		}

		if IsBooleanValue(t) {
			return strings.ToUpper(t)
		}

		return QuoteString(t)
	default:
		return QuoteString(fmt.Sprint(t))
	}
}
