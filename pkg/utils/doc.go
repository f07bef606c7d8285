// Package utils provides small helpers shared across dbchores.
//
// # Identifiers (identifier.go)
//
// Identifier helpers quote possibly qualified names for each engine's
// dialect: backticks for ClickHouse, double quotes for PostgreSQL and SQLite.
//
//	utils.BacktickIdentifier("analytics.events")  // `analytics`.`events`
//	utils.DoubleQuoteIdentifier("public.users")   // "public"."users"
//
// # Values (validation.go)
//
// Literal renders template values as SQL literals, leaving numbers and
// booleans bare:
//
//	utils.Literal("o'neil") // 'o''neil'
//	utils.Literal("10")     // 10
//
// These back the ident, backtick, quote and literal template functions.
package utils
