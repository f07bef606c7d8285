// Package params binds pyformat parameters (%s and %(name)s) to values.
//
// Positional markers take the query's positional arguments in order. Named
// markers take the query's named arguments first and fall back to the fact
// store. A missing name or an argument count that doesn't match the markers
// is an error; values are never dropped or reordered.
package params
