// Package connection resolves where and how a query runs.
//
// A Resolver merges the defaults, per-engine targets, credentials and a
// query's group and item overrides into a Context, without opening any
// connection.
package connection
