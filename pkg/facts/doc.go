// Package facts holds the named results of fact queries.
package facts
