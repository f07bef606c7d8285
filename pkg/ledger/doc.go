// Package ledger keeps the history of completed batch items.
//
// A FileLedger is an append-only text file with one identity per line. Each
// entry is synced before Record returns and the file is locked with
// gofrs/flock while it's open, so two runs can't share a history. Lines are
// the literal identity; multi-line identities are escaped behind a
// "-- dbchores:escaped " marker. Deleting a line makes its item run again.
//
// MemoryLedger serves callers without a history file, and check mode, which
// reads a history with ReadFile but never writes to it.
package ledger
