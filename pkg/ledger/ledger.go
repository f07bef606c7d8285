package ledger

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/consts"
)

// ErrLocked is returned by Open when another process holds the history file.
var ErrLocked = errors.New("history file is locked by another run")

type (
	// Ledger is an append-only set of completed work items.
	Ledger interface {
		// Has reports whether identity has been recorded.
		Has(identity string) bool

		// Record appends identity. Recording an identity that is already
		// present is a no-op.
		Record(identity string) error
	}

	// MemoryLedger is a Ledger that lives for the duration of the process.
	MemoryLedger struct {
		mu      sync.Mutex
		entries []string
		seen    map[string]struct{}
	}

	// FileLedger persists entries to a newline-delimited file. Each Record is
	// synced to disk before it returns, so a crash never loses a completed
	// item. The file is locked for the lifetime of the ledger.
	FileLedger struct {
		mem  *MemoryLedger
		path string
		file *os.File
		lock *flock.Flock
	}
)

// NewMemory creates an empty in-memory ledger.
func NewMemory(entries ...string) *MemoryLedger {
	l := &MemoryLedger{seen: make(map[string]struct{})}
	for _, e := range entries {
		l.add(e)
	}

	return l
}

func (l *MemoryLedger) Has(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.seen[identity]
	return ok
}

func (l *MemoryLedger) Record(identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.add(identity)
	return nil
}

// Entries returns every recorded identity in the order it was recorded.
func (l *MemoryLedger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.entries...)
}

func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// add returns false when the identity was already present.
func (l *MemoryLedger) add(identity string) bool {
	if _, ok := l.seen[identity]; ok {
		return false
	}

	l.seen[identity] = struct{}{}
	l.entries = append(l.entries, identity)
	return true
}

// Open loads the history file at path, creating it if needed, and takes an
// exclusive lock on <path>.lock. Close must be called to release it.
//
// Example:
//
//	history, err := ledger.Open("history.log")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer history.Close()
//
//	if !history.Has(query) {
//		// run it, then
//		_ = history.Record(query)
//	}
func Open(path string) (*FileLedger, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to lock history file: %s", path)
	}

	if !locked {
		return nil, errors.Wrap(ErrLocked, path)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, consts.ModeFile)
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.Wrapf(err, "failed to open history file: %s", path)
	}

	entries, err := Read(f)
	if err != nil {
		_ = f.Close()
		_ = lock.Unlock()
		return nil, errors.Wrapf(err, "failed to read history file: %s", path)
	}

	return &FileLedger{
		mem:  NewMemory(entries...),
		path: path,
		file: f,
		lock: lock,
	}, nil
}

// ReadFile loads the entries of a history file without locking it.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return Read(f)
}

// Read decodes history entries, one per line. Blank lines are ignored.
func Read(r io.Reader) ([]string, error) {
	var entries []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		entries = append(entries, decode(line))
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading history")
	}

	return entries, nil
}

func (l *FileLedger) Has(identity string) bool {
	return l.mem.Has(identity)
}

func (l *FileLedger) Record(identity string) error {
	if l.mem.Has(identity) {
		return nil
	}

	if _, err := io.WriteString(l.file, encode(identity)+"\n"); err != nil {
		return errors.Wrapf(err, "failed to append to history file: %s", l.path)
	}

	if err := l.file.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync history file: %s", l.path)
	}

	return l.mem.Record(identity)
}

func (l *FileLedger) Entries() []string { return l.mem.Entries() }

func (l *FileLedger) Path() string { return l.path }

// Close closes the history file and releases the lock.
func (l *FileLedger) Close() error {
	err := l.file.Close()
	if uerr := l.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}

	return err
}

// escapedPrefix marks a line holding an escaped multi-line entry. Every other
// line is the literal identity.
const escapedPrefix = "-- dbchores:escaped "

var (
	encoder = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	decoder = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r")
)

// encode keeps one entry on one line. Single-line entries are written
// verbatim; the rest are escaped behind escapedPrefix.
func encode(identity string) string {
	if !strings.ContainsAny(identity, "\r\n") && !strings.HasPrefix(identity, escapedPrefix) {
		return identity
	}

	return escapedPrefix + encoder.Replace(identity)
}

func decode(line string) string {
	if rest, ok := strings.CutPrefix(line, escapedPrefix); ok {
		return decoder.Replace(rest)
	}

	return line
}
