package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/pseudomuto/dbchores/pkg/ledger"
	"github.com/stretchr/testify/require"
)

// WriteFile creates dir/name (and any parent directories) with content and
// returns its path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), consts.ModeDir))
	require.NoError(t, os.WriteFile(path, []byte(content), consts.ModeFile))
	return path
}

// RequireHistory asserts that the history file at path holds exactly entries,
// in order.
func RequireHistory(t *testing.T, path string, entries ...string) {
	t.Helper()

	got, err := ledger.ReadFile(path)
	require.NoError(t, err, "Failed to read history: %s", path)

	if len(entries) == 0 {
		require.Empty(t, got)
		return
	}

	require.Equal(t, entries, got)
}

// RequireFileContains asserts that the file at path contains every expected
// string.
func RequireFileContains(t *testing.T, path string, expected ...string) {
	t.Helper()

	require.FileExists(t, path)

	content, err := os.ReadFile(path)
	require.NoError(t, err, "Failed to read file: %s", path)

	for _, e := range expected {
		require.Contains(t, string(content), e, "File should contain: %s", e)
	}
}
