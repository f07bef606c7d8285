package docker

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SkipIfUnavailable skips t when running with -short or when no Docker
// daemon is reachable.
func SkipIfUnavailable(t testing.TB) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping Docker tests in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	if err := exec.Command("docker", "ps").Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

// StartClickHouse starts a container for the duration of t.
func StartClickHouse(t testing.TB, opts Options) *Container {
	t.Helper()
	SkipIfUnavailable(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ch := New(opts)
	require.NoError(t, ch.Start(ctx), "Failed to start ClickHouse container")

	t.Cleanup(func() {
		_ = ch.Stop(context.Background())
	})

	return ch
}
