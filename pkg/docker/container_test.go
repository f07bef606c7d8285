package docker_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/pseudomuto/dbchores/pkg/docker"
	"github.com/stretchr/testify/require"
)

const configXML = `<?xml version="1.0"?>
<clickhouse>
    <logger>
        <level>warning</level>
        <console>true</console>
    </logger>
    <listen_host>0.0.0.0</listen_host>
    <http_port>8123</http_port>
    <tcp_port>9000</tcp_port>
</clickhouse>`

func TestContainer_StartStop(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config.d")
	require.NoError(t, os.MkdirAll(configDir, consts.ModeDir))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.xml"), []byte(configXML), consts.ModeFile))

	ch := docker.StartClickHouse(t, docker.Options{ConfigDir: configDir})
	require.True(t, ch.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	target, err := ch.Target(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, target.Host)
	require.Positive(t, target.Port)
	require.Equal(t, "default", ch.Credentials().User)

	require.NoError(t, ch.Stop(ctx))
	require.False(t, ch.IsRunning())
}

func TestContainer_NotRunning(t *testing.T) {
	ch := docker.New(docker.Options{})
	require.False(t, ch.IsRunning())

	// stopping a container that never started is fine
	require.NoError(t, ch.Stop(context.Background()))

	_, err := ch.Target(context.Background())
	require.EqualError(t, err, "container is not running")
}
