package docker

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// NativePort is the ClickHouse native protocol port inside the container.
	NativePort = nat.Port("9000/tcp")

	// HTTPPort is the ClickHouse HTTP port inside the container.
	HTTPPort = nat.Port("8123/tcp")

	defaultUser = "default"
)

type (
	// Options configure a ClickHouse container.
	Options struct {
		// Version is the ClickHouse image tag (default: consts.DefaultClickHouseVersion).
		Version string

		// ConfigDir is mounted at /etc/clickhouse-server/config.d when set.
		ConfigDir string

		// Password for the default user. Empty by default.
		Password string
	}

	// Container is a disposable ClickHouse server used by integration tests.
	Container struct {
		options   Options
		container *clickhouse.ClickHouseContainer
	}
)

// New creates a container with opts. Nothing is started until Start.
//
// Example:
//
//	ch := docker.New(docker.Options{Version: "25.7"})
//	if err := ch.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer ch.Stop(ctx)
//
//	target, _ := ch.Target(ctx)
func New(opts Options) *Container {
	if opts.Version == "" {
		opts.Version = consts.DefaultClickHouseVersion
	}

	return &Container{options: opts}
}

// Start runs the container and waits for the HTTP interface to answer.
func (c *Container) Start(ctx context.Context) error {
	if c.container != nil {
		return errors.New("container is already running")
	}

	customizers := []testcontainers.ContainerCustomizer{
		clickhouse.WithUsername(defaultUser),
		clickhouse.WithPassword(c.options.Password),
		testcontainers.WithEnv(map[string]string{"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1"}),
		testcontainers.WithWaitStrategyAndDeadline(
			5*time.Minute,
			wait.
				NewHTTPStrategy("/").
				WithPort(HTTPPort).
				WithStatusCodeMatcher(func(status int) bool {
					return status == 200
				}),
		),
	}

	if c.options.ConfigDir != "" {
		absConfigDir, err := filepath.Abs(c.options.ConfigDir)
		if err != nil {
			return errors.Wrapf(err, "failed to get absolute path for ConfigDir: %s", c.options.ConfigDir)
		}

		customizers = append(
			customizers,
			testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
				hostConfig.Mounts = []mount.Mount{
					{
						Type:   mount.TypeBind,
						Source: absConfigDir,
						Target: "/etc/clickhouse-server/config.d",
					},
				}
			}),
		)
	}

	ch, err := clickhouse.Run(ctx,
		fmt.Sprintf("clickhouse/clickhouse-server:%s-alpine", c.options.Version),
		customizers...,
	)
	if err != nil {
		return errors.Wrap(err, "failed to start ClickHouse container")
	}

	c.container = ch
	return nil
}

// Stop terminates the container. Stopping a stopped container is a no-op.
func (c *Container) Stop(ctx context.Context) error {
	if c.container == nil {
		return nil
	}

	err := c.container.Terminate(ctx)
	c.container = nil

	if err != nil {
		return errors.Wrap(err, "failed to stop ClickHouse container")
	}

	return nil
}

// Target returns the host and mapped native port of the running container.
func (c *Container) Target(ctx context.Context) (connection.Target, error) {
	if c.container == nil {
		return connection.Target{}, errors.New("container is not running")
	}

	host, err := c.container.Host(ctx)
	if err != nil {
		return connection.Target{}, errors.Wrap(err, "failed to get container host")
	}

	port, err := c.container.MappedPort(ctx, NativePort)
	if err != nil {
		return connection.Target{}, errors.Wrap(err, "failed to get container port")
	}

	p, err := strconv.Atoi(port.Port())
	if err != nil {
		return connection.Target{}, errors.Wrapf(err, "invalid mapped port: %s", port)
	}

	return connection.Target{Host: host, Port: p}, nil
}

// Credentials for the container's default user.
func (c *Container) Credentials() connection.Credentials {
	return connection.Credentials{User: defaultUser, Password: c.options.Password}
}

// IsRunning returns true if the container is currently running
func (c *Container) IsRunning() bool {
	return c.container != nil
}
