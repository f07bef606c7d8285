// Package docker runs disposable ClickHouse servers for integration tests.
//
// Containers are started through the testcontainers ClickHouse module and
// expose their native endpoint as a connection.Target, ready to be fed to the
// clickhouse engine driver:
//
//	ch := docker.New(docker.Options{})
//	if err := ch.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer ch.Stop(ctx)
//
//	target, err := ch.Target(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	conn, err := clickhouse.New().Connect(ctx, &connection.Context{
//		Engine:      "clickhouse",
//		Target:      target,
//		Credentials: ch.Credentials(),
//	})
package docker
