//go:build integration

// README: Disposable Postgres and Redis containers for integration tests.
package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"herodispatch/internal/infra"
)

const (
	user = "postgres"
	pass = "postgres"
	db   = "dispatch"
)

// StartPostgres boots a Postgres container, applies the schema and returns a pool
// plus a cleanup func.
func StartPostgres(ctx context.Context) (*pgxpool.Pool, func(), error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": pass,
			"POSTGRES_DB":       db,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(90 * time.Second),
	}

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start container: %w", err)
	}
	terminate := func() { _ = ctr.Terminate(context.Background()) }

	host, err := ctr.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		terminate()
		return nil, nil, err
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port.Port(), db)
	pool, err := infra.NewDB(ctx, dsn, 4)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	if err := infra.Migrate(ctx, pool); err != nil {
		pool.Close()
		terminate()
		return nil, nil, err
	}

	return pool, func() {
		pool.Close()
		terminate()
	}, nil
}

// StartRedis boots a Redis container and returns a connected client plus a
// cleanup func.
func StartRedis(ctx context.Context) (*redis.Client, func(), error) {
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start redis container: %w", err)
	}
	terminate := func() { _ = ctr.Terminate(context.Background()) }

	endpoint, err := ctr.Endpoint(ctx, "")
	if err != nil {
		terminate()
		return nil, nil, err
	}
	client, err := infra.NewRedis(ctx, endpoint, "", 0)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	return client, func() {
		_ = client.Close()
		terminate()
	}, nil
}
