// Package testutil starts the Postgres and S3 containers the integration
// tests run against. Containers are removed through t.Cleanup.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloo-solutions/kbase/internal/database"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	// RustFSCredential is both the access key and the secret of the test S3.
	RustFSCredential = "rustfsadmin"
)

// startContainer runs req and returns the host:port mapped to port.
func startContainer(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) (string, string) {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", req.Image, err)
	}
	return host, mapped.Port()
}

// PostgresURL starts pgvector-enabled Postgres and returns its connection URL.
func PostgresURL(ctx context.Context, t *testing.T) string {
	host, port := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kbase",
			"POSTGRES_PASSWORD": "kbase",
			"POSTGRES_DB":       "kbase",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")

	return fmt.Sprintf("postgres://kbase:kbase@%s:%s/kbase?sslmode=disable", host, port)
}

// NewMigratedPool starts Postgres, applies migrationsDir with the same
// golang-migrate path the daemon uses and returns a pool closed on cleanup.
func NewMigratedPool(ctx context.Context, t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()
	url := PostgresURL(ctx, t)

	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		t.Fatalf("failed to resolve migrations dir: %v", err)
	}
	if err := database.Migrate(url, "file://"+abs, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.New(ctx, url)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// S3Endpoint starts RustFS and returns its S3 endpoint URL. Both credentials
// are RustFSCredential.
func S3Endpoint(ctx context.Context, t *testing.T) string {
	host, port := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSCredential,
			"RUSTFS_SECRET_KEY": RustFSCredential,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")

	return fmt.Sprintf("http://%s:%s", host, port)
}
