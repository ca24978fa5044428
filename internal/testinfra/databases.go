// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultPostgresImage is the PostgreSQL image used by integration tests.
	DefaultPostgresImage = "postgres:16-alpine"

	// DefaultMySQLImage is the MySQL image used by integration tests.
	DefaultMySQLImage = "mysql:8.4"

	// DefaultMongoImage is the MongoDB image used by integration tests.
	DefaultMongoImage = "mongo:7"

	testUser     = "chronicle"
	testPassword = "chronicle"
	testDatabase = "chronicle_test"
)

// DatabaseContainer is a running database server for testing.
type DatabaseContainer struct {
	testcontainers.Container

	// DSN connects to the test database with the driver the adapter uses.
	DSN string

	// Database is the name of the test database.
	Database string
}

// DatabaseOption configures a database container.
type DatabaseOption func(*databaseConfig)

type databaseConfig struct {
	image        string
	startTimeout time.Duration
}

// WithImage sets a custom Docker image.
func WithImage(image string) DatabaseOption {
	return func(c *databaseConfig) {
		c.image = image
	}
}

// WithStartTimeout sets the timeout for waiting for the server to start.
func WithStartTimeout(timeout time.Duration) DatabaseOption {
	return func(c *databaseConfig) {
		c.startTimeout = timeout
	}
}

func newDatabaseConfig(image string, opts []DatabaseOption) *databaseConfig {
	cfg := &databaseConfig{image: image, startTimeout: 90 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewPostgresContainer starts PostgreSQL and returns a lib/pq DSN.
func NewPostgresContainer(ctx context.Context, opts ...DatabaseOption) (*DatabaseContainer, error) {
	cfg := newDatabaseConfig(DefaultPostgresImage, opts)

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
			"POSTGRES_DB":       testDatabase,
		},
		// The entrypoint restarts the server once after initdb.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(cfg.startTimeout),
	}

	return startDatabase(ctx, req, "5432", testDatabase, func(host, port string) string {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", testUser, testPassword, host, port, testDatabase)
	})
}

// NewMySQLContainer starts MySQL and returns a go-sql-driver/mysql DSN.
func NewMySQLContainer(ctx context.Context, opts ...DatabaseOption) (*DatabaseContainer, error) {
	cfg := newDatabaseConfig(DefaultMySQLImage, opts)

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": testPassword,
			"MYSQL_USER":          testUser,
			"MYSQL_PASSWORD":      testPassword,
			"MYSQL_DATABASE":      testDatabase,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("port: 3306  MySQL Community Server"),
			wait.ForListeningPort("3306/tcp"),
		).WithStartupTimeout(cfg.startTimeout),
	}

	return startDatabase(ctx, req, "3306", testDatabase, func(host, port string) string {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", testUser, testPassword, host, port, testDatabase)
	})
}

// NewMongoContainer starts MongoDB and returns a connection URI.
func NewMongoContainer(ctx context.Context, opts ...DatabaseOption) (*DatabaseContainer, error) {
	cfg := newDatabaseConfig(DefaultMongoImage, opts)

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Waiting for connections"),
			wait.ForListeningPort("27017/tcp"),
		).WithStartupTimeout(cfg.startTimeout),
	}

	return startDatabase(ctx, req, "27017", testDatabase, func(host, port string) string {
		return fmt.Sprintf("mongodb://%s:%s", host, port)
	})
}

func startDatabase(ctx context.Context, req testcontainers.ContainerRequest, port, database string, dsn func(host, port string) string) (*DatabaseContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s container: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &DatabaseContainer{
		Container: container,
		DSN:       dsn(host, mapped.Port()),
		Database:  database,
	}, nil
}

// StartForTest starts a container with start, skipping the test when Docker
// is unavailable and terminating the container when the test ends.
func StartForTest(t *testing.T, start func(context.Context, ...DatabaseOption) (*DatabaseContainer, error)) *DatabaseContainer {
	t.Helper()
	SkipIfNoDocker(t)

	ctx := context.Background()
	db, err := start(ctx)
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	t.Cleanup(func() { CleanupContainer(t, context.Background(), db) })
	return db
}
