//go:build integration_test

package sqltest

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	pgImage        = "postgres:16-alpine"
	pgStartTimeout = 2 * time.Minute
	pgAdminTimeout = 30 * time.Second
)

// pgServer is the Postgres container shared by every test in the binary.
// Each test gets its own database on it.
type pgServer struct {
	container *postgres.PostgresContainer
	admin     *pgx.ConnConfig
}

var (
	pgOnce   sync.Once
	pgShared *pgServer
	pgErr    error
)

// sharedPostgres starts the container on first use.  A failed start is
// remembered so later tests fail fast instead of retrying.
func sharedPostgres(t testing.TB) *pgServer {
	t.Helper()

	pgOnce.Do(func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), pgStartTimeout,
		)
		defer cancel()

		container, err := postgres.Run(ctx, pgImage,
			postgres.WithDatabase("xpubledger"),
			postgres.WithUsername("ledger"),
			postgres.WithPassword("ledger"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			pgErr = err
			return
		}

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			pgErr = err
			return
		}

		admin, err := pgx.ParseConfig(dsn)
		if err != nil {
			pgErr = err
			return
		}

		pgShared = &pgServer{container: container, admin: admin}
	})

	require.NoError(t, pgErr, "postgres container unavailable")

	return pgShared
}

// exec runs a single administrative statement on the maintenance database.
// CREATE and DROP DATABASE cannot run inside a transaction, so a dedicated
// connection is used instead of a pool.
func (s *pgServer) exec(ctx context.Context, stmt string) error {
	conn, err := pgx.ConnectConfig(ctx, s.admin)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()

	_, err = conn.Exec(ctx, stmt)
	return err
}

// NewPostgresDB creates a database named after the test on the shared
// container and returns a pool connected to it.  The database is dropped,
// with any lingering sessions, when the test ends.
func NewPostgresDB(t testing.TB) *sql.DB {
	t.Helper()

	srv := sharedPostgres(t)

	name := "ledger_" + deterministicTestID(t)
	ident := pgx.Identifier{name}.Sanitize()

	ctx, cancel := context.WithTimeout(context.Background(), pgAdminTimeout)
	defer cancel()

	err := srv.exec(ctx, "CREATE DATABASE "+ident)
	require.NoError(t, err, "create database %s", name)

	cfg := srv.admin.Copy()
	cfg.Database = name

	db := stdlib.OpenDB(*cfg)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(30 * time.Second)

	t.Cleanup(func() {
		_ = db.Close()

		ctx, cancel := context.WithTimeout(
			context.Background(), pgAdminTimeout,
		)
		defer cancel()

		_ = srv.exec(ctx, "DROP DATABASE IF EXISTS "+ident+
			" WITH (FORCE)")
	})

	require.NoError(t, db.PingContext(ctx), "ping %s", name)

	return db
}
