// Package sqltest runs database tests against every SQL backend the ledger
// supports.  SQLite is always available; Postgres runs in a shared
// testcontainers instance and is only enabled with the integration_test build
// tag.
package sqltest

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/require"
)

// Backend names a SQL backend.  The values match the names accepted by
// acctledger.ParseDialect.
type Backend string

const (
	// Postgres is a Postgres server reached through pgx.
	Postgres Backend = "postgres"

	// SQLite is a local modernc.org/sqlite database file.
	SQLite Backend = "sqlite"
)

// DBFactory is a function type that creates a new database connection for
// testing purposes. It takes a testing.TB interface to allow for test failure
// when cannot create the database connection, add cleanup logic and create a
// unique and isolated database for each test case.
type DBFactory func(t testing.TB) *sql.DB

// DBTestFunc is a function type that defines the signature for database test
// functions that will be run against different database implementations.
type DBTestFunc func(t *testing.T, backend Backend, dbFactory DBFactory)

// backend pairs a Backend with the factory creating its databases.
type backend struct {
	name      Backend
	dbFactory DBFactory
}

// RunDatabaseTest runs the same test function against every enabled backend.
// The caller creates a new database connection per test case through the
// factory, ensuring that tests are isolated and can run in parallel.
func RunDatabaseTest(t *testing.T, testFunc DBTestFunc) {
	t.Helper()

	for _, b := range enabledBackends() {
		t.Run(string(b.name), func(t *testing.T) {
			t.Parallel()
			testFunc(t, b.name, b.dbFactory)
		})
	}
}

// deterministicTestID generates a deterministic identifier based on the test
// name. This ensures that Golang test caching works properly by avoiding
// random generations for the database name. We need to use this hash to avoid
// long database names that can be cropped by some database systems.
func deterministicTestID(t testing.TB) string {
	t.Helper()
	h := fnv.New32a()
	_, err := h.Write([]byte(t.Name()))

	// This should never fail, but we handle it just in case.
	require.NoError(t, err)

	hashed := fmt.Sprintf("%08x", h.Sum32())
	t.Logf("db name hash: %s", hashed)
	return hashed
}
