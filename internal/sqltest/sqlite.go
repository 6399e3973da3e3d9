package sqltest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/xpubledger/internal/cfgutil"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // Register the "sqlite" driver.
)

// sqliteBusyTimeout is shorter than the daemon default so that a lock
// ordering bug fails the test quickly instead of stalling it.
const sqliteBusyTimeout = 5 * time.Second

// NewSQLiteDB opens a new SQLite file in the test's temporary directory with
// the connection parameters the daemon uses.  The directory, and with it the
// database and its WAL files, is removed by the testing package.
func NewSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	path := filepath.Join(
		t.TempDir(), "ledger_"+deterministicTestID(t)+".db",
	)

	db, err := sql.Open("sqlite", cfgutil.SQLiteDSN(path, sqliteBusyTimeout))
	require.NoError(t, err, "open %s", path)

	// Registered before the ping so a failed ping still releases the
	// handle.
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	require.NoError(t, db.PingContext(ctx), "ping %s", path)

	return db
}
