// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestParseAmount checks exact parsing of satoshi and coin amounts.
func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    btcutil.Amount
		wantErr bool
	}{
		{in: "1500 sat", want: 1500},
		{in: "1500sat", want: 1500},
		{in: "1", want: btcutil.SatoshiPerBitcoin},
		{in: "0.1 BTC", want: 10_000_000},
		{in: "0.00000001", want: 1},
		{in: ".5", want: 50_000_000},
		{in: "-0.5", want: -50_000_000},
		{in: "21000000", want: btcutil.MaxSatoshi},
		{in: "0.000000001", wantErr: true},
		{in: "21000001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1.5 sat", wantErr: true},
		{in: "", wantErr: true},
		{in: "1.-5", wantErr: true},
		{in: "1.+5", wantErr: true},
		{in: "--1", wantErr: true},
		{in: "-+1", wantErr: true},
		{in: "+1", wantErr: true},
		{in: "1.", want: btcutil.SatoshiPerBitcoin},
		{in: "--5 sat", wantErr: true},
		{in: "+5 sat", wantErr: true},
		{in: "-5 sat", want: -5},
	}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAmount(test.in)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, got)

			var flag AmountFlag
			require.NoError(t, flag.UnmarshalFlag(test.in))
			require.Equal(t, test.want, flag.Amount)
		})
	}
}

// TestFileExists checks existing and missing paths.
func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.conf")

	exists, err := FileExists(path)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	exists, err = FileExists(path)
	require.NoError(t, err)
	require.True(t, exists)
}

// TestCleanAndExpandPath checks home and environment expansion.
func TestCleanAndExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Setenv("XPL_TEST_DIR", "/var/lib/xpl")

	require.Equal(t, filepath.Join(home, "data"),
		CleanAndExpandPath("~/data"))
	require.Equal(t, "/var/lib/xpl/db",
		CleanAndExpandPath("$XPL_TEST_DIR/./db"))
	require.Equal(t, "", CleanAndExpandPath(""))
}

// TestSQLiteDSN checks the connection parameters of a SQLite DSN.
func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	dsn := SQLiteDSN("/tmp/ledger.db", 5*time.Second)
	require.True(t, strings.HasPrefix(dsn, "file:/tmp/ledger.db?"))
	require.Contains(t, dsn, "_pragma=foreign_keys(1)")
	require.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	require.Contains(t, dsn, "_txlock=immediate")
}

// TestRedactDSN checks that passwords never survive redaction.
func TestRedactDSN(t *testing.T) {
	t.Parallel()

	red := RedactDSN("postgres://ledger:hunter2@db:5432/ledger")
	require.NotContains(t, red, "hunter2")
	require.Contains(t, red, "db:5432/ledger")

	red = RedactDSN("host=db user=ledger password=hunter2")
	require.NotContains(t, red, "hunter2")
}
