// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMergeSchemas checks that the schema is written, covers every ledger
// table and is detected as stale once edited.
func TestMergeSchemas(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "schemas", "schema.sql")

	require.Error(t, run(out, true))
	require.NoError(t, run(out, false))
	require.NoError(t, run(out, true))

	schema, err := os.ReadFile(out)
	require.NoError(t, err)
	for _, table := range []string{
		"wallet", "account", "payment", "base62_token",
		"base62_token_use", "address_cache", "coin_cache",
		"schema_version",
	} {
		require.Regexp(t, `CREATE TABLE (IF NOT EXISTS )?`+table+` \(`,
			string(schema))
	}

	// The order is deterministic.
	require.NoError(t, run(out, false))
	again, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, schema, again)

	require.NoError(t, os.WriteFile(out, append(schema, '\n'), 0o600))
	require.Error(t, run(out, true))
}
