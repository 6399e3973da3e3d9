// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/xpubledger/acctledger"
	"github.com/stretchr/testify/require"
)

// ctl runs ledgerctl commands against one SQLite file.
type ctl struct {
	t    *testing.T
	file string
}

func newCtl(t *testing.T) *ctl {
	return &ctl{
		t:    t,
		file: filepath.Join(t.TempDir(), "ledger.db"),
	}
}

// run executes a command and returns its output fields.
func (c *ctl) run(args ...string) ([]string, error) {
	var out bytes.Buffer
	args = append([]string{"--dbtype=sqlite", "--sqlite.file=" + c.file},
		args...)
	err := run(args, &out, strings.NewReader(""))
	return strings.Fields(out.String()), err
}

func (c *ctl) mustRun(args ...string) []string {
	c.t.Helper()
	fields, err := c.run(args...)
	require.NoError(c.t, err, "ledgerctl %v", args)
	return fields
}

// TestLedgerctl drives one account through every command.
func TestLedgerctl(t *testing.T) {
	t.Parallel()

	c := newCtl(t)

	out := c.mustRun("migrate")
	require.Equal(t, []string{"schema", "version", "1"}, out)

	out = c.mustRun("create-account", "--wallet=12345")
	require.Len(t, out, 2)
	acct := out[0]
	require.Equal(t, "1", out[1])

	out = c.mustRun("create-account", "--wallet=12345")
	require.Equal(t, "2", out[1])

	c.mustRun("attach-xpub", "--account="+acct, "--xpub=xpub123")

	out = c.mustRun("issue-token", "--account="+acct, "--prefix=svc",
		"--email=ops@example.com")
	require.Len(t, out, 1)
	token := out[0]
	require.True(t, strings.HasPrefix(token, "svc"))
	require.Len(t, token, acctledger.DefaultTokenLength)

	for range 3 {
		out = c.mustRun("authenticate", token)
		require.Equal(t, []string{acct, "12345", "1"}, out)
	}

	out = c.mustRun("usage", "--account="+acct)
	require.Equal(t, []string{"0", "unmetered"}, out)

	c.mustRun("revoke-token", "--token="+token)
	_, err := c.run("authenticate", token)
	require.Error(t, err)

	out = c.mustRun("recharge", "--account="+acct, "--soft=2",
		"--hard=10", "--stalein=720h", "--expiresin=744h")
	require.Len(t, out, 2)

	out = c.mustRun("usage", "--account="+acct)
	require.Equal(t, []string{"3", "over-soft"}, out)

	out = c.mustRun("last-payment", "--account="+acct)
	require.Equal(t, []string{"none"}, out)

	out = c.mustRun("create-payment", "--account="+acct,
		"--amount=0.0005")
	require.Len(t, out, 2)
	payment := out[0]
	require.Equal(t, "1", out[1])

	c.mustRun("mark-paid", "--payment="+payment,
		"--paidat=2024-03-01T12:00:00Z")
	_, err = c.run("mark-paid", "--payment="+payment)
	require.Error(t, err)

	out = c.mustRun("last-payment", "--account="+acct)
	require.Equal(t, []string{payment, "1", "50000",
		"2024-03-01T12:00:00Z"}, out)
}

// TestLedgerctlInvalid checks argument errors that never reach the ledger.
func TestLedgerctlInvalid(t *testing.T) {
	t.Parallel()

	c := newCtl(t)
	c.mustRun("migrate")

	acct := c.mustRun("create-account", "--wallet=1")[0]

	tests := []struct {
		name string
		args []string
	}{
		{
			name: "bad account id",
			args: []string{"usage", "--account=nope"},
		},
		{
			name: "bad prefix",
			args: []string{"issue-token", "--account=" + acct,
				"--prefix=a-b"},
		},
		{
			name: "revoke without target",
			args: []string{"revoke-token"},
		},
		{
			name: "negative amount",
			args: []string{"create-payment", "--account=" + acct,
				"--amount=-1 sat"},
		},
		{
			name: "missing required",
			args: []string{"create-account"},
		},
		{
			name: "rollback not confirmed",
			args: []string{"migrate", "--rollback"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := c.run(test.args...)
			require.Error(t, err)
		})
	}

	// Forced rollback goes through.
	out := c.mustRun("migrate", "--rollback", "--force")
	require.Equal(t, []string{"schema", "version", "0"}, out)
}
