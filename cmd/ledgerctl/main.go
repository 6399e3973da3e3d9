// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// ledgerctl is an operator tool for the account ledger.  It talks to the
// ledger database directly, so it needs the same storage options as the
// xpubledger daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/xpubledger/acctledger"
	"github.com/btcsuite/xpubledger/internal/cfgutil"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/clock"
)

var datadir = btcutil.AppDataDir("xpubledger", false)

// storageOpts selects the ledger database.
type storageOpts struct {
	DBType  string        `long:"dbtype" choice:"postgres" choice:"sqlite" description:"Database backend of the ledger"`
	PGDSN   string        `long:"pg.dsn" description:"Postgres connection string"`
	SQLite  string        `long:"sqlite.file" description:"Path to the SQLite database file"`
	Timeout time.Duration `long:"timeout" description:"Give up on a command after this long"`
	Verbose bool          `short:"v" long:"verbose" description:"Log ledger activity to stderr"`
}

// app carries the state shared by every command.
type app struct {
	opts  storageOpts
	out   io.Writer
	in    io.Reader
	clock clock.Clock
}

func newApp(out io.Writer, in io.Reader) *app {
	return &app{
		opts: storageOpts{
			DBType:  "sqlite",
			SQLite:  filepath.Join(datadir, "ledger.db"),
			Timeout: time.Minute,
		},
		out:   out,
		in:    in,
		clock: clock.NewDefaultClock(),
	}
}

// openStore opens the configured ledger.  The caller must close it.
func (a *app) openStore(ctx context.Context) (*acctledger.Store, error) {
	if a.opts.Verbose {
		backend := btclog.NewBackend(os.Stderr)
		logger := backend.Logger("ALDG")
		logger.SetLevel(btclog.LevelDebug)
		acctledger.UseLogger(logger)
	}

	dialect, err := acctledger.ParseDialect(a.opts.DBType)
	if err != nil {
		return nil, err
	}

	var dsn string
	switch dialect {
	case acctledger.DialectPostgres:
		if a.opts.PGDSN == "" {
			return nil, errors.New("--pg.dsn is required with " +
				"--dbtype=postgres")
		}
		dsn = a.opts.PGDSN

	default:
		path := cfgutil.CleanAndExpandPath(a.opts.SQLite)
		err := os.MkdirAll(filepath.Dir(path), 0700)
		if err != nil {
			return nil, err
		}
		dsn = cfgutil.SQLiteDSN(path, cfgutil.DefaultSQLiteBusyTimeout)
	}

	return acctledger.Open(ctx, dialect, dsn)
}

// withStore runs f against an open store, bounded by the command timeout.
func (a *app) withStore(f func(ctx context.Context,
	store *acctledger.Store) error) error {

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.Timeout)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return errContext(err, "open ledger")
	}
	defer store.Close()

	return f(ctx, store)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

// errContext prefixes a non-nil err with context.
func errContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// newParser returns the command line parser of a.
func newParser(a *app) *flags.Parser {
	parser := flags.NewParser(&a.opts, flags.Default)
	for _, c := range commands(a) {
		_, err := parser.AddCommand(c.name, c.short, c.long, c.data)
		if err != nil {
			panic(err)
		}
	}
	return parser
}

// run parses args and executes the selected command.
func run(args []string, out io.Writer, in io.Reader) error {
	_, err := newParser(newApp(out, in)).ParseArgs(args)
	return err
}

func main() {
	// The parser prints every error it returns, command errors included.
	if err := run(os.Args[1:], os.Stdout, os.Stdin); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
