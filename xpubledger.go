// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/btcsuite/xpubledger/acctledger"
	"github.com/btcsuite/xpubledger/internal/cfgutil"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Work around defer not working after os.Exit.
	if err := ledgerMain(); err != nil {
		os.Exit(1)
	}
}

// ledgerMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func ledgerMain() error {
	// Load configuration and parse command line.
	cfg, _, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	// Initialize logging at the configured levels.
	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		return err
	}
	defer closeLogRotator()

	setLogLevels(defaultLogLevel)
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		log.Errorf("%v", err)
		return err
	}
	if cfg.configFileError != nil {
		log.Warnf("%v", cfg.configFileError)
	}

	log.Infof("Version %s", version())

	ctx, cancel := interruptContext(context.Background())
	defer cancel()

	if cfg.dialect == acctledger.DialectSQLite {
		err := os.MkdirAll(filepath.Dir(cfg.SQLite.File), 0700)
		if err != nil {
			log.Errorf("Unable to create data directory: %v", err)
			return err
		}
	}

	log.Infof("Opening %v ledger at %s", cfg.dialect,
		cfgutil.RedactDSN(cfg.dsn()))
	store, err := acctledger.Open(ctx, cfg.dialect, cfg.dsn())
	if err != nil {
		log.Errorf("Unable to open ledger: %v", err)
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("Unable to close ledger: %v", err)
		}
	}()
	store.DB().SetMaxOpenConns(cfg.MaxOpenConns)

	if err := store.Migrate(ctx); err != nil {
		log.Errorf("Unable to migrate ledger: %v", err)
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.SweepInterval > 0 {
		sweeper := newQuotaSweeper(sweeperConfig{
			Ledger: store,
			Clock:  clock.NewDefaultClock(),
			Ticker: ticker.New(cfg.SweepInterval),
		})
		g.Go(func() error {
			return sweeper.Run(ctx)
		})
	} else {
		log.Infof("Quota sweeper disabled")
	}

	// Keep the process alive until shutdown even when nothing else runs.
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorf("%v", err)
		return err
	}

	log.Info("Shutdown complete")
	return nil
}
