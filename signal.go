// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// shutdownSignals defines the signals that are handled to do a clean
// shutdown.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// interruptContext returns a context that is canceled the first time one of
// the shutdown signals is received.  A second signal is left to the default
// handler so a stuck shutdown can still be forced.
func interruptContext(parent context.Context) (context.Context,
	context.CancelFunc) {

	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, shutdownSignals...)

	go func() {
		defer signal.Stop(sigs)

		select {
		case sig := <-sigs:
			log.Infof("Received signal (%s).  Shutting down...", sig)
			cancel()

		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
