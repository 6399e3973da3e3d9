// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/xpubledger/acctledger"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/oklog/ulid/v2"
)

// sweepLedger is the part of the ledger the quota sweeper reads.
type sweepLedger interface {
	AccountsDue(ctx context.Context, now time.Time) ([]acctledger.Account,
		error)
	CountUses(ctx context.Context, accountID ulid.ULID) (int64, error)
	MostRecentPaid(ctx context.Context, accountID ulid.ULID) (
		fn.Option[acctledger.Payment], error)
}

// sweeperConfig holds the dependencies of a quotaSweeper.
type sweeperConfig struct {
	Ledger sweepLedger
	Clock  clock.Clock

	// Ticker drives the sweeps.  It is resumed when the sweeper starts
	// and stopped when it returns.
	Ticker ticker.Ticker
}

// accountStatus is the outcome of evaluating one account during a sweep.
type accountStatus struct {
	Account  acctledger.Account
	Used     int64
	LastPaid fn.Option[acctledger.Payment]
	Status   acctledger.QuotaStatus
}

// quotaSweeper periodically classifies the accounts whose stale time has
// passed and logs every status change so an external enforcer can act on it.
// It never modifies the ledger.
type quotaSweeper struct {
	cfg sweeperConfig

	// last holds the status reported for each account by the previous
	// sweep.  It is only accessed by the sweeping goroutine.
	last map[ulid.ULID]acctledger.QuotaStatus
}

func newQuotaSweeper(cfg sweeperConfig) *quotaSweeper {
	return &quotaSweeper{
		cfg:  cfg,
		last: make(map[ulid.ULID]acctledger.QuotaStatus),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Sweep errors are logged and retried on the next tick.
func (s *quotaSweeper) Run(ctx context.Context) error {
	s.cfg.Ticker.Resume()
	defer s.cfg.Ticker.Stop()

	swprLog.Infof("Quota sweeper started")
	defer swprLog.Infof("Quota sweeper stopped")

	for {
		if _, err := s.sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			swprLog.Errorf("Quota sweep failed: %v", err)
		}

		select {
		case <-s.cfg.Ticker.Ticks():

		case <-ctx.Done():
			return nil
		}
	}
}

// sweep evaluates every account due at the current time.  Status changes are
// logged at info level and unchanged ones at debug level.  Accounts that are
// no longer due are forgotten.
func (s *quotaSweeper) sweep(ctx context.Context) ([]accountStatus, error) {
	now := s.cfg.Clock.Now()

	due, err := s.cfg.Ledger.AccountsDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due accounts: %w", err)
	}

	statuses := make([]accountStatus, 0, len(due))
	seen := make(map[ulid.ULID]struct{}, len(due))
	for _, acct := range due {
		st, err := s.evaluate(ctx, now, acct)
		if err != nil {
			return statuses, err
		}
		statuses = append(statuses, st)
		seen[acct.ID] = struct{}{}

		prev, known := s.last[acct.ID]
		s.last[acct.ID] = st.Status

		if known && prev == st.Status {
			swprLog.Debugf("Account %v unchanged: %v (%d %s)",
				&st.Account, st.Status, st.Used,
				pickNoun(int(st.Used), "use", "uses"))
			continue
		}

		lastPaid := "never"
		st.LastPaid.WhenSome(func(p acctledger.Payment) {
			p.PaidAt.WhenSome(func(t time.Time) {
				lastPaid = t.Format(time.RFC3339)
			})
		})
		swprLog.Infof("Account %v is %v: %d %s, last paid %s",
			&st.Account, st.Status, st.Used,
			pickNoun(int(st.Used), "use", "uses"), lastPaid)
	}

	for id := range s.last {
		if _, ok := seen[id]; !ok {
			delete(s.last, id)
		}
	}

	swprLog.Debugf("Swept %d due %s", len(due),
		pickNoun(len(due), "account", "accounts"))

	return statuses, nil
}

func (s *quotaSweeper) evaluate(ctx context.Context, now time.Time,
	acct acctledger.Account) (accountStatus, error) {

	used, err := s.cfg.Ledger.CountUses(ctx, acct.ID)
	if err != nil {
		return accountStatus{}, fmt.Errorf("count uses of %v: %w",
			acct.ID, err)
	}

	lastPaid, err := s.cfg.Ledger.MostRecentPaid(ctx, acct.ID)
	if err != nil {
		return accountStatus{}, fmt.Errorf("last payment of %v: %w",
			acct.ID, err)
	}

	// AccountsDue only returns recharged accounts, so the quota is always
	// set here.
	quota := acct.Quota.UnwrapOr(acctledger.Quota{})

	return accountStatus{
		Account:  acct,
		Used:     used,
		LastPaid: lastPaid,
		Status:   quota.Evaluate(now, used),
	}, nil
}
