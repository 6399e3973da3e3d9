// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/xpubledger/internal/sqltest"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testXPub = "xpub6CUGRUonZSQ4TWtTMmzXdrXDtypWKiKrhko4egpiMZbpiaQL2jkwSB1" +
	"icqYh2cfDfVxdx4df189oLKnC5fSwqPfgyP3hooxujYzAu3fDVmz"

// TestCreateAccount checks the record returned by CreateAccount and what is
// stored.
func TestCreateAccount(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, clk := newTestStore(t, backend, dbFactory)

		acct, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 12345,
		})
		require.NoError(t, err)
		require.EqualValues(t, 12345, acct.WalletID)
		require.EqualValues(t, 1, acct.Index)
		require.Empty(t, acct.XPub)
		require.True(t, acct.Quota.IsNone())
		require.EqualValues(t, ulid.Timestamp(testEpoch), acct.ID.Time())

		stored, err := store.Account(ctx, acct.ID)
		require.NoError(t, err)
		require.True(t, stored.IsSome())
		got := stored.UnsafeFromSome()
		require.Equal(t, acct.ID, got.ID)
		require.Equal(t, acct.WalletID, got.WalletID)
		require.Equal(t, acct.Index, got.Index)
		require.Empty(t, got.XPub)
		require.True(t, got.Notify.IsEmpty())
		require.True(t, got.Quota.IsNone())
		requireSameTime(t, acct.CreatedAt, got.CreatedAt)

		// A caller supplied id is used as is.
		advance(clk, time.Second)
		id := ulid.Make()
		acct2, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 12345,
			ID:       fn.Some(id),
		})
		require.NoError(t, err)
		require.Equal(t, id, acct2.ID)
		require.EqualValues(t, 2, acct2.Index)

		// Reusing the id fails and does not consume an index.
		_, err = store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 12345,
			ID:       fn.Some(id),
		})
		require.True(t, IsError(err, ErrConstraint), "got %v", err)

		acct3, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 12345,
		})
		require.NoError(t, err)
		require.EqualValues(t, 3, acct3.Index)

		missing, err := store.Account(ctx, ulid.Make())
		require.NoError(t, err)
		require.True(t, missing.IsNone())
	})
}

// TestAttachDerivedKey checks setting, overwriting and rejecting derived
// keys.
func TestAttachDerivedKey(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, clk := newTestStore(t, backend, dbFactory)

		acct, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 1,
		})
		require.NoError(t, err)

		advance(clk, time.Minute)
		require.NoError(t, store.AttachDerivedKey(ctx, acct.ID, testXPub))

		got, err := store.Account(ctx, acct.ID)
		require.NoError(t, err)
		require.Equal(t, testXPub, got.UnsafeFromSome().XPub)
		requireSameTime(t, clk.Now(), got.UnsafeFromSome().UpdatedAt)

		// A second call overwrites.
		require.NoError(t, store.AttachDerivedKey(ctx, acct.ID, "other"))
		got, err = store.Account(ctx, acct.ID)
		require.NoError(t, err)
		require.Equal(t, "other", got.UnsafeFromSome().XPub)

		err = store.AttachDerivedKey(ctx, acct.ID, "")
		require.True(t, IsError(err, ErrInvalidInput))

		err = store.AttachDerivedKey(ctx, ulid.Make(), testXPub)
		require.True(t, IsError(err, ErrAccountNotFound))
	})
}

// TestAccountsDue checks which accounts are reported as stale.
func TestAccountsDue(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, _ := newTestStore(t, backend, dbFactory)

		newAccount := func() *Account {
			acct, err := store.CreateAccount(ctx, CreateAccountParams{
				WalletID: 5,
			})
			require.NoError(t, err)
			return acct
		}
		recharge := func(acct *Account, staleAt time.Time) {
			_, err := store.Recharge(ctx, acct.ID, Quota{
				SoftQuota: 10,
				HardQuota: 20,
				StaleAt:   staleAt,
				ExpiresAt: staleAt.Add(24 * time.Hour),
			})
			require.NoError(t, err)
		}

		// Never recharged, not listed.
		newAccount()

		late := newAccount()
		recharge(late, testEpoch.Add(2*time.Hour))

		early := newAccount()
		recharge(early, testEpoch.Add(time.Hour))

		future := newAccount()
		recharge(future, testEpoch.Add(48*time.Hour))

		due, err := store.AccountsDue(ctx, testEpoch)
		require.NoError(t, err)
		require.Empty(t, due)

		due, err = store.AccountsDue(ctx, testEpoch.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, due, 2)
		require.Equal(t, early.ID, due[0].ID)
		require.Equal(t, late.ID, due[1].ID)
		require.True(t, due[0].Quota.IsSome())
	})
}

// TestCreateAccountConcurrent checks that concurrent account creation for one
// wallet yields distinct, dense indices.
func TestCreateAccountConcurrent(t *testing.T) {
	t.Parallel()

	const (
		workers   = 8
		perWorker = 10
	)

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		store, _ := newTestStore(t, backend, dbFactory)

		var (
			mu       sync.Mutex
			indices  []uint32
			accounts = make(map[ulid.ULID]struct{})
		)
		g, ctx := errgroup.WithContext(context.Background())
		for range workers {
			g.Go(func() error {
				for range perWorker {
					acct, err := store.CreateAccount(
						ctx, CreateAccountParams{
							WalletID: 7,
						},
					)
					if err != nil {
						return err
					}

					mu.Lock()
					indices = append(indices, acct.Index)
					accounts[acct.ID] = struct{}{}
					mu.Unlock()
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		require.Len(t, accounts, workers*perWorker)
		sort.Slice(indices, func(i, j int) bool {
			return indices[i] < indices[j]
		})
		for i, index := range indices {
			require.EqualValues(t, i+1, index)
		}

		w, err := store.Wallet(context.Background(), 7)
		require.NoError(t, err)
		require.EqualValues(t, workers*perWorker,
			w.UnsafeFromSome().AccountSeq)
	})
}

// TestDeferredForeignKeys checks that children may be written before their
// parents inside one transaction, and that a parent still missing at commit
// fails the transaction.
func TestDeferredForeignKeys(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, _ := newTestStore(t, backend, dbFactory)

		insertAccount := func(tx *sql.Tx, id ulid.ULID,
			walletID int64) error {

			now := store.now()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO account (
					ulid, wallet_id, "index", xpub,
					created_at, updated_at
				) VALUES ($1, $2, 1, '', $3, $4)`,
				id.String(), walletID, now, now)
			return err
		}
		insertPayment := func(tx *sql.Tx, id, accountID ulid.ULID) error {
			now := store.now()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO payment (
					ulid, account_ulid, "index", satoshis,
					created_at, updated_at
				) VALUES ($1, $2, 1, 1000, $3, $4)`,
				id.String(), accountID.String(), now, now)
			return err
		}

		// Payment, then account, then wallet: every reference is
		// dangling until the last statement.
		acctID, payID := store.newULID(), store.newULID()
		err := store.withTx(ctx, "children first", func(tx *sql.Tx) error {
			if err := insertPayment(tx, payID, acctID); err != nil {
				return err
			}
			if err := insertAccount(tx, acctID, 99); err != nil {
				return err
			}
			return store.registerWallet(ctx, tx, 99)
		})
		require.NoError(t, err)

		acct, err := store.Account(ctx, acctID)
		require.NoError(t, err)
		require.True(t, acct.IsSome())
		require.EqualValues(t, 99, acct.UnsafeFromSome().WalletID)

		payments, err := store.Payments(ctx, acctID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		require.Equal(t, payID, payments[0].ID)

		// The wallet never arrives, so the commit is rejected and
		// nothing is kept.
		orphan := store.newULID()
		err = store.withTx(ctx, "orphan", func(tx *sql.Tx) error {
			return insertAccount(tx, orphan, 98)
		})
		require.True(t, IsError(err, ErrConstraint), "got %v", err)

		acct, err = store.Account(ctx, orphan)
		require.NoError(t, err)
		require.True(t, acct.IsNone())

		// The failed commit leaves no open transaction behind.
		for range 3 {
			_, err = store.CreateAccount(ctx, CreateAccountParams{
				WalletID: 98,
			})
			require.NoError(t, err)
		}
	})
}
