// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/xpubledger/internal/sqltest"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

// TestIssueAndAuthenticate checks that an issued token authenticates its
// account and that every authentication is recorded.
func TestIssueAndAuthenticate(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, _ := newTestStore(t, backend, dbFactory)

		acct, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 12345,
		})
		require.NoError(t, err)

		token, err := store.IssueToken(ctx, IssueTokenParams{
			Prefix:    "svc",
			AccountID: acct.ID,
		})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(token, "svc"))
		require.Len(t, token, DefaultTokenLength)

		for range 3 {
			got, err := store.Authenticate(ctx, token)
			require.NoError(t, err)
			require.Equal(t, acct.ID, got.ID)
			require.Equal(t, acct.Index, got.Index)
		}

		var uses int
		err = store.DB().QueryRow(`
			SELECT COUNT(*) FROM base62_token_use
			WHERE base62_token_hash_id = $1`,
			HashToken(token)).Scan(&uses)
		require.NoError(t, err)
		require.Equal(t, 3, uses)

		tokens, err := store.Tokens(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		require.Equal(t, HashToken(token), tokens[0].Hash)
		require.Equal(t, token, tokens[0].Token)
		require.Equal(t, acct.ID, tokens[0].AccountID)
		require.True(t, tokens[0].RevokedAt.IsNone())
	})
}

// TestAuthenticateUnknown checks that tokens that were never issued are
// rejected.
func TestAuthenticateUnknown(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, _ := newTestStore(t, backend, dbFactory)

		acct, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 1,
		})
		require.NoError(t, err)
		_, err = store.IssueToken(ctx, IssueTokenParams{
			Prefix:    "svc",
			AccountID: acct.ID,
		})
		require.NoError(t, err)

		// A random string of the right length fails the checksum.
		random, err := DefaultTokenConfig().randomString(
			DefaultTokenLength,
		)
		require.NoError(t, err)

		// A well formed token that was never stored passes the
		// checksum but has no binding.
		unissued, err := DefaultTokenConfig().Generate("svc")
		require.NoError(t, err)

		for _, token := range []string{random, unissued, "", "svc"} {
			_, err := store.Authenticate(ctx, token)
			require.True(t, IsError(err, ErrUnauthenticated),
				"token %q: %v", token, err)
		}
	})
}

// TestRevokeToken checks revocation and its idempotency.
func TestRevokeToken(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, clk := newTestStore(t, backend, dbFactory)

		acct, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 1,
		})
		require.NoError(t, err)
		token, err := store.IssueToken(ctx, IssueTokenParams{
			Prefix:    "svc",
			AccountID: acct.ID,
		})
		require.NoError(t, err)
		hash := HashToken(token)

		advance(clk, time.Hour)
		revokedAt := clk.Now()
		require.NoError(t, store.RevokeToken(ctx, hash))

		_, err = store.Authenticate(ctx, token)
		require.True(t, IsError(err, ErrUnauthenticated))

		byHash, err := store.AccountByTokenHash(ctx, hash)
		require.NoError(t, err)
		require.True(t, byHash.IsNone())

		// Revoking again keeps the first revocation time.
		advance(clk, time.Hour)
		require.NoError(t, store.RevokeToken(ctx, hash))

		tokens, err := store.Tokens(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		require.True(t, tokens[0].RevokedAt.IsSome())
		requireSameTime(t, revokedAt, tokens[0].RevokedAt.UnsafeFromSome())

		err = store.RevokeToken(ctx, strings.Repeat("A", DefaultHashLength))
		require.True(t, IsError(err, ErrTokenNotFound))
	})
}

// TestIssueTokenNotify checks that notify targets are written with the token
// and that unset targets keep their value.
func TestIssueTokenNotify(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, _ := newTestStore(t, backend, dbFactory)

		acct, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 1,
		})
		require.NoError(t, err)

		_, err = store.IssueToken(ctx, IssueTokenParams{
			Prefix:    "svc",
			AccountID: acct.ID,
			Notify: NotifyTargets{
				Email:   fn.Some("ops@example.com"),
				Webhook: fn.Some("https://example.com/hook"),
			},
		})
		require.NoError(t, err)

		_, err = store.IssueToken(ctx, IssueTokenParams{
			Prefix:    "svc",
			AccountID: acct.ID,
			Notify: NotifyTargets{
				Phone: fn.Some("+15550100"),
			},
		})
		require.NoError(t, err)

		got, err := store.Account(ctx, acct.ID)
		require.NoError(t, err)
		notify := got.UnsafeFromSome().Notify
		require.Equal(t, fn.Some("ops@example.com"), notify.Email)
		require.Equal(t, fn.Some("+15550100"), notify.Phone)
		require.Equal(t, fn.Some("https://example.com/hook"),
			notify.Webhook)
	})
}

// TestIssueTokenUnknownAccount checks that tokens cannot be bound to a
// missing account, with or without notify targets.
func TestIssueTokenUnknownAccount(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, _ := newTestStore(t, backend, dbFactory)

		_, err := store.IssueToken(ctx, IssueTokenParams{
			Prefix:    "svc",
			AccountID: ulid.Make(),
		})
		require.True(t, IsError(err, ErrAccountNotFound))

		_, err = store.IssueToken(ctx, IssueTokenParams{
			Prefix:    "svc",
			AccountID: ulid.Make(),
			Notify: NotifyTargets{
				Email: fn.Some("ops@example.com"),
			},
		})
		require.True(t, IsError(err, ErrAccountNotFound))

		_, err = store.IssueToken(ctx, IssueTokenParams{
			Prefix:    "not-valid",
			AccountID: ulid.Make(),
		})
		require.True(t, IsError(err, ErrInvalidInput))
	})
}

// TestAccountByTokenHash checks the read path and that it records no use.
func TestAccountByTokenHash(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T, backend sqltest.Backend,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		store, clk := newTestStore(t, backend, dbFactory)

		acct, err := store.CreateAccount(ctx, CreateAccountParams{
			WalletID: 1,
		})
		require.NoError(t, err)

		var hashes []string
		for range 2 {
			advance(clk, time.Second)
			token, err := store.IssueToken(ctx, IssueTokenParams{
				Prefix:    "svc",
				AccountID: acct.ID,
			})
			require.NoError(t, err)
			hashes = append(hashes, HashToken(token))
		}

		for _, hash := range hashes {
			got, err := store.AccountByTokenHash(ctx, hash)
			require.NoError(t, err)
			require.Equal(t, acct.ID, got.UnsafeFromSome().ID)
		}

		none, err := store.AccountByTokenHash(ctx, "unknown")
		require.NoError(t, err)
		require.True(t, none.IsNone())

		// Newest first.
		tokens, err := store.Tokens(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		require.Equal(t, hashes[1], tokens[0].Hash)
		require.Equal(t, hashes[0], tokens[1].Hash)

		var uses int
		err = store.DB().QueryRow(
			`SELECT COUNT(*) FROM base62_token_use`,
		).Scan(&uses)
		require.NoError(t, err)
		require.Zero(t, uses)
	})
}
