// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
)

// SequenceAllocator hands out per-wallet derivation indices.
type SequenceAllocator interface {
	// RegisterWallet records the wallet if it is not known yet. Registering
	// an existing wallet is a no-op.
	RegisterWallet(ctx context.Context, walletID int64) error

	// AllocateIndex registers the wallet if needed and returns the next
	// derivation index for it. Indices start at 1 and are unique and
	// strictly increasing per wallet, including across processes sharing
	// the same database.
	AllocateIndex(ctx context.Context, walletID int64) (uint32, error)

	// Wallet returns the registered wallet with the given id, or None.
	Wallet(ctx context.Context, walletID int64) (fn.Option[Wallet], error)
}

// AccountStore defines the database actions for managing accounts.
type AccountStore interface {
	// CreateAccount allocates an index for the wallet and inserts a new
	// account with an empty derived key. It returns the fully populated
	// record.
	CreateAccount(ctx context.Context, params CreateAccountParams) (
		*Account, error)

	// AttachDerivedKey sets the derived extended public key of an
	// account. Callers are expected to call it once per account; a second
	// call overwrites the first.
	AttachDerivedKey(ctx context.Context, accountID ulid.ULID,
		xpub string) error

	// Account returns the account with the given id, or None if it does
	// not exist.
	Account(ctx context.Context, accountID ulid.ULID) (
		fn.Option[Account], error)

	// AccountByTokenHash returns the account bound to the newest token
	// with the given hash, or None. It does not record a use.
	AccountByTokenHash(ctx context.Context, hash string) (
		fn.Option[Account], error)

	// AccountsDue returns the accounts with a quota whose stale time has
	// been reached at now, oldest stale time first.
	AccountsDue(ctx context.Context, now time.Time) ([]Account, error)
}

// TokenAuthority issues and authenticates capability tokens.
type TokenAuthority interface {
	// IssueToken creates a new token bound to an account and returns its
	// plaintext. The plaintext is returned exactly once.
	IssueToken(ctx context.Context, params IssueTokenParams) (string, error)

	// Authenticate resolves a presented token to its account and records
	// one use. Unknown and revoked tokens yield ErrUnauthenticated.
	// Revoked bindings are skipped, so unlike a plain newest-binding
	// lookup a revoked token never resolves.
	Authenticate(ctx context.Context, token string) (*Account, error)

	// RevokeToken marks a token as revoked. Revoking a revoked token is a
	// no-op.
	RevokeToken(ctx context.Context, hash string) error

	// Tokens lists the tokens of an account, newest first.
	Tokens(ctx context.Context, accountID ulid.ULID) ([]Token, error)
}

// UsageMeter records and counts authenticated uses.
type UsageMeter interface {
	// RecordUse appends one use of the token with the given hash.
	RecordUse(ctx context.Context, hash string) error

	// CountUses returns the number of uses recorded against the revoked
	// tokens of an account. Uses of live tokens are not counted.
	CountUses(ctx context.Context, accountID ulid.ULID) (int64, error)
}

// QuotaManager persists quota state. It never enforces it.
type QuotaManager interface {
	// Recharge overwrites the quota of an account and returns the stored
	// value.
	Recharge(ctx context.Context, accountID ulid.ULID, quota Quota) (
		Quota, error)
}

// PaymentLedger records payments credited to accounts.
type PaymentLedger interface {
	// CreatePayment records a pending payment and assigns it the next
	// per-account index.
	CreatePayment(ctx context.Context, params CreatePaymentParams) (
		*Payment, error)

	// MarkPaid sets the paid timestamp of a pending payment.
	MarkPaid(ctx context.Context, paymentID ulid.ULID,
		paidAt time.Time) error

	// MostRecentPaid returns the newest payment of the account that has
	// been paid, or None.
	MostRecentPaid(ctx context.Context, accountID ulid.ULID) (
		fn.Option[Payment], error)

	// Payments lists every payment of an account in index order.
	Payments(ctx context.Context, accountID ulid.ULID) ([]Payment, error)
}

// Ledger is the union of every ledger component.
type Ledger interface {
	SequenceAllocator
	AccountStore
	TokenAuthority
	UsageMeter
	QuotaManager
	PaymentLedger

	// Migrate applies any pending schema migrations.
	Migrate(ctx context.Context) error

	// Close releases the underlying database handle.
	Close() error
}

// A compile-time assertion to ensure Store implements Ledger.
var _ Ledger = (*Store)(nil)
