// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Data Types & Method Parameters
// ============================================================================

// SecretType tags the kind of secret a wallet may optionally hold.
type SecretType string

const (
	// SecretPhrase is a mnemonic recovery phrase.
	SecretPhrase SecretType = "phrase"

	// SecretSeed is a raw HD seed.
	SecretSeed SecretType = "seed"

	// SecretXPrv is a serialized extended private key.
	SecretXPrv SecretType = "xprv"
)

// Wallet is the weak parent of a set of accounts. Wallets are registered on
// first use and never deleted by the ledger.
type Wallet struct {
	// ID is the caller assigned 64-bit wallet identifier.
	ID int64

	// SecretType is set when the wallet carries an encrypted secret. The
	// ledger never writes the secret itself.
	SecretType fn.Option[SecretType]

	// AccountSeq is the last derivation index handed out for this
	// wallet. Zero means no account has been created yet.
	AccountSeq uint32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotifyTargets holds the optional contact points of an account. Unset
// targets are left untouched when the targets are written.
type NotifyTargets struct {
	Email   fn.Option[string]
	Phone   fn.Option[string]
	Webhook fn.Option[string]
}

// IsEmpty returns true if no target is set.
func (n NotifyTargets) IsEmpty() bool {
	return n.Email.IsNone() && n.Phone.IsNone() && n.Webhook.IsNone()
}

// Quota is the usage ceiling and service window of an account.
type Quota struct {
	// SoftQuota is the use count past which the account should be
	// warned.
	SoftQuota int64

	// HardQuota is the use count past which the account should be
	// refused service. By convention it is larger than SoftQuota, but
	// this is not checked.
	HardQuota int64

	// StaleAt is the moment the account becomes eligible for reduced
	// service unless it is recharged.
	StaleAt time.Time

	// ExpiresAt is the moment the account becomes eligible for
	// suspension unless it is recharged.
	ExpiresAt time.Time
}

// QuotaStatus is the read-only classification of a quota at a point in time.
// The ledger never acts on it.
type QuotaStatus struct {
	Stale    bool
	Expired  bool
	OverSoft bool
	OverHard bool
}

// Healthy returns true if none of the thresholds has been crossed.
func (s QuotaStatus) Healthy() bool {
	return !s.Stale && !s.Expired && !s.OverSoft && !s.OverHard
}

// String returns a compact description such as "stale,over-soft" or "ok".
func (s QuotaStatus) String() string {
	var parts []string
	if s.Stale {
		parts = append(parts, "stale")
	}
	if s.Expired {
		parts = append(parts, "expired")
	}
	if s.OverSoft {
		parts = append(parts, "over-soft")
	}
	if s.OverHard {
		parts = append(parts, "over-hard")
	}
	if len(parts) == 0 {
		return "ok"
	}
	return strings.Join(parts, ",")
}

// Evaluate classifies the quota against the current time and the number of
// uses counted so far. A threshold is crossed once now reaches it.
func (q Quota) Evaluate(now time.Time, used int64) QuotaStatus {
	return QuotaStatus{
		Stale:    !now.Before(q.StaleAt),
		Expired:  !now.Before(q.ExpiresAt),
		OverSoft: used >= q.SoftQuota,
		OverHard: used >= q.HardQuota,
	}
}

// Account is a billing unit bound to one wallet and one derived extended
// public key.
type Account struct {
	// ID is the time ordered unique identifier of the account.
	ID ulid.ULID

	// WalletID is the owning wallet.
	WalletID int64

	// Index is the derivation index allocated to this account. Indices
	// are unique and strictly increasing per wallet.
	Index uint32

	// XPub is the derived extended public key. It is empty until a key is
	// attached.
	XPub string

	// Notify holds the optional contact points of the account.
	Notify NotifyTargets

	// Quota is None until the account has been recharged at least once.
	Quota fn.Option[Quota]

	CreatedAt time.Time
	UpdatedAt time.Time
}

// String returns a short human readable identifier for the account.
func (a *Account) String() string {
	return fmt.Sprintf("%v (wallet=%d, index=%d)", a.ID, a.WalletID, a.Index)
}

// Token is a persisted capability token.
type Token struct {
	// Hash is the truncated digest of Token and the lookup key.
	Hash string

	// Token is the full bearer secret.
	Token string

	// AccountID is the account the token grants access to.
	AccountID ulid.ULID

	CreatedAt time.Time

	// RevokedAt is set once the token has been revoked.
	RevokedAt fn.Option[time.Time]
}

// TokenUse records one authenticated access.
type TokenUse struct {
	Hash      string
	CreatedAt time.Time
}

// Payment is a payment credited to an account.
type Payment struct {
	// ID is the time ordered unique identifier of the payment.
	ID ulid.ULID

	// AccountID is the account being credited.
	AccountID ulid.ULID

	// Index is the per-account sequence number of the payment, starting
	// at 1.
	Index uint32

	// Amount is the value of the payment in satoshis.
	Amount btcutil.Amount

	// PaidAt is None while the payment is pending.
	PaidAt fn.Option[time.Time]

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateAccountParams holds the arguments of CreateAccount.
type CreateAccountParams struct {
	// WalletID is the owning wallet. It is registered if unknown.
	WalletID int64

	// ID is the identifier to use for the new account. A fresh ULID is
	// generated when it is None.
	ID fn.Option[ulid.ULID]
}

// IssueTokenParams holds the arguments of IssueToken.
type IssueTokenParams struct {
	// Prefix is a short human readable tag, such as a service or
	// environment name, placed in front of the random part of the token.
	Prefix string

	// AccountID is the account the token will be bound to.
	AccountID ulid.ULID

	// Notify holds contact points to record on the account alongside the
	// token. Unset targets keep their current value.
	Notify NotifyTargets
}

// CreatePaymentParams holds the arguments of CreatePayment.
type CreatePaymentParams struct {
	// ID is the identifier to use for the new payment. A fresh ULID is
	// generated when it is None.
	ID fn.Option[ulid.ULID]

	// AccountID is the account being credited.
	AccountID ulid.ULID

	// Amount is the value of the payment in satoshis. It must be
	// positive.
	Amount btcutil.Amount
}
