// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/xpubledger/acctledger"
	"github.com/btcsuite/xpubledger/internal/cfgutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
)

const defaultTokenPrefix = "xpl_"

// command describes one ledgerctl subcommand.
type command struct {
	name  string
	short string
	long  string
	data  interface{}
}

func commands(a *app) []command {
	return []command{
		{
			name:  "create-account",
			short: "Allocate a new account under a wallet",
			long: "Registers the wallet if needed, allocates the " +
				"next derivation index and creates the account.",
			data: &createAccountCmd{app: a},
		},
		{
			name:  "attach-xpub",
			short: "Attach a derived extended public key",
			data:  &attachXPubCmd{app: a},
		},
		{
			name:  "issue-token",
			short: "Issue a capability token for an account",
			long: "Prints the token once.  Later commands look it " +
				"up by its hash.",
			data: &issueTokenCmd{app: a, Prefix: defaultTokenPrefix},
		},
		{
			name:  "authenticate",
			short: "Resolve a token to its account and record a use",
			data:  &authenticateCmd{app: a},
		},
		{
			name:  "revoke-token",
			short: "Revoke a token by value or hash",
			data:  &revokeTokenCmd{app: a},
		},
		{
			name:  "usage",
			short: "Show the counted uses and quota status of an account",
			data:  &usageCmd{app: a},
		},
		{
			name:  "recharge",
			short: "Overwrite the quota of an account",
			data:  &rechargeCmd{app: a},
		},
		{
			name:  "create-payment",
			short: "Record a pending payment for an account",
			data:  &createPaymentCmd{app: a},
		},
		{
			name:  "mark-paid",
			short: "Settle a pending payment",
			data:  &markPaidCmd{app: a},
		},
		{
			name:  "last-payment",
			short: "Show the most recent paid payment of an account",
			data:  &lastPaymentCmd{app: a},
		},
		{
			name:  "migrate",
			short: "Apply pending schema migrations",
			data:  &migrateCmd{app: a},
		},
	}
}

// ulidFlag is a go-flags value holding a ULID.
type ulidFlag struct {
	ulid.ULID
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (u *ulidFlag) MarshalFlag() (string, error) {
	if u.ULID == (ulid.ULID{}) {
		return "", nil
	}
	return u.ULID.String(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (u *ulidFlag) UnmarshalFlag(value string) error {
	id, err := ulid.ParseStrict(value)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", value, err)
	}
	u.ULID = id
	return nil
}

// optString maps an empty flag value to None.
func optString(s string) fn.Option[string] {
	if s == "" {
		return fn.None[string]()
	}
	return fn.Some(s)
}

type createAccountCmd struct {
	app *app

	Wallet int64    `long:"wallet" required:"true" description:"Owning wallet id"`
	ID     ulidFlag `long:"id" description:"Use this account id instead of a new one"`
}

func (c *createAccountCmd) Execute([]string) error {
	params := acctledger.CreateAccountParams{WalletID: c.Wallet}
	if c.ID.ULID != (ulid.ULID{}) {
		params.ID = fn.Some(c.ID.ULID)
	}

	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		acct, err := store.CreateAccount(ctx, params)
		if err != nil {
			return errContext(err, "create account")
		}
		c.app.printf("%v %d\n", acct.ID, acct.Index)
		return nil
	})
}

type attachXPubCmd struct {
	app *app

	Account ulidFlag `long:"account" required:"true" description:"Account id"`
	XPub    string   `long:"xpub" required:"true" description:"Extended public key derived at the account index"`
}

func (c *attachXPubCmd) Execute([]string) error {
	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		err := store.AttachDerivedKey(ctx, c.Account.ULID, c.XPub)
		return errContext(err, "attach xpub")
	})
}

type issueTokenCmd struct {
	app *app

	Account ulidFlag `long:"account" required:"true" description:"Account id"`
	Prefix  string   `long:"prefix" description:"Token prefix"`
	Email   string   `long:"email" description:"Set the notification email of the account"`
	Phone   string   `long:"phone" description:"Set the notification phone of the account"`
	Webhook string   `long:"webhook" description:"Set the notification webhook of the account"`
}

func (c *issueTokenCmd) Execute([]string) error {
	if err := acctledger.DefaultTokenConfig().CheckPrefix(c.Prefix); err != nil {
		return err
	}

	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		token, err := store.IssueToken(ctx, acctledger.IssueTokenParams{
			Prefix:    c.Prefix,
			AccountID: c.Account.ULID,
			Notify: acctledger.NotifyTargets{
				Email:   optString(c.Email),
				Phone:   optString(c.Phone),
				Webhook: optString(c.Webhook),
			},
		})
		if err != nil {
			return errContext(err, "issue token")
		}
		c.app.printf("%s\n", token)
		return nil
	})
}

type authenticateCmd struct {
	app *app

	Args struct {
		Token string `positional-arg-name:"token" required:"true"`
	} `positional-args:"yes"`
}

func (c *authenticateCmd) Execute([]string) error {
	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		acct, err := store.Authenticate(ctx, c.Args.Token)
		if err != nil {
			return errContext(err, "authenticate")
		}
		c.app.printf("%v %d %d\n", acct.ID, acct.WalletID, acct.Index)
		return nil
	})
}

type revokeTokenCmd struct {
	app *app

	Token string `long:"token" description:"Token to revoke"`
	Hash  string `long:"hash" description:"Hash of the token to revoke"`
}

func (c *revokeTokenCmd) Execute([]string) error {
	hash := c.Hash
	switch {
	case c.Token != "" && c.Hash != "":
		return errors.New("--token and --hash are mutually exclusive")
	case c.Token != "":
		hash = acctledger.HashToken(c.Token)
	case c.Hash == "":
		return errors.New("one of --token or --hash is required")
	}

	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		return errContext(store.RevokeToken(ctx, hash), "revoke token")
	})
}

type usageCmd struct {
	app *app

	Account ulidFlag `long:"account" required:"true" description:"Account id"`
}

func (c *usageCmd) Execute([]string) error {
	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		acct, err := store.Account(ctx, c.Account.ULID)
		if err != nil {
			return errContext(err, "fetch account")
		}
		if acct.IsNone() {
			return fmt.Errorf("account %v not found", c.Account.ULID)
		}

		used, err := store.CountUses(ctx, c.Account.ULID)
		if err != nil {
			return errContext(err, "count uses")
		}

		status := "unmetered"
		acct.UnsafeFromSome().Quota.WhenSome(func(q acctledger.Quota) {
			status = q.Evaluate(c.app.clock.Now(), used).String()
		})
		c.app.printf("%d %s\n", used, status)
		return nil
	})
}

type rechargeCmd struct {
	app *app

	Account   ulidFlag      `long:"account" required:"true" description:"Account id"`
	Soft      int64         `long:"soft" required:"true" description:"Soft quota in uses"`
	Hard      int64         `long:"hard" required:"true" description:"Hard quota in uses"`
	StaleIn   time.Duration `long:"stalein" required:"true" description:"Time from now until the account turns stale"`
	ExpiresIn time.Duration `long:"expiresin" required:"true" description:"Time from now until the account expires"`
}

func (c *rechargeCmd) Execute([]string) error {
	now := c.app.clock.Now()
	quota := acctledger.Quota{
		SoftQuota: c.Soft,
		HardQuota: c.Hard,
		StaleAt:   now.Add(c.StaleIn),
		ExpiresAt: now.Add(c.ExpiresIn),
	}

	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		q, err := store.Recharge(ctx, c.Account.ULID, quota)
		if err != nil {
			return errContext(err, "recharge")
		}
		c.app.printf("%s %s\n", q.StaleAt.Format(time.RFC3339),
			q.ExpiresAt.Format(time.RFC3339))
		return nil
	})
}

type createPaymentCmd struct {
	app *app

	Account ulidFlag           `long:"account" required:"true" description:"Account id"`
	Amount  cfgutil.AmountFlag `long:"amount" required:"true" description:"Payment amount, e.g. 0.001 or 100000 sat"`
}

func (c *createPaymentCmd) Execute([]string) error {
	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		p, err := store.CreatePayment(ctx, acctledger.CreatePaymentParams{
			AccountID: c.Account.ULID,
			Amount:    c.Amount.Amount,
		})
		if err != nil {
			return errContext(err, "create payment")
		}
		c.app.printf("%v %d\n", p.ID, p.Index)
		return nil
	})
}

type markPaidCmd struct {
	app *app

	Payment ulidFlag `long:"payment" required:"true" description:"Payment id"`
	PaidAt  string   `long:"paidat" description:"RFC3339 settlement time (default now)"`
}

func (c *markPaidCmd) Execute([]string) error {
	paidAt := c.app.clock.Now()
	if c.PaidAt != "" {
		t, err := time.Parse(time.RFC3339, c.PaidAt)
		if err != nil {
			return errContext(err, "--paidat")
		}
		paidAt = t
	}

	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		err := store.MarkPaid(ctx, c.Payment.ULID, paidAt)
		return errContext(err, "mark paid")
	})
}

type lastPaymentCmd struct {
	app *app

	Account ulidFlag `long:"account" required:"true" description:"Account id"`
}

func (c *lastPaymentCmd) Execute([]string) error {
	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		last, err := store.MostRecentPaid(ctx, c.Account.ULID)
		if err != nil {
			return errContext(err, "last payment")
		}
		if last.IsNone() {
			c.app.printf("none\n")
			return nil
		}

		p := last.UnsafeFromSome()
		c.app.printf("%v %d %d %s\n", p.ID, p.Index, int64(p.Amount),
			p.PaidAt.UnsafeFromSome().Format(time.RFC3339))
		return nil
	})
}

type migrateCmd struct {
	app *app

	Rollback bool `long:"rollback" description:"Revert the latest migration instead"`
	Force    bool `short:"f" long:"force" description:"Roll back without prompt"`
}

func yes(s string) bool {
	switch s {
	case "y", "Y", "yes", "Yes":
		return true
	default:
		return false
	}
}

func (c *migrateCmd) Execute([]string) error {
	if c.Rollback && !c.Force {
		c.app.printf("Rolling back drops ledger tables and their " +
			"data.  Continue? [y/N] ")
		scanner := bufio.NewScanner(c.app.in)
		if !scanner.Scan() || !yes(strings.TrimSpace(scanner.Text())) {
			return errors.New("rollback aborted")
		}
	}

	return c.app.withStore(func(ctx context.Context,
		store *acctledger.Store) error {

		var err error
		if c.Rollback {
			err = store.Rollback(ctx)
		} else {
			err = store.Migrate(ctx)
		}
		if err != nil {
			return errContext(err, "migrate")
		}

		version, err := store.SchemaVersion(ctx)
		if err != nil {
			return errContext(err, "schema version")
		}
		c.app.printf("schema version %d\n", version)
		return nil
	})
}
