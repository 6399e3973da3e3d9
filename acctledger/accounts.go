// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
)

// accountColumns is the column list scanAccount expects.
const accountColumns = `
	account.ulid, account.wallet_id, account."index", account.xpub,
	account.email, account.phone, account.webhook,
	account.soft_quota, account.hard_quota,
	account.stale_at, account.expires_at,
	account.created_at, account.updated_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccount reads one account selected with accountColumns.
func scanAccount(row rowScanner) (Account, error) {
	var (
		a                    Account
		id                   string
		index                int64
		email, phone, hook   sql.NullString
		softQuota, hardQuota sql.NullInt64
		staleAt, expiresAt   sql.NullTime
	)
	err := row.Scan(
		&id, &a.WalletID, &index, &a.XPub,
		&email, &phone, &hook,
		&softQuota, &hardQuota,
		&staleAt, &expiresAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	a.ID, err = parseULID(id)
	if err != nil {
		return Account{}, err
	}

	a.Index = uint32(index)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.Notify = NotifyTargets{
		Email:   optString(email),
		Phone:   optString(phone),
		Webhook: optString(hook),
	}

	// Recharge always writes the four quota columns together.
	if softQuota.Valid && hardQuota.Valid && staleAt.Valid &&
		expiresAt.Valid {

		a.Quota = fn.Some(Quota{
			SoftQuota: softQuota.Int64,
			HardQuota: hardQuota.Int64,
			StaleAt:   staleAt.Time.UTC(),
			ExpiresAt: expiresAt.Time.UTC(),
		})
	}

	return a, nil
}

// CreateAccount allocates the next index of the wallet and inserts a new
// account with an empty derived key. The wallet is registered if unknown.
// Index allocation and insert share one transaction, so a failed insert
// does not consume an index.
func (s *Store) CreateAccount(ctx context.Context,
	params CreateAccountParams) (*Account, error) {

	id := params.ID.UnwrapOrFunc(s.newULID)

	var account *Account
	err := s.withTx(ctx, "create account", func(tx *sql.Tx) error {
		index, err := s.allocateIndex(ctx, tx, params.WalletID)
		if err != nil {
			return err
		}

		now := s.now()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO account (
				ulid, wallet_id, "index", xpub,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, '', $4, $5
			)`, id.String(), params.WalletID, index, now, now)
		if err != nil {
			return err
		}

		account = &Account{
			ID:        id,
			WalletID:  params.WalletID,
			Index:     index,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Created account %v", account)

	return account, nil
}

// AttachDerivedKey sets the derived extended public key of an account. The
// key is stored as given; it is not parsed or validated.
func (s *Store) AttachDerivedKey(ctx context.Context, accountID ulid.ULID,
	xpub string) error {

	if xpub == "" {
		return ledgerError(ErrInvalidInput, "empty derived key", nil)
	}

	return s.withTx(ctx, "attach derived key", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE account
			SET xpub = $1, updated_at = $2
			WHERE ulid = $3`, xpub, s.now(), accountID.String())
		if err != nil {
			return err
		}
		if err := expectRow(res, ErrAccountNotFound,
			"account %v not found", accountID); err != nil {

			return err
		}

		log.Infof("Attached derived key to account %v", accountID)
		return nil
	})
}

// Account returns the account with the given id, or None.
func (s *Store) Account(ctx context.Context, accountID ulid.ULID) (
	fn.Option[Account], error) {

	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM account
		WHERE ulid = $1`, accountID.String())

	return optAccount(row, fmt.Sprintf("fetch account %v", accountID))
}

// AccountByTokenHash returns the account bound to the newest live token with
// the given hash, or None. Revoked tokens never match. No use is recorded.
func (s *Store) AccountByTokenHash(ctx context.Context, hash string) (
	fn.Option[Account], error) {

	return optAccount(accountByTokenHash(ctx, s.db, hash),
		"fetch account by token")
}

// queryer is implemented by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string,
		args ...any) *sql.Row
}

// accountByTokenHash looks a live token up by hash. Should two bindings
// ever share a hash, the newest one wins.
func accountByTokenHash(ctx context.Context, q queryer,
	hash string) *sql.Row {

	return q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM base62_token
		JOIN account ON base62_token.account_ulid = account.ulid
		WHERE base62_token.hash_id = $1
			AND base62_token.revoked_at IS NULL
		ORDER BY base62_token.created_at DESC
		LIMIT 1`, hash)
}

// optAccount scans a single account row, mapping no rows to None.
func optAccount(row *sql.Row, op string) (fn.Option[Account], error) {
	a, err := scanAccount(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fn.None[Account](), nil

	case err != nil:
		return fn.None[Account](), classifyDBError(op, err)
	}

	return fn.Some(a), nil
}

// AccountsDue returns the accounts whose stale time has been reached at now,
// oldest stale time first. Accounts that were never recharged are skipped.
func (s *Store) AccountsDue(ctx context.Context, now time.Time) ([]Account,
	error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM account
		WHERE stale_at IS NOT NULL AND stale_at <= $1
		ORDER BY stale_at, ulid`, dbTime(now))
	if err != nil {
		return nil, classifyDBError("list due accounts", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, classifyDBError("scan due account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError("list due accounts", err)
	}

	return accounts, nil
}

// setNotifyTargets writes the set notify targets onto an account, keeping
// the current value of unset ones.
func (s *Store) setNotifyTargets(ctx context.Context, tx *sql.Tx,
	accountID ulid.ULID, notify NotifyTargets) error {

	res, err := tx.ExecContext(ctx, `
		UPDATE account
		SET email = COALESCE($1, email),
			phone = COALESCE($2, phone),
			webhook = COALESCE($3, webhook),
			updated_at = $4
		WHERE ulid = $5`,
		nullString(notify.Email), nullString(notify.Phone),
		nullString(notify.Webhook), s.now(), accountID.String(),
	)
	if err != nil {
		return err
	}

	return expectRow(res, ErrAccountNotFound, "account %v not found",
		accountID)
}

// requireAccount fails with ErrAccountNotFound unless the account exists.
func requireAccount(ctx context.Context, q queryer,
	accountID ulid.ULID) error {

	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM account WHERE ulid = $1`,
		accountID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		str := fmt.Sprintf("account %v not found", accountID)
		return ledgerError(ErrAccountNotFound, str, nil)
	}
	return err
}

// expectRow returns a LedgerError with the given code when res touched no
// rows.
func expectRow(res sql.Result, code ErrorCode, format string,
	args ...any) error {

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledgerError(code, fmt.Sprintf(format, args...), nil)
	}
	return nil
}
