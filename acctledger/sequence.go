// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// RegisterWallet records the wallet if it is not known yet. Registering an
// existing wallet is a no-op.
func (s *Store) RegisterWallet(ctx context.Context, walletID int64) error {
	return s.withTx(ctx, "register wallet", func(tx *sql.Tx) error {
		return s.registerWallet(ctx, tx, walletID)
	})
}

func (s *Store) registerWallet(ctx context.Context, tx *sql.Tx,
	walletID int64) error {

	now := s.now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet (id, created_at, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, walletID, now, now)
	if err != nil {
		return err
	}

	// A conflict means another caller registered the wallet first, which
	// is exactly what we wanted.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.Debugf("Wallet %d already registered", walletID)
	} else if err == nil {
		log.Infof("Registered wallet %d", walletID)
	}

	return nil
}

// AllocateIndex registers the wallet if needed and returns the next
// derivation index for it.
func (s *Store) AllocateIndex(ctx context.Context, walletID int64) (uint32,
	error) {

	var index uint32
	err := s.withTx(ctx, "allocate index", func(tx *sql.Tx) error {
		var err error
		index, err = s.allocateIndex(ctx, tx, walletID)
		return err
	})
	return index, err
}

// allocateIndex bumps the per-wallet counter in place. The UPDATE takes the
// wallet row lock, so concurrent callers queue behind each other and each
// reads back a distinct value. The counter is never read and written in two
// steps.
func (s *Store) allocateIndex(ctx context.Context, tx *sql.Tx,
	walletID int64) (uint32, error) {

	if err := s.registerWallet(ctx, tx, walletID); err != nil {
		return 0, err
	}

	var index int64
	err := tx.QueryRowContext(ctx, `
		UPDATE wallet
		SET account_seq = account_seq + 1, updated_at = $2
		WHERE id = $1
		RETURNING account_seq`, walletID, s.now()).Scan(&index)
	if err != nil {
		return 0, err
	}

	log.Tracef("Allocated index %d for wallet %d", index, walletID)

	return uint32(index), nil
}

// Wallet returns the wallet with the given id, or None if it has not been
// registered.
func (s *Store) Wallet(ctx context.Context, walletID int64) (
	fn.Option[Wallet], error) {

	var (
		w          Wallet
		secretType sql.NullString
		seq        int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, secret_type, account_seq, created_at, updated_at
		FROM wallet
		WHERE id = $1`, walletID).Scan(
		&w.ID, &secretType, &seq, &w.CreatedAt, &w.UpdatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fn.None[Wallet](), nil

	case err != nil:
		str := fmt.Sprintf("fetch wallet %d", walletID)
		return fn.None[Wallet](), classifyDBError(str, err)
	}

	w.AccountSeq = uint32(seq)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	optString(secretType).WhenSome(func(t string) {
		w.SecretType = fn.Some(SecretType(t))
	})

	return fn.Some(w), nil
}
