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

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
)

const paymentColumns = `
	ulid, account_ulid, "index", satoshis, paid_at, created_at, updated_at`

func scanPayment(row rowScanner) (Payment, error) {
	var (
		p               Payment
		id, acct        string
		index, satoshis int64
		paidAt          sql.NullTime
	)
	err := row.Scan(
		&id, &acct, &index, &satoshis, &paidAt, &p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Payment{}, err
	}

	if p.ID, err = parseULID(id); err != nil {
		return Payment{}, err
	}
	if p.AccountID, err = parseULID(acct); err != nil {
		return Payment{}, err
	}

	p.Index = uint32(index)
	p.Amount = btcutil.Amount(satoshis)
	p.PaidAt = optTime(paidAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	return p, nil
}

// CreatePayment records a pending payment for an account. The per-account
// index is computed by the insert itself and backed by a uniqueness
// constraint, so two racing inserts cannot both claim the same index; the
// loser fails with ErrConstraint.
func (s *Store) CreatePayment(ctx context.Context,
	params CreatePaymentParams) (*Payment, error) {

	if params.Amount <= 0 {
		str := fmt.Sprintf("payment amount %v is not positive",
			params.Amount)
		return nil, ledgerError(ErrInvalidInput, str, nil)
	}

	id := params.ID.UnwrapOrFunc(s.newULID)

	var payment *Payment
	err := s.withTx(ctx, "create payment", func(tx *sql.Tx) error {
		if err := requireAccount(ctx, tx, params.AccountID); err != nil {
			return err
		}

		now := s.now()
		var index int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO payment (
				ulid, account_ulid, "index", satoshis,
				created_at, updated_at
			) VALUES (
				$1, $2, (
					SELECT COALESCE(MAX("index"), 0) + 1
					FROM payment
					WHERE account_ulid = $2
				), $3, $4, $5
			)
			RETURNING "index"`,
			id.String(), params.AccountID.String(),
			int64(params.Amount), now, now,
		).Scan(&index)
		if err != nil {
			return err
		}

		payment = &Payment{
			ID:        id,
			AccountID: params.AccountID,
			Index:     uint32(index),
			Amount:    params.Amount,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Created payment %v #%d of %v for account %v", payment.ID,
		payment.Index, payment.Amount, payment.AccountID)

	return payment, nil
}

// MarkPaid sets the paid timestamp of a pending payment. A payment is paid
// exactly once; settling it again fails with ErrAlreadyPaid.
func (s *Store) MarkPaid(ctx context.Context, paymentID ulid.ULID,
	paidAt time.Time) error {

	return s.withTx(ctx, "mark paid", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payment
			SET paid_at = $1, updated_at = $2
			WHERE ulid = $3 AND paid_at IS NULL`,
			dbTime(paidAt), s.now(), paymentID.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			log.Infof("Payment %v paid at %v", paymentID,
				dbTime(paidAt))
			return nil
		}

		// Nothing was updated, tell a missing payment apart from a
		// settled one.
		var one int
		err = tx.QueryRowContext(ctx, `
			SELECT 1 FROM payment WHERE ulid = $1`,
			paymentID.String()).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			str := fmt.Sprintf("payment %v not found", paymentID)
			return ledgerError(ErrPaymentNotFound, str, nil)

		case err != nil:
			return err
		}

		str := fmt.Sprintf("payment %v already paid", paymentID)
		return ledgerError(ErrAlreadyPaid, str, nil)
	})
}

// MostRecentPaid returns the newest paid payment of an account by creation
// time, or None when the account has no paid payment. Payments created in
// the same instant are ordered by id.
func (s *Store) MostRecentPaid(ctx context.Context, accountID ulid.ULID) (
	fn.Option[Payment], error) {

	row := s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment
		WHERE account_ulid = $1 AND paid_at IS NOT NULL
		ORDER BY created_at DESC, ulid DESC
		LIMIT 1`, accountID.String())

	p, err := scanPayment(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fn.None[Payment](), nil

	case err != nil:
		str := fmt.Sprintf("fetch last payment of account %v",
			accountID)
		return fn.None[Payment](), classifyDBError(str, err)
	}

	return fn.Some(p), nil
}

// Payments lists every payment of an account in index order.
func (s *Store) Payments(ctx context.Context, accountID ulid.ULID) (
	[]Payment, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment
		WHERE account_ulid = $1
		ORDER BY "index"`, accountID.String())
	if err != nil {
		return nil, classifyDBError("list payments", err)
	}
	defer func() { _ = rows.Close() }()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, classifyDBError("scan payment", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError("list payments", err)
	}

	return payments, nil
}
