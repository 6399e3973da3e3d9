// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// RecordUse appends one use of the token with the given hash. Uses are never
// updated or deleted. A hash that matches no token fails with ErrConstraint
// once the transaction commits.
func (s *Store) RecordUse(ctx context.Context, hash string) error {
	return s.withTx(ctx, "record token use", func(tx *sql.Tx) error {
		return s.recordUse(ctx, tx, hash)
	})
}

func (s *Store) recordUse(ctx context.Context, tx *sql.Tx,
	hash string) error {

	_, err := tx.ExecContext(ctx, `
		INSERT INTO base62_token_use (base62_token_hash_id, created_at)
		VALUES ($1, $2)`, hash, s.now())
	return err
}

// CountUses returns the number of uses recorded against the revoked tokens
// of an account. Uses of live tokens are left out until the token is
// revoked, so the count covers closed token lifetimes only. An account with
// no revoked tokens, or no account at all, counts zero.
func (s *Store) CountUses(ctx context.Context, accountID ulid.ULID) (int64,
	error) {

	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM base62_token_use
		WHERE base62_token_hash_id IN (
			SELECT hash_id
			FROM base62_token
			WHERE account_ulid = $1 AND revoked_at IS NOT NULL
		)`, accountID.String()).Scan(&count)
	if err != nil {
		str := fmt.Sprintf("count uses of account %v", accountID)
		return 0, classifyDBError(str, err)
	}

	return count, nil
}
