// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/oklog/ulid/v2"
)

// IssueToken creates a new token bound to an account and returns its
// plaintext exactly once. Set notify targets are recorded on the account in
// the same transaction. A hash collision with an existing token fails with
// ErrConstraint; the caller may simply issue again.
func (s *Store) IssueToken(ctx context.Context,
	params IssueTokenParams) (string, error) {

	token, err := s.tokens.Generate(params.Prefix)
	if err != nil {
		return "", err
	}
	hash := s.tokens.Hash(token)

	err = s.withTx(ctx, "issue token", func(tx *sql.Tx) error {
		var err error
		if params.Notify.IsEmpty() {
			err = requireAccount(ctx, tx, params.AccountID)
		} else {
			err = s.setNotifyTargets(
				ctx, tx, params.AccountID, params.Notify,
			)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO base62_token (
				hash_id, token, account_ulid, created_at
			) VALUES (
				$1, $2, $3, $4
			)`, hash, token, params.AccountID.String(), s.now())
		return err
	})
	if err != nil {
		return "", err
	}

	log.Infof("Issued token %s for account %v", hash, params.AccountID)
	log.Tracef("Notify targets for account %v: %v", params.AccountID,
		newLogClosure(func() string {
			return spew.Sdump(params.Notify)
		}))

	return token, nil
}

// Authenticate resolves a presented token to its account and records one use
// of the token in the same transaction. Tokens that fail the checksum are
// rejected without touching the database.
func (s *Store) Authenticate(ctx context.Context, token string) (*Account,
	error) {

	if !s.tokens.Verify(token) {
		log.Debugf("Rejected malformed token")
		return nil, ledgerError(ErrUnauthenticated, "invalid token", nil)
	}
	hash := s.tokens.Hash(token)

	var account Account
	err := s.withTx(ctx, "authenticate", func(tx *sql.Tx) error {
		var err error
		account, err = scanAccount(accountByTokenHash(ctx, tx, hash))
		if errors.Is(err, sql.ErrNoRows) {
			return ledgerError(ErrUnauthenticated, "invalid token",
				nil)
		}
		if err != nil {
			return err
		}

		return s.recordUse(ctx, tx, hash)
	})
	if err != nil {
		if IsError(err, ErrUnauthenticated) {
			log.Debugf("Rejected unknown or revoked token %s", hash)
		}
		return nil, err
	}

	log.Tracef("Token %s authenticated account %v", hash, account.ID)

	return &account, nil
}

// RevokeToken marks a token as revoked. The token row and its uses are kept.
// Revoking an already revoked token leaves the original revocation time in
// place.
func (s *Store) RevokeToken(ctx context.Context, hash string) error {
	return s.withTx(ctx, "revoke token", func(tx *sql.Tx) error {
		var revokedAt sql.NullTime
		err := tx.QueryRowContext(ctx, `
			SELECT revoked_at FROM base62_token
			WHERE hash_id = $1`, hash).Scan(&revokedAt)
		if errors.Is(err, sql.ErrNoRows) {
			str := fmt.Sprintf("token %s not found", hash)
			return ledgerError(ErrTokenNotFound, str, nil)
		}
		if err != nil {
			return err
		}
		if revokedAt.Valid {
			log.Debugf("Token %s already revoked", hash)
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE base62_token
			SET revoked_at = $1
			WHERE hash_id = $2 AND revoked_at IS NULL`,
			s.now(), hash)
		if err != nil {
			return err
		}

		log.Infof("Revoked token %s", hash)
		return nil
	})
}

// Tokens lists every token of an account, revoked ones included, newest
// first.
func (s *Store) Tokens(ctx context.Context, accountID ulid.ULID) ([]Token,
	error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT hash_id, token, account_ulid, created_at, revoked_at
		FROM base62_token
		WHERE account_ulid = $1
		ORDER BY created_at DESC, hash_id`, accountID.String())
	if err != nil {
		return nil, classifyDBError("list tokens", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []Token
	for rows.Next() {
		var (
			t         Token
			acct      string
			revokedAt sql.NullTime
		)
		err := rows.Scan(
			&t.Hash, &t.Token, &acct, &t.CreatedAt, &revokedAt,
		)
		if err != nil {
			return nil, classifyDBError("scan token", err)
		}
		t.AccountID, err = parseULID(acct)
		if err != nil {
			return nil, classifyDBError("scan token", err)
		}
		t.Hash = trimPad(t.Hash)
		t.CreatedAt = t.CreatedAt.UTC()
		t.RevokedAt = optTime(revokedAt)

		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError("list tokens", err)
	}

	return tokens, nil
}
