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

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
)

// Config holds the dependencies of a Store.
type Config struct {
	// DB is an open handle to a database of the given Dialect.
	DB *sql.DB

	// Dialect is the SQL backend behind DB.
	Dialect Dialect

	// Clock is the time source for every timestamp the ledger writes. The
	// wall clock is used when it is nil.
	Clock clock.Clock

	// Tokens overrides the token parameters. DefaultTokenConfig is used
	// when it is None.
	Tokens fn.Option[TokenConfig]
}

// Store is the SQL backed account ledger. It is safe for concurrent use by
// multiple goroutines and by multiple processes sharing one database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	clock   clock.Clock
	tokens  TokenConfig
}

// NewStore wraps an open database handle. It does not apply migrations; call
// Migrate for that.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, ledgerError(ErrInvalidInput, "nil database handle",
			nil)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	return &Store{
		db:      cfg.DB,
		dialect: cfg.Dialect,
		clock:   clk,
		tokens:  cfg.Tokens.UnwrapOr(DefaultTokenConfig()),
	}, nil
}

// Open opens a database of the given dialect, checks that it is reachable
// and returns a Store over it.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, classifyDBError("open database", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classifyDBError("ping database", err)
	}

	log.Infof("Opened %v ledger database", dialect)

	return NewStore(Config{DB: db, Dialect: dialect})
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL backend of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// TokenConfig returns the token parameters used by the store.
func (s *Store) TokenConfig() TokenConfig {
	return s.tokens
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current time as stored in the database. Both backends keep
// microsecond precision, so truncating up front makes values read back
// compare equal to the ones written.
func (s *Store) now() time.Time {
	return dbTime(s.clock.Now())
}

// dbTime normalizes a timestamp to the form it has once stored.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// withTx runs f inside a single transaction, committing if f returns nil and
// rolling back otherwise.
func (s *Store) withTx(ctx context.Context, op string,
	f func(tx *sql.Tx) error) (err error) {

	// The transaction runs on a pinned connection so that a failed commit
	// can be cleaned up on the same connection below.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return classifyDBError(op+": conn", err)
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return classifyDBError(op+": begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil &&
				!errors.Is(rbErr, sql.ErrTxDone) {

				log.Warnf("%s: rollback failed: %v", op, rbErr)
			}
		}
	}()

	if err = f(tx); err != nil {
		return classifyDBError(op, err)
	}

	if err = tx.Commit(); err != nil {
		// SQLite leaves the transaction open when a deferred foreign
		// key fails at commit, while database/sql already considers it
		// finished. End it before the connection returns to the pool.
		if s.dialect == DialectSQLite {
			_, _ = conn.ExecContext(
				context.Background(), "ROLLBACK",
			)
		}
		return classifyDBError(op+": commit", err)
	}

	return nil
}

// newULID returns a fresh ULID stamped with the store clock.
func (s *Store) newULID() ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(s.clock.Now()), ulid.DefaultEntropy())
}

// parseULID parses an identifier read back from the database. The fixed
// width columns may pad the value on some backends.
func parseULID(s string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(trimPad(s))
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("invalid stored ulid %q: %w", s,
			err)
	}
	return id, nil
}

func trimPad(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// nullString maps an optional string onto a nullable column value.
func nullString(o fn.Option[string]) sql.NullString {
	var n sql.NullString
	o.WhenSome(func(s string) {
		n = sql.NullString{String: s, Valid: true}
	})
	return n
}

// optString maps a nullable column value onto an optional string.
func optString(n sql.NullString) fn.Option[string] {
	if !n.Valid {
		return fn.None[string]()
	}
	return fn.Some(n.String)
}

// optTime maps a nullable timestamp onto an optional UTC time.
func optTime(n sql.NullTime) fn.Option[time.Time] {
	if !n.Valid {
		return fn.None[time.Time]()
	}
	return fn.Some(n.Time.UTC())
}
