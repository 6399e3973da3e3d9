// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect selects the SQL backend a Store talks to.
type Dialect uint8

const (
	// DialectPostgres is a Postgres server reached through pgx.
	DialectPostgres Dialect = iota

	// DialectSQLite is a local SQLite file opened with modernc.org/sqlite.
	DialectSQLite
)

// String returns the canonical name of the dialect.
func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("Dialect(%d)", uint8(d))
	}
}

// DriverName returns the database/sql driver name registered for the
// dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	default:
		return "sqlite"
	}
}

// ParseDialect maps a dialect name to its Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	str := fmt.Sprintf("unknown database type %q", name)
	return 0, ledgerError(ErrInvalidInput, str, nil)
}

// classifyDBError wraps a storage error into a LedgerError with the code that
// best describes it.  Errors that already are LedgerErrors are returned as is.
func classifyDBError(op string, err error) error {
	if err == nil {
		return nil
	}

	var lerr LedgerError
	if errors.As(err, &lerr) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, sql.ErrTxDone):

		return ledgerError(ErrTransient, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return ledgerError(pgErrorCode(pgErr), op, err)
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return ledgerError(ErrTransient, op, err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return ledgerError(sqliteErrorCode(liteErr), op, err)
	}

	return ledgerError(ErrDatabase, op, err)
}

// pgErrorCode maps a Postgres SQLSTATE to an ErrorCode.
func pgErrorCode(pgErr *pgconn.PgError) ErrorCode {
	switch {
	// Class 23: integrity constraint violation.
	case strings.HasPrefix(pgErr.Code, "23"):
		return ErrConstraint

	// Class 08: connection exception.
	case strings.HasPrefix(pgErr.Code, "08"):
		return ErrTransient
	}

	switch pgErr.Code {
	// serialization_failure, deadlock_detected, lock_not_available,
	// query_canceled, admin_shutdown, cannot_connect_now.
	case "40001", "40P01", "55P03", "57014", "57P01", "57P03":
		return ErrTransient
	}

	return ErrDatabase
}

// sqliteErrorCode maps a SQLite result code to an ErrorCode.
func sqliteErrorCode(liteErr *sqlite.Error) ErrorCode {
	switch liteErr.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return ErrConstraint

	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return ErrTransient
	}

	return ErrDatabase
}
