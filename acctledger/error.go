// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific LedgerError.
const (
	// ErrDatabase indicates an error with the underlying database that
	// could not be classified any further.  When this error code is set,
	// the Err field of the LedgerError will be set to the underlying error
	// returned from the database.
	ErrDatabase ErrorCode = iota

	// ErrTransient indicates a storage failure that may succeed if the
	// caller retries the whole operation, such as a lock timeout, a busy
	// database or a dropped connection.  The ledger never retries on its
	// own.
	ErrTransient

	// ErrConstraint indicates that a write was rejected by a uniqueness,
	// foreign key or check constraint.
	ErrConstraint

	// ErrInvalidInput indicates that an argument was rejected before any
	// storage was touched.
	ErrInvalidInput

	// ErrUnauthenticated indicates that a presented token is unknown or
	// has been revoked.
	ErrUnauthenticated

	// ErrAccountNotFound indicates that the referenced account does not
	// exist.
	ErrAccountNotFound

	// ErrTokenNotFound indicates that the referenced token hash does not
	// exist.
	ErrTokenNotFound

	// ErrPaymentNotFound indicates that the referenced payment does not
	// exist.
	ErrPaymentNotFound

	// ErrAlreadyPaid indicates an attempt to settle a payment that already
	// carries a paid timestamp.
	ErrAlreadyPaid
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:        "ErrDatabase",
	ErrTransient:       "ErrTransient",
	ErrConstraint:      "ErrConstraint",
	ErrInvalidInput:    "ErrInvalidInput",
	ErrUnauthenticated: "ErrUnauthenticated",
	ErrAccountNotFound: "ErrAccountNotFound",
	ErrTokenNotFound:   "ErrTokenNotFound",
	ErrPaymentNotFound: "ErrPaymentNotFound",
	ErrAlreadyPaid:     "ErrAlreadyPaid",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// LedgerError provides a single type for errors that can happen during
// ledger operation.  It is similar to wtxmgr.TxStoreError.
type LedgerError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e LedgerError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e LedgerError) Unwrap() error {
	return e.Err
}

// ledgerError creates a LedgerError given a set of arguments.
func ledgerError(c ErrorCode, desc string, err error) LedgerError {
	return LedgerError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether err, or any error it wraps, is a LedgerError with
// a matching error code.
func IsError(err error, code ErrorCode) bool {
	var lerr LedgerError
	if !errors.As(err, &lerr) {
		return false
	}
	return lerr.ErrorCode == code
}
