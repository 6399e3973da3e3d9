// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package acctledger implements the account ledger behind a custodial
extended-public-key payment service.

A wallet owns any number of billing accounts.  Each account is handed a
per-wallet derivation index when it is created, strictly increasing and never
reused, and is later bound to the extended public key derived at that index.
The service never derives keys itself; the key is stored as an opaque string.

API access to an account is granted through opaque bearer tokens.  A token is
a caller supplied prefix followed by random base-62 characters.  Only the
token and its truncated SHA-256 hash are persisted, and the hash is the only
form of the token that is ever logged.  Every successful authentication
appends a usage row which, together with the quota fields and the payment
history of the account, lets an external enforcer decide when an account has
gone stale or expired.

All state lives in a SQL database.  Postgres (through pgx) and SQLite
(through modernc.org/sqlite) are supported, and every multi-statement
operation runs inside a single transaction.  The ledger never retries on its
own; transient storage failures are reported as ErrTransient so that the
caller can decide.
*/
package acctledger
