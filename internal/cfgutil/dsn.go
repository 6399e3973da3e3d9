// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultSQLiteBusyTimeout is how long a SQLite connection waits for a
// competing writer before giving up with SQLITE_BUSY.
const DefaultSQLiteBusyTimeout = 10 * time.Second

// SQLiteDSN returns a modernc.org/sqlite connection string for the database
// file at path.  Every connection enables foreign keys and WAL journaling,
// begins write transactions immediately so that writers queue on the busy
// timeout instead of failing on lock upgrade, and stores timestamps in
// SQLite's sortable text format.
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)",
			busyTimeout.Milliseconds()),
		"_pragma=journal_mode(WAL)",
		"_txlock=immediate",
		"_time_format=sqlite",
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// RedactDSN returns dsn with any password replaced so that it can be
// logged.  Strings that do not parse as URLs are returned with everything
// but the scheme elided.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		if i := strings.Index(dsn, "://"); i > 0 {
			return dsn[:i] + "://..."
		}
		return "..."
	}
	return u.Redacted()
}
