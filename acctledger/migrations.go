// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations
var migrationFS embed.FS

const createSchemaVersionSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
)`

// migration is one numbered schema step.
type migration struct {
	version uint32
	name    string
	up      string
	down    string
}

// migrations returns the bundled migrations of a dialect sorted by version.
func migrations(d Dialect) ([]migration, error) {
	dir := path.Join("migrations", d.String())
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[uint32]*migration)
	for _, e := range entries {
		name := e.Name()

		var isUp bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			isUp = true
		case strings.HasSuffix(name, ".down.sql"):
		default:
			continue
		}

		numStr, rest, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("malformed migration name %q", name)
		}
		num, err := strconv.ParseUint(numStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed migration name %q: %w",
				name, err)
		}

		data, err := migrationFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return nil, err
		}

		m, ok := byVersion[uint32(num)]
		if !ok {
			m = &migration{version: uint32(num)}
			byVersion[uint32(num)] = m
		}
		if isUp {
			m.name = strings.TrimSuffix(rest, ".up.sql")
			m.up = string(data)
		} else {
			m.down = string(data)
		}
	}

	ms := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" {
			return nil, fmt.Errorf("migration %06d has no up step",
				m.version)
		}
		ms = append(ms, *m)
	}
	sort.Slice(ms, func(i, j int) bool {
		return ms[i].version < ms[j].version
	})

	return ms, nil
}

// LatestSchemaVersion returns the newest bundled schema version for the
// dialect.
func LatestSchemaVersion(d Dialect) (uint32, error) {
	ms, err := migrations(d)
	if err != nil {
		return 0, err
	}
	if len(ms) == 0 {
		return 0, nil
	}
	return ms[len(ms)-1].version, nil
}

// SchemaVersion returns the version of the last applied migration, or zero
// for an empty database.
func (s *Store) SchemaVersion(ctx context.Context) (uint32, error) {
	var version uint32
	err := s.withTx(ctx, "schema version", func(tx *sql.Tx) error {
		var err error
		version, err = schemaVersion(ctx, tx)
		return err
	})
	return version, err
}

func schemaVersion(ctx context.Context, tx *sql.Tx) (uint32, error) {
	if _, err := tx.ExecContext(ctx, createSchemaVersionSQL); err != nil {
		return 0, err
	}

	var version sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return uint32(version.Int64), nil
}

// Migrate applies every bundled migration newer than the current schema
// version. Each migration runs in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	ms, err := migrations(s.dialect)
	if err != nil {
		return ledgerError(ErrDatabase, "load migrations", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range ms {
		if m.version <= current {
			continue
		}

		op := fmt.Sprintf("apply migration %06d_%s", m.version, m.name)
		err := s.withTx(ctx, op, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO schema_version (version, applied_at)
				VALUES ($1, $2)`, m.version, s.now())
			return err
		})
		if err != nil {
			return err
		}

		log.Infof("Applied %v migration %06d_%s", s.dialect,
			m.version, m.name)
		applied++
	}

	if applied == 0 {
		log.Debugf("Ledger schema is up to date at version %d", current)
	}

	return nil
}

// Rollback reverts the most recently applied migration. It is a no-op on an
// empty database.
func (s *Store) Rollback(ctx context.Context) error {
	ms, err := migrations(s.dialect)
	if err != nil {
		return ledgerError(ErrDatabase, "load migrations", err)
	}

	return s.withTx(ctx, "rollback migration", func(tx *sql.Tx) error {
		current, err := schemaVersion(ctx, tx)
		if err != nil {
			return err
		}
		if current == 0 {
			return nil
		}

		for _, m := range ms {
			if m.version != current {
				continue
			}
			if m.down == "" {
				str := fmt.Sprintf("migration %06d has no down "+
					"step", m.version)
				return ledgerError(ErrDatabase, str, nil)
			}
			if _, err := tx.ExecContext(ctx, m.down); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				DELETE FROM schema_version WHERE version = $1`,
				m.version)
			if err != nil {
				return err
			}

			log.Infof("Rolled back %v migration %06d_%s",
				s.dialect, m.version, m.name)
			return nil
		}

		str := fmt.Sprintf("unknown schema version %d", current)
		return ledgerError(ErrDatabase, str, nil)
	})
}
