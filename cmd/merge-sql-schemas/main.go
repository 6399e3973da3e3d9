// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command merge-sql-schemas applies the bundled SQLite migrations of the
// account ledger to an in-memory database and exports the consolidated schema
// with a deterministic order.  With --check it instead fails when the
// committed schema file is out of date.
package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/xpubledger/acctledger"
	"github.com/jessevdk/go-flags"
	_ "modernc.org/sqlite" // Register the pure-Go SQLite driver.
)

const (
	defaultOut = "acctledger/schemas/generated_sqlite_schema.sql"

	dirPerm        = 0o750
	filePerm       = 0o600
	defaultTimeout = 3 * time.Minute
)

var opts = struct {
	Out   string `short:"o" long:"out" description:"Path of the consolidated schema file"`
	Check bool   `long:"check" description:"Fail if the schema file differs from the migrations instead of writing it"`
}{
	Out: defaultOut,
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	if err := run(opts.Out, opts.Check); err != nil {
		log.Fatal(err)
	}
}

func run(outPath string, check bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	schema, err := migratedSchema(ctx)
	if err != nil {
		return err
	}

	if check {
		// #nosec G304 -- Path is given by the developer running the
		// tool.
		current, err := os.ReadFile(outPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		if !bytes.Equal(current, []byte(schema)) {
			return fmt.Errorf("%s is out of date, rerun "+
				"merge-sql-schemas", outPath)
		}
		log.Printf("Schema %s is up to date", outPath)
		return nil
	}

	if err := writeSchema(outPath, schema); err != nil {
		return err
	}

	log.Printf("Final consolidated schema written to %s", outPath)

	return nil
}

// migratedSchema runs the ledger migrations against a fresh in-memory
// database and returns the resulting schema.
func migratedSchema(ctx context.Context) (string, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return "", fmt.Errorf("failed to open in-memory db: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Every connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	store, err := acctledger.NewStore(acctledger.Config{
		DB:      db,
		Dialect: acctledger.DialectSQLite,
	})
	if err != nil {
		return "", err
	}
	if err := store.Migrate(ctx); err != nil {
		return "", fmt.Errorf("failed to apply migrations: %w", err)
	}

	return extractSchema(ctx, db)
}

func extractSchema(ctx context.Context, db *sql.DB) (string, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT type, name, sql FROM sqlite_master
        WHERE type IN ('table','view','index') AND sql IS NOT NULL
            AND name NOT LIKE 'sqlite_%'
        ORDER BY
            CASE type
                WHEN 'table' THEN 1
                WHEN 'view' THEN 2
                WHEN 'index' THEN 3
                ELSE 4
            END,
            name`)
	if err != nil {
		return "", fmt.Errorf("failed to query schema: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var b strings.Builder
	b.WriteString("-- Code generated by merge-sql-schemas. DO NOT EDIT.\n\n")
	for rows.Next() {
		var typ, name, sqlDef string

		err := rows.Scan(&typ, &name, &sqlDef)
		if err != nil {
			return "", fmt.Errorf(
				"failed to scan schema row: %w",
				err,
			)
		}

		b.WriteString(sqlDef)
		b.WriteString(";\n\n")
	}

	err = rows.Err()
	if err != nil {
		return "", fmt.Errorf("failed to iterate schema rows: %w", err)
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func writeSchema(outPath, schema string) error {
	outDir := filepath.Dir(outPath)

	// Ensure the destination directory exists.
	err := os.MkdirAll(outDir, dirPerm)
	if err != nil {
		return fmt.Errorf("failed to create schema dir: %w", err)
	}

	err = os.WriteFile(outPath, []byte(schema), filePerm)
	if err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	return nil
}
