package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// migrationLockKey serialises migrators across replicas.
const migrationLockKey int64 = 0x73616173

// migrationTx is the part of pgx.Tx a single migration step needs.
type migrationTx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate applies every *.sql file in files that has not been recorded in
// schema_migrations, in lexical order, one transaction per file. Each
// transaction holds an advisory lock so replicas starting together apply a
// file once.
func Migrate(ctx context.Context, pool *pgxpool.Pool, files fs.FS) ([]string, error) {
	err := WithTx(ctx, pool, func(tx pgx.Tx) error {
		if err := lockMigrations(ctx, tx); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, migrationsTable)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("platform/db: create migrations table: %w", err)
	}
	names, err := migrationNames(files)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range names {
		body, err := fs.ReadFile(files, name)
		if err != nil {
			return applied, fmt.Errorf("platform/db: read %s: %w", name, err)
		}
		var ran bool
		err = WithTx(ctx, pool, func(tx pgx.Tx) error {
			var txErr error
			ran, txErr = applyMigration(ctx, tx, name, string(body))
			return txErr
		})
		if err != nil {
			return applied, fmt.Errorf("platform/db: migrate %s: %w", name, err)
		}
		if ran {
			applied = append(applied, name)
		}
	}
	return applied, nil
}

func lockMigrations(ctx context.Context, tx migrationTx) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey)
	return err
}

// applyMigration runs body unless name is already recorded. It reports
// whether the file ran.
func applyMigration(ctx context.Context, tx migrationTx, name, body string) (bool, error) {
	if err := lockMigrations(ctx, tx); err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := tx.Exec(ctx, body); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return false, err
	}
	return true, nil
}

func migrationNames(files fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("platform/db: list migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
