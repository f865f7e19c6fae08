package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saas-project/saas/migrations"
)

func TestMigrationNamesSortedAndFiltered(t *testing.T) {
	files := fstest.MapFS{
		"0002_b.sql":   {Data: []byte("SELECT 2")},
		"0001_a.sql":   {Data: []byte("SELECT 1")},
		"README.md":    {Data: []byte("docs")},
		"nested/x.sql": {Data: []byte("SELECT 3")},
	}
	names, err := migrationNames(files)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.sql", "0002_b.sql"}, names)
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := migrationNames(migrations.Files)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_auth.sql", names[0])
}

type fakeRow struct {
	exists bool
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.exists
	return nil
}

type fakeTx struct {
	recorded map[string]bool
	execErr  error
	stmts    []string
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	if f.execErr != nil && !strings.Contains(sql, "pg_advisory_xact_lock") {
		return pgconn.CommandTag{}, f.execErr
	}
	if strings.HasPrefix(sql, "INSERT INTO schema_migrations") {
		f.recorded[args[0].(string)] = true
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.stmts = append(f.stmts, sql)
	return fakeRow{exists: f.recorded[args[0].(string)]}
}

func TestApplyMigrationLocksBeforeChecking(t *testing.T) {
	tx := &fakeTx{recorded: map[string]bool{}}

	ran, err := applyMigration(context.Background(), tx, "0001_a.sql", "CREATE TABLE a ()")
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, tx.stmts, 4)
	assert.Contains(t, tx.stmts[0], "pg_advisory_xact_lock")
	assert.Contains(t, tx.stmts[1], "SELECT EXISTS")
	assert.Equal(t, "CREATE TABLE a ()", tx.stmts[2])
	assert.True(t, tx.recorded["0001_a.sql"])
}

func TestApplyMigrationSkipsRecordedFile(t *testing.T) {
	tx := &fakeTx{recorded: map[string]bool{"0001_a.sql": true}}

	ran, err := applyMigration(context.Background(), tx, "0001_a.sql", "CREATE TABLE a ()")
	require.NoError(t, err)
	assert.False(t, ran)
	require.Len(t, tx.stmts, 2)
	assert.Contains(t, tx.stmts[0], "pg_advisory_xact_lock")
}

func TestApplyMigrationReportsFailure(t *testing.T) {
	tx := &fakeTx{recorded: map[string]bool{}, execErr: errors.New("syntax error")}

	ran, err := applyMigration(context.Background(), tx, "0001_a.sql", "CREATE TABLE")
	require.Error(t, err)
	assert.False(t, ran)
	assert.False(t, tx.recorded["0001_a.sql"])
}
