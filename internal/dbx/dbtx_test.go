package dbx

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('ok')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, db), "must commit on success")
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('fail')`)
		require.NoError(t, e)
		return errors.New("boom")
	})
	require.Error(t, err)

	require.Equal(t, 0, countRows(t, db), "must rollback when fn returns error")
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		require.Equal(t, 0, countRows(t, db), "must rollback on panic")
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('panic')`)
		require.NoError(t, e)
		panic("kaput")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	require.Error(t, err, "begin should fail when DB is closed")
}

func TestAffectedOne(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO t(id, v) VALUES (1, 'pending')`)
	require.NoError(t, err)

	res, err := db.ExecContext(ctx, `UPDATE t SET v = 'claimed' WHERE id = 1 AND v = 'pending'`)
	require.NoError(t, err)
	won, err := AffectedOne(res)
	require.NoError(t, err)
	require.True(t, won)

	res, err = db.ExecContext(ctx, `UPDATE t SET v = 'claimed' WHERE id = 1 AND v = 'pending'`)
	require.NoError(t, err)
	won, err = AffectedOne(res)
	require.NoError(t, err)
	require.False(t, won, "second conditional update must not win")
}

func TestMigrate_AppliesAndIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fsys := fstest.MapFS{
		"00001_init.sql": &fstest.MapFile{Data: []byte(`-- +goose Up
CREATE TABLE IF NOT EXISTS kv (id TEXT PRIMARY KEY, value BLOB NOT NULL);
`)},
	}

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, fsys))

	_, err = db.ExecContext(ctx, `INSERT INTO kv(id, value) VALUES ('a', x'01')`)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, db, fsys))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n))
	require.Equal(t, 1, n, "re-running migrations must keep rows")
}

func TestMigrate_ProviderError(t *testing.T) {
	orig := newProvider
	t.Cleanup(func() { newProvider = orig })
	newProvider = func(goose.Dialect, *sql.DB, fs.FS, ...goose.ProviderOption) (*goose.Provider, error) {
		return nil, errors.New("no migrations")
	}

	db := setupDB(t)
	err := Migrate(context.Background(), db, fstest.MapFS{})
	require.ErrorIs(t, err, ErrMigrationFailed)
}

func TestOpenSQLite_CreatesDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "state", "queue.db")

	db, err := OpenSQLite(dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping())
	_, err = os.Stat(dsn)
	require.NoError(t, err)
}
