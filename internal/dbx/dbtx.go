// Package dbx provides the small database helpers shared by the SQLite-backed
// stores: a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// a transaction runner, and the open/migrate sequence every store goes
// through.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/nutritrack/internal/filex"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries WHERE generation = ?", name)
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// AffectedOne reports whether a statement touched exactly one row. It is how
// conditional updates ("... WHERE state = 'pending'") learn whether they won.
func AffectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ErrMigrationFailed wraps goose errors.
var ErrMigrationFailed = errors.New("migration failed")

// test seam
var newProvider = goose.NewProvider

// OpenSQLite opens a SQLite database with the pure-Go driver, creating the
// file's directory when needed. The pool is limited to a single connection:
// writers are serialized and ":memory:" databases stay the same database
// for every query.
func OpenSQLite(dsn string) (*sql.DB, error) {
	if _, err := filex.EnsureParentDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate applies every pending goose migration found at the root of fsys.
// Migrations only ever create objects, so running it on an existing
// database leaves stored rows untouched.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	p, err := newProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return nil
}
