// Package sqlitestore keeps cache generations in a SQLite database so they
// survive restarts of the edge proxy.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/nutritrack/internal/dbx"
	"github.com/dmitrijs2005/nutritrack/internal/edge"
	"github.com/dmitrijs2005/nutritrack/internal/edge/sqlitestore/migrations"
)

// Storage keeps generations in the cache_generations and cache_entries
// tables.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an already migrated database.
func New(db *sql.DB) *Storage {
	return &Storage{db: db, now: time.Now}
}

// Open opens the database at dsn and applies the cache schema.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	db, err := dbx.OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if err := dbx.Migrate(ctx, db, migrations.Migrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Open(ctx context.Context, name string) (edge.Cache, error) {
	if err := ensureGeneration(ctx, s.db, name, s.now()); err != nil {
		return nil, err
	}
	return &cache{db: s.db, name: name}, nil
}

func ensureGeneration(ctx context.Context, db dbx.DBTX, name string, now time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_generations (name, created_at) VALUES (?, ?)`,
		name, now.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to open generation %s: %w", name, err)
	}
	return nil
}

func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_generations WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check generation %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, `SELECT name FROM cache_generations ORDER BY name`)
}

func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE generation = ?`, name); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cache_generations WHERE name = ?`, name)
		if err != nil {
			return err
		}
		deleted, err = dbx.AffectedOne(res)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete generation %s: %w", name, err)
	}
	return deleted, nil
}

type cache struct {
	db   *sql.DB
	name string
}

func (c *cache) Match(ctx context.Context, key string) (*edge.Entry, error) {
	var (
		e        edge.Entry
		header   string
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT key, method, url, status, header, body, stored_at
		FROM cache_entries WHERE generation = ? AND key = ?
	`, c.name, key).Scan(&e.Key, &e.Method, &e.URL, &e.Status, &header, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, edge.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match %s: %w", key, err)
	}

	e.Header = http.Header{}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, fmt.Errorf("failed to decode headers of %s: %w", key, err)
	}
	e.StoredAt = time.UnixMilli(storedAt).UTC()
	return &e, nil
}

// Put stores e. The generation is recreated if it was deleted meanwhile.
func (c *cache) Put(ctx context.Context, e *edge.Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return err
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}

	err = dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := ensureGeneration(ctx, tx, c.name, e.StoredAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache_entries (generation, key, method, url, status, header, body, stored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(generation, key) DO UPDATE SET
				method = excluded.method, url = excluded.url, status = excluded.status,
				header = excluded.header, body = excluded.body, stored_at = excluded.stored_at
		`, c.name, e.Key, e.Method, e.URL, e.Status, string(header), body, e.StoredAt.UTC().UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", e.Key, err)
	}
	return nil
}

func (c *cache) Delete(ctx context.Context, key string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE generation = ? AND key = ?`, c.name, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return dbx.AffectedOne(res)
}

func (c *cache) Keys(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, c.db, `SELECT key FROM cache_entries WHERE generation = ? ORDER BY key`, c.name)
}

func queryStrings(ctx context.Context, db dbx.DBTX, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
