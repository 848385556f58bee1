package foodcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
	"github.com/dmitrijs2005/nutritrack/internal/dbx"
)

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Put upserts food by id.
func (r *SQLiteRepository) Put(ctx context.Context, food *models.Food) error {
	if food.ID == "" {
		return errors.New("food id is required")
	}
	data, err := json.Marshal(food)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO food_cache (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, food.ID, data, r.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to cache food %s: %w", food.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Food, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM food_cache WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get food %s: %w", id, err)
	}

	var f models.Food
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode food %s: %w", id, err)
	}
	return &f, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Food, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM food_cache ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list food cache: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Food, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var f models.Food
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to decode cached food: %w", err)
		}
		result = append(result, &f)
	}
	return result, rows.Err()
}
