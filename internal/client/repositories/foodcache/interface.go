// Package foodcache keeps product lookups available offline.
package foodcache

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
)

var ErrNotFound = errors.New("food not cached")

// Repository stores foods keyed by their external product id.
type Repository interface {
	Put(ctx context.Context, food *models.Food) error
	Get(ctx context.Context, id string) (*models.Food, error)
	List(ctx context.Context) ([]*models.Food, error)
}
