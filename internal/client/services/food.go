package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
	"github.com/dmitrijs2005/nutritrack/internal/client/repositories/foodcache"
)

// FoodCacheService keeps product details fetched while online so meals
// can be composed offline.
type FoodCacheService interface {
	// UpdateFoodCache stores foods in order and stops at the first failure,
	// returning how many were stored.
	UpdateFoodCache(ctx context.Context, foods []models.Food) (int, error)
	Lookup(ctx context.Context, id string) (*models.Food, error)
	List(ctx context.Context) ([]*models.Food, error)
}

type foodCacheService struct {
	repo foodcache.Repository
}

func NewFoodCacheService(repo foodcache.Repository) FoodCacheService {
	return &foodCacheService{repo: repo}
}

func (s *foodCacheService) UpdateFoodCache(ctx context.Context, foods []models.Food) (int, error) {
	for i := range foods {
		if err := s.repo.Put(ctx, &foods[i]); err != nil {
			return i, fmt.Errorf("food cache update stopped at %q: %w", foods[i].ID, err)
		}
	}
	return len(foods), nil
}

func (s *foodCacheService) Lookup(ctx context.Context, id string) (*models.Food, error) {
	return s.repo.Get(ctx, id)
}

func (s *foodCacheService) List(ctx context.Context) ([]*models.Food, error) {
	return s.repo.List(ctx)
}
