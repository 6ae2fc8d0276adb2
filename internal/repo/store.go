package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// RecipeRepo is the backend-agnostic recipe store contract implemented by
// SQLStore and MemoryStore.
type RecipeRepo interface {
	ListRecipes(ctx context.Context) ([]domain.Recipe, error)
	GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error)
	CreateRecipe(ctx context.Context, in domain.RecipeInput) (*domain.Recipe, error)
	DeleteRecipe(ctx context.Context, id int64) (bool, error)
	RecipeStats(ctx context.Context) (count, lastID int64, err error)
}

// IdempotencyRepo stores Idempotency-Key outcomes.
type IdempotencyRepo interface {
	GetIdempotency(ctx context.Context, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, key string, recipeID int64, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// SQLStore adapts the package-level GORM functions to RecipeRepo and
// IdempotencyRepo for a fixed database handle.
type SQLStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewSQLStore returns a SQLStore bound to db using the wall clock.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{DB: db, Now: time.Now}
}

// ListRecipes proxies ListRecipes.
func (s *SQLStore) ListRecipes(ctx context.Context) ([]domain.Recipe, error) {
	return ListRecipes(ctx, s.DB)
}

// GetRecipe proxies GetRecipe.
func (s *SQLStore) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	return GetRecipe(ctx, s.DB, id)
}

// CreateRecipe proxies CreateRecipe, stamping the current time.
func (s *SQLStore) CreateRecipe(ctx context.Context, in domain.RecipeInput) (*domain.Recipe, error) {
	return CreateRecipe(ctx, s.DB, in, s.Now())
}

// DeleteRecipe proxies DeleteRecipe.
func (s *SQLStore) DeleteRecipe(ctx context.Context, id int64) (bool, error) {
	return DeleteRecipe(ctx, s.DB, id)
}

// RecipeStats proxies RecipeStats.
func (s *SQLStore) RecipeStats(ctx context.Context) (int64, int64, error) {
	return RecipeStats(ctx, s.DB)
}

// GetIdempotency proxies GetIdempotency.
func (s *SQLStore) GetIdempotency(ctx context.Context, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, key, now)
}

// CreateIdempotency proxies CreateIdempotency.
func (s *SQLStore) CreateIdempotency(ctx context.Context, key string, recipeID int64, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return CreateIdempotency(ctx, s.DB, key, recipeID, status, ttl)
}
