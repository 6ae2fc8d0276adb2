// Package services – RecipeService
//
// RecipeService owns the recipe lifecycle: it validates input, classifies
// store failures, and implements Idempotency-Key replay for creates. The
// store behind it is any backend satisfying RecipeStore, so validation and
// error semantics are identical for memory and SQL backends.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

// RecipeStore is the store contract required by RecipeService.
type RecipeStore interface {
	// ListRecipes returns every recipe, newest first.
	ListRecipes(ctx context.Context) ([]domain.Recipe, error)

	// GetRecipe returns a recipe by id or repo.ErrNotFound.
	GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error)

	// CreateRecipe assigns an id and creation time and persists the recipe.
	CreateRecipe(ctx context.Context, in domain.RecipeInput) (*domain.Recipe, error)

	// DeleteRecipe removes a recipe and reports whether it existed.
	DeleteRecipe(ctx context.Context, id int64) (bool, error)

	// RecipeStats returns the row count and the highest id.
	RecipeStats(ctx context.Context) (count, lastID int64, err error)
}

// IdempotencyStore persists the outcome of keyed creates.
type IdempotencyStore interface {
	GetIdempotency(ctx context.Context, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, key string, recipeID int64, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// RecipeService coordinates recipe persistence.
type RecipeService struct {
	Store RecipeStore

	// Idempotency is optional; without it keys are ignored.
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration

	// Now is the clock used for idempotency expiry. Defaults to time.Now.
	Now func() time.Time
}

const defaultIdempotencyTTL = 24 * time.Hour

func tracer() trace.Tracer { return otel.Tracer("services/RecipeService") }

func (s *RecipeService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RecipeService) ttl() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return defaultIdempotencyTTL
}

// List returns all recipes, newest first. The result is never nil.
func (s *RecipeService) List(ctx context.Context) ([]domain.Recipe, error) {
	ctx, span := tracer().Start(ctx, "List")
	defer span.End()

	items, err := s.Store.ListRecipes(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr("list", err)
	}
	if items == nil {
		items = []domain.Recipe{}
	}
	span.SetAttributes(attribute.Int("recipe.count", len(items)))
	return items, nil
}

// Get returns the recipe with id or ErrRecipeNotFound.
func (s *RecipeService) Get(ctx context.Context, id int64) (*domain.Recipe, error) {
	ctx, span := tracer().Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("recipe.id", id)),
	)
	defer span.End()

	r, err := s.Store.GetRecipe(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRecipeNotFound
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr("get", err)
	}
	return r, nil
}

// Create validates in and stores a new recipe. Field values are stored as
// submitted; trimming is only used to decide blankness.
func (s *RecipeService) Create(ctx context.Context, in domain.RecipeInput) (*domain.Recipe, error) {
	ctx, span := tracer().Start(ctx, "Create")
	defer span.End()

	if blank := in.BlankFields(); blank != nil {
		return nil, &ValidationError{Fields: blank}
	}
	r, err := s.Store.CreateRecipe(ctx, in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr("create", err)
	}
	span.SetAttributes(
		attribute.Int64("recipe.id", r.ID),
		attribute.Int("recipe.ingredient_count", len(r.IngredientList())),
	)
	return r, nil
}

// CreateIdempotent behaves like Create, but a repeated key within the TTL
// returns the recipe created by the first request with replayed set to true.
// The input is validated on every call, replays included.
// An empty key or a service without an IdempotencyStore falls back to Create.
func (s *RecipeService) CreateIdempotent(ctx context.Context, key string, in domain.RecipeInput) (r *domain.Recipe, replayed bool, err error) {
	if key == "" || s.Idempotency == nil {
		r, err = s.Create(ctx, in)
		return r, false, err
	}

	ctx, span := tracer().Start(ctx, "CreateIdempotent")
	defer span.End()

	// A replay never bypasses validation.
	if blank := in.BlankFields(); blank != nil {
		return nil, false, &ValidationError{Fields: blank}
	}

	if r, err := s.replay(ctx, key); err == nil {
		span.SetAttributes(attribute.Bool("idempotency.replayed", true))
		return r, true, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	r, err = s.Create(ctx, in)
	if err != nil {
		return nil, false, err
	}

	if _, err := s.Idempotency.CreateIdempotency(ctx, key, r.ID, http.StatusCreated, s.ttl()); err != nil {
		if !errors.Is(err, repo.ErrDuplicate) {
			span.SetStatus(codes.Error, err.Error())
			return nil, false, storageErr("record idempotency", err)
		}
		// A concurrent request with the same key won. Drop our row and
		// answer with theirs.
		if _, derr := s.Store.DeleteRecipe(ctx, r.ID); derr != nil {
			log.Warn().Err(derr).Int64("recipe_id", r.ID).Msg("idempotency: orphan cleanup failed")
		}
		winner, werr := s.replay(ctx, key)
		if werr != nil {
			if errors.Is(werr, repo.ErrNotFound) {
				return nil, false, ErrIdempotencyConflict
			}
			return nil, false, werr
		}
		return winner, true, nil
	}
	return r, false, nil
}

// replay resolves key to the recipe it created. It returns repo.ErrNotFound
// when the key is unknown or expired.
func (s *RecipeService) replay(ctx context.Context, key string) (*domain.Recipe, error) {
	rec, err := s.Idempotency.GetIdempotency(ctx, key, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("lookup idempotency", err)
	}
	r, err := s.Store.GetRecipe(ctx, rec.RecipeID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrIdempotencyConflict
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return r, nil
}

// Delete removes the recipe with id, or returns ErrRecipeNotFound.
func (s *RecipeService) Delete(ctx context.Context, id int64) error {
	ctx, span := tracer().Start(ctx, "Delete",
		trace.WithAttributes(attribute.Int64("recipe.id", id)),
	)
	defer span.End()

	existed, err := s.Store.DeleteRecipe(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return storageErr("delete", err)
	}
	if !existed {
		return ErrRecipeNotFound
	}
	return nil
}

// Stats returns the recipe count and highest id for conditional responses.
func (s *RecipeService) Stats(ctx context.Context) (count, lastID int64, err error) {
	ctx, span := tracer().Start(ctx, "Stats")
	defer span.End()

	count, lastID, err = s.Store.RecipeStats(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, 0, storageErr("stats", err)
	}
	return count, lastID, nil
}
