// Package repo implements the data persistence layer for recipes, backed by
// GORM. This file provides the repository functions for the Recipe model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they work
// on plain connections and inside transactions alike. They follow the "thin
// repository" approach: persistence and query composition only. Input
// validation belongs to the services package.
//
// Error semantics:
//   - When a recipe is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so both SQL and in-memory stores
// report misses the same way.
var ErrNotFound = gorm.ErrRecordNotFound

// newestFirst is the canonical list order. id breaks ties between rows
// created within the same clock tick.
const newestFirst = "created_at DESC, id DESC"

// CreateRecipe inserts a new recipe stamped with createdAt (UTC). The id is
// assigned by the database and populated on the returned value.
func CreateRecipe(ctx context.Context, db *gorm.DB, in domain.RecipeInput, createdAt time.Time) (*domain.Recipe, error) {
	r := domain.NewRecipe(in, createdAt.UTC())
	if err := db.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecipes returns every recipe, newest first. It returns an empty (non-nil)
// slice when the table is empty.
func ListRecipes(ctx context.Context, db *gorm.DB) ([]domain.Recipe, error) {
	out := []domain.Recipe{}
	err := db.WithContext(ctx).
		Order(newestFirst).
		Find(&out).Error
	return out, err
}

// GetRecipe fetches a single recipe by id, or ErrNotFound.
func GetRecipe(ctx context.Context, db *gorm.DB, id int64) (*domain.Recipe, error) {
	var r domain.Recipe
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRecipe hard-deletes the recipe with the given id and reports whether
// a row existed.
func DeleteRecipe(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Recipe{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountRecipes returns the number of stored recipes.
func CountRecipes(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Recipe{}).Count(&total).Error
	return total, err
}
