// Package repo implements the data persistence layer for recipes. This file
// provides the aggregate query used for conditional list responses (weak
// ETags) in the HTTP layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// RecipeStats returns the number of recipes and the highest id currently
// stored. Ids are never reused, so the pair changes whenever the list
// changes: a create raises lastID and a delete lowers count.
//
// When the table is empty both values are 0.
func RecipeStats(ctx context.Context, db *gorm.DB) (count, lastID int64, err error) {
	if count, err = CountRecipes(ctx, db); err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}

	var row struct {
		ID int64
	}
	if err = db.WithContext(ctx).Model(&domain.Recipe{}).
		Select("id").Order("id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return count, row.ID, nil
}
