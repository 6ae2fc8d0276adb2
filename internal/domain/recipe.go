// Package domain defines the persistence model for recipes. The Recipe type
// is mapped with GORM onto a single table and is also the JSON shape returned
// by the HTTP API.
package domain

import (
	"strings"
	"time"
)

// Recipe is the only entity of the application. Records are created and
// deleted, never updated.
//
// Fields:
//   - ID: store-assigned integer key (auto-increment in SQL backends).
//   - Name, Ingredients, Instructions, CookTime: user-supplied text, stored
//     exactly as submitted.
//   - CreatedAt: set once at creation.
type Recipe struct {
	ID           int64     `json:"id"           gorm:"primaryKey;autoIncrement"`
	Name         string    `json:"name"         gorm:"type:text;not null"`
	Ingredients  string    `json:"ingredients"  gorm:"type:text;not null"`
	Instructions string    `json:"instructions" gorm:"type:text;not null"`
	CookTime     string    `json:"cookTime"     gorm:"column:cookTime;type:text;not null"`
	CreatedAt    time.Time `json:"createdAt"    gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP;index:idx_recipes_created"`
}

// TableName returns the database table name for Recipe.
func (Recipe) TableName() string { return "recipes" }

// IngredientList splits the newline-delimited ingredients into trimmed,
// non-empty lines. Storage is unaffected.
func (r Recipe) IngredientList() []string {
	lines := strings.Split(r.Ingredients, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// RecipeInput carries the user-supplied fields of a new recipe.
type RecipeInput struct {
	Name         string
	Ingredients  string
	Instructions string
	CookTime     string
}

// BlankFields returns the JSON names of every field that is empty after
// trimming whitespace, in declaration order. A nil result means the input is
// complete.
func (in RecipeInput) BlankFields() []string {
	var out []string
	if strings.TrimSpace(in.Name) == "" {
		out = append(out, "name")
	}
	if strings.TrimSpace(in.Ingredients) == "" {
		out = append(out, "ingredients")
	}
	if strings.TrimSpace(in.Instructions) == "" {
		out = append(out, "instructions")
	}
	if strings.TrimSpace(in.CookTime) == "" {
		out = append(out, "cookTime")
	}
	return out
}

// NewRecipe builds an unsaved Recipe from in, stamped with createdAt.
func NewRecipe(in RecipeInput, createdAt time.Time) Recipe {
	return Recipe{
		Name:         in.Name,
		Ingredients:  in.Ingredients,
		Instructions: in.Instructions,
		CookTime:     in.CookTime,
		CreatedAt:    createdAt,
	}
}
