package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// SeedRecipes are inserted, in order, into an empty store at startup.
var SeedRecipes = []domain.RecipeInput{
	{
		Name:         "Classic Chocolate Chip Cookies",
		Ingredients:  "2 cups all-purpose flour\n1 cup butter, softened\n3/4 cup brown sugar\n1/2 cup white sugar\n2 large eggs\n2 tsp vanilla extract\n1 tsp baking soda\n1 tsp salt\n2 cups chocolate chips",
		Instructions: "Preheat oven to 375°F. Mix butter and sugars until creamy. Beat in eggs and vanilla. Combine dry ingredients and mix into butter mixture. Stir in chocolate chips. Drop rounded tablespoons onto ungreased cookie sheets. Bake 9-11 minutes until golden brown.",
		CookTime:     "25 minutes",
	},
	{
		Name:         "Simple Pasta Carbonara",
		Ingredients:  "400g spaghetti\n200g pancetta or bacon\n4 large eggs\n100g Parmesan cheese, grated\n2 cloves garlic, minced\nSalt and black pepper\n2 tbsp olive oil",
		Instructions: "Cook pasta according to package directions. Meanwhile, cook pancetta until crispy. Whisk eggs with Parmesan, salt, and pepper. Drain pasta, reserving 1 cup pasta water. Quickly toss hot pasta with egg mixture and pancetta. Add pasta water as needed for creamy consistency.",
		CookTime:     "20 minutes",
	},
}

// Seed inserts SeedRecipes when the store holds no recipes and reports how
// many rows were added. A non-empty store is left untouched.
func Seed(ctx context.Context, store RecipeStore) (int, error) {
	count, _, err := store.RecipeStats(ctx)
	if err != nil {
		return 0, storageErr("seed", err)
	}
	if count > 0 {
		log.Debug().Int64("count", count).Msg("seed skipped: store not empty")
		return 0, nil
	}
	for i, in := range SeedRecipes {
		if _, err := store.CreateRecipe(ctx, in); err != nil {
			return i, storageErr("seed", err)
		}
	}
	log.Info().Int("count", len(SeedRecipes)).Msg("seeded sample recipes")
	return len(SeedRecipes), nil
}
