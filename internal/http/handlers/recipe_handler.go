// Recipe HTTP handlers.
//
// This file exposes REST endpoints for recipe resources:
//   - GET    /recipes        (list, newest first, ETag support)
//   - GET    /recipes/{id}   (fetch one)
//   - POST   /recipes        (create, optional Idempotency-Key)
//   - DELETE /recipes/{id}   (hard delete)
//
// Handlers are transport-thin: they parse input, call RecipeService, and
// translate results and service errors into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/http/middleware"
	"github.com/tbourn/go-recipe-backend/internal/services"
	"github.com/tbourn/go-recipe-backend/internal/utils"
)

// HeaderIdempotentReplayed marks a POST answered from a previous request.
const HeaderIdempotentReplayed = "Idempotent-Replayed"

// RecipeService defines the recipe operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RecipeService interface {
	// List returns every recipe, newest first.
	List(ctx context.Context) ([]domain.Recipe, error)
	// Get returns one recipe or services.ErrRecipeNotFound.
	Get(ctx context.Context, id int64) (*domain.Recipe, error)
	// CreateIdempotent validates and stores a recipe; a repeated key replays
	// the first result.
	CreateIdempotent(ctx context.Context, key string, in domain.RecipeInput) (*domain.Recipe, bool, error)
	// Delete removes one recipe or returns services.ErrRecipeNotFound.
	Delete(ctx context.Context, id int64) error
	// Stats returns the count and highest id, used for ETags.
	Stats(ctx context.Context) (count, lastID int64, err error)
}

// EventObserver is notified after successful recipe mutations.
type EventObserver func(event string)

// Handlers groups the recipe and health endpoints.
type Handlers struct {
	recipes RecipeService
	port    string
	now     func() time.Time
	observe EventObserver
}

// New constructs Handlers bound to svc. port is reported by the health check.
func New(svc RecipeService, port string) *Handlers {
	return &Handlers{recipes: svc, port: port, now: time.Now, observe: func(string) {}}
}

// WithObserver sets the callback invoked with "created", "replayed" or
// "deleted" after each successful mutation.
func (h *Handlers) WithObserver(fn EventObserver) *Handlers {
	if fn != nil {
		h.observe = fn
	}
	return h
}

//
// DTOs
//

// CreateRecipeRequest is the JSON payload for creating a recipe. Every field
// must be a string; non-string values are rejected as malformed.
type CreateRecipeRequest struct {
	Name         string `json:"name" example:"Test Recipe"`
	Ingredients  string `json:"ingredients" example:"a\nb"`
	Instructions string `json:"instructions" example:"do it"`
	CookTime     string `json:"cookTime" example:"30 minutes"`
}

func (r CreateRecipeRequest) input() domain.RecipeInput {
	return domain.RecipeInput{
		Name:         r.Name,
		Ingredients:  r.Ingredients,
		Instructions: r.Instructions,
		CookTime:     r.CookTime,
	}
}

//
// Helpers
//

// pathID parses the :id parameter. An id that cannot name a recipe is
// answered like any other missing recipe.
func pathID(c *gin.Context) (int64, bool) {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Recipe not found")
		return 0, false
	}
	return id, true
}

// recipeError maps service errors onto HTTP responses.
func recipeError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		msg := "All fields are required"
		if len(ve.Fields) > 0 {
			msg += " (missing: " + strings.Join(ve.Fields, ", ") + ")"
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
	case errors.Is(err, services.ErrRecipeNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Recipe not found")
	case errors.Is(err, services.ErrIdempotencyConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "Idempotency-Key was already used for a recipe that no longer exists")
	default:
		failInternal(c, err)
	}
}

//
// Handlers
//

// ListRecipes godoc
// @ID          listRecipes
// @Summary     List recipes
// @Description Returns every recipe, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Recipes
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"recipes:2:2\")
//
// @Success     200  {array}  domain.Recipe
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recipes [get]
func (h *Handlers) ListRecipes(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, lastID, err := h.recipes.Stats(ctx); err == nil {
		etag := fmt.Sprintf(`W/"recipes:%d:%d"`, count, lastID)
		c.Header("ETag", etag)
		if etagMatches(c.Request.Header.Values("If-None-Match"), etag) {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.recipes.List(ctx)
	if err != nil {
		recipeError(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// etagMatches applies the If-None-Match weak comparison: any listed tag
// equal to etag once the W/ prefix is ignored, or "*", is a match.
func etagMatches(headers []string, etag string) bool {
	want := strings.TrimPrefix(etag, "W/")
	for _, h := range headers {
		for _, tag := range strings.Split(h, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || (tag != "" && strings.TrimPrefix(tag, "W/") == want) {
				return true
			}
		}
	}
	return false
}

// GetRecipe godoc
// @ID          getRecipe
// @Summary     Get a recipe
// @Tags        Recipes
// @Produce     json
//
// @Param       id  path  int  true  "Recipe ID"  minimum(1)
//
// @Success     200  {object} domain.Recipe
// @Failure     404  {object} handlers.ErrorResponse "Recipe not found or malformed id"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recipes/{id} [get]
func (h *Handlers) GetRecipe(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	r, err := h.recipes.Get(c.Request.Context(), id)
	if err != nil {
		recipeError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// CreateRecipe godoc
// @ID          createRecipe
// @Summary     Create a recipe
// @Description All four fields are required and must be non-blank strings. Values are stored as submitted.
// @Description Supports idempotency via the Idempotency-Key header (same key → same recipe).
// @Tags        Recipes
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateRecipeRequest  true  "Recipe payload"
//
// @Success     201  {object} domain.Recipe
// @Header      201  {string} Idempotent-Replayed  "true when the response replays an earlier request"
// @Failure     400  {object} handlers.ErrorResponse "Missing or blank field, or malformed JSON"
// @Failure     409  {object} handlers.ErrorResponse "Idempotency key conflict"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recipes [post]
func (h *Handlers) CreateRecipe(c *gin.Context) {
	var req CreateRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	if middleware.IsReplay(c) {
		middleware.LoggerFrom(c).Debug().Str("idempotency_key", key).Msg("replaying keyed create")
	}
	r, replayed, err := h.recipes.CreateIdempotent(c.Request.Context(), key, req.input())
	if err != nil {
		recipeError(c, err)
		return
	}

	if replayed {
		c.Header(HeaderIdempotentReplayed, "true")
		h.observe("replayed")
	} else {
		h.observe("created")
	}
	ok(c, http.StatusCreated, r)
}

// DeleteRecipe godoc
// @ID          deleteRecipe
// @Summary     Delete a recipe
// @Tags        Recipes
//
// @Param       id  path  int  true  "Recipe ID"  minimum(1)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Recipe not found or malformed id"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recipes/{id} [delete]
func (h *Handlers) DeleteRecipe(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.recipes.Delete(c.Request.Context(), id); err != nil {
		recipeError(c, err)
		return
	}
	h.observe("deleted")
	noContent(c)
}
