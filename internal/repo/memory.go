package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// MemoryStore is the volatile recipe backend. Records live in a slice and ids
// come from a counter that only moves forward, so deleted ids are never
// handed out again. All methods are safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	recipes []domain.Recipe
	nextID  int64
	now     func() time.Time

	idemMu sync.Mutex
	idem   map[string]domain.Idempotency
}

// NewMemoryStore returns an empty store whose first id is 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		now:    time.Now,
		idem:   make(map[string]domain.Idempotency),
	}
}

// ListRecipes returns a copy of all recipes, newest first.
func (m *MemoryStore) ListRecipes(ctx context.Context) ([]domain.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]domain.Recipe, len(m.recipes))
	copy(out, m.recipes)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// GetRecipe returns a copy of the recipe with id, or ErrNotFound.
func (m *MemoryStore) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(id); i >= 0 {
		r := m.recipes[i]
		return &r, nil
	}
	return nil, ErrNotFound
}

// CreateRecipe assigns the next id and the current UTC time, then appends.
func (m *MemoryStore) CreateRecipe(ctx context.Context, in domain.RecipeInput) (*domain.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	r := domain.NewRecipe(in, m.now().UTC())
	r.ID = m.nextID
	m.nextID++
	m.recipes = append(m.recipes, r)
	m.mu.Unlock()
	return &r, nil
}

// DeleteRecipe removes the recipe with id and reports whether it existed.
func (m *MemoryStore) DeleteRecipe(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return false, nil
	}
	m.recipes = append(m.recipes[:i], m.recipes[i+1:]...)
	return true, nil
}

// RecipeStats returns the recipe count and the highest live id.
func (m *MemoryStore) RecipeStats(ctx context.Context) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last int64
	for _, r := range m.recipes {
		if r.ID > last {
			last = r.ID
		}
	}
	return int64(len(m.recipes)), last, nil
}

// indexOf returns the slice position of id or -1. Callers hold mu.
func (m *MemoryStore) indexOf(id int64) int {
	for i := range m.recipes {
		if m.recipes[i].ID == id {
			return i
		}
	}
	return -1
}

// GetIdempotency returns the live record for key or ErrNotFound.
func (m *MemoryStore) GetIdempotency(ctx context.Context, key string, now time.Time) (*domain.Idempotency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.idemMu.Lock()
	defer m.idemMu.Unlock()
	rec, ok := m.idem[key]
	if !ok || rec.Expired(now) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// CreateIdempotency stores the outcome for key, replacing an expired record.
func (m *MemoryStore) CreateIdempotency(ctx context.Context, key string, recipeID int64, status int, ttl time.Duration) (*domain.Idempotency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.now().UTC()
	m.idemMu.Lock()
	defer m.idemMu.Unlock()
	if cur, ok := m.idem[key]; ok && !cur.Expired(now) {
		return nil, ErrDuplicate
	}
	rec := domain.Idempotency{
		ID:        uuid.NewString(),
		Key:       key,
		RecipeID:  recipeID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	m.idem[key] = rec
	return &rec, nil
}
