package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

// ---------- test helpers ----------

func validInput() domain.RecipeInput {
	return domain.RecipeInput{
		Name:         "Test Recipe",
		Ingredients:  "a\nb",
		Instructions: "do it",
		CookTime:     "30 minutes",
	}
}

func newMemService() (*RecipeService, *repo.MemoryStore) {
	m := repo.NewMemoryStore()
	return &RecipeService{Store: m, Idempotency: m, IdempotencyTTL: time.Hour}, m
}

// failingStore returns err from every method.
type failingStore struct{ err error }

func (f failingStore) ListRecipes(context.Context) ([]domain.Recipe, error) { return nil, f.err }
func (f failingStore) GetRecipe(context.Context, int64) (*domain.Recipe, error) {
	return nil, f.err
}
func (f failingStore) CreateRecipe(context.Context, domain.RecipeInput) (*domain.Recipe, error) {
	return nil, f.err
}
func (f failingStore) DeleteRecipe(context.Context, int64) (bool, error) { return false, f.err }
func (f failingStore) RecipeStats(context.Context) (int64, int64, error) { return 0, 0, f.err }

// nilListStore returns a nil slice from ListRecipes.
type nilListStore struct{ failingStore }

func (nilListStore) ListRecipes(context.Context) ([]domain.Recipe, error) { return nil, nil }

// dupIdem always reports a duplicate on create and serves winner on lookup
// after the first miss.
type dupIdem struct {
	winner  *domain.Idempotency
	lookups int
}

func (d *dupIdem) GetIdempotency(context.Context, string, time.Time) (*domain.Idempotency, error) {
	d.lookups++
	if d.lookups == 1 || d.winner == nil {
		return nil, repo.ErrNotFound
	}
	return d.winner, nil
}

func (d *dupIdem) CreateIdempotency(context.Context, string, int64, int, time.Duration) (*domain.Idempotency, error) {
	return nil, repo.ErrDuplicate
}

// ---------- Create / Get / List / Delete ----------

func TestRecipeService_Create_RoundTrip(t *testing.T) {
	s, _ := newMemService()
	ctx := context.Background()

	r, err := s.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.ID == 0 || r.CreatedAt.IsZero() {
		t.Fatalf("expected id and createdAt, got %+v", r)
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Test Recipe" || got.Ingredients != "a\nb" || got.Instructions != "do it" || got.CookTime != "30 minutes" {
		t.Fatalf("unexpected recipe: %+v", got)
	}
}

func TestRecipeService_Create_StoresUntrimmed(t *testing.T) {
	s, _ := newMemService()
	in := validInput()
	in.Name = "  Padded  "
	r, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Name != "  Padded  " {
		t.Fatalf("name should be stored as submitted, got %q", r.Name)
	}
}

func TestRecipeService_Create_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.RecipeInput)
		field  string
	}{
		{"empty name", func(in *domain.RecipeInput) { in.Name = "" }, "name"},
		{"blank ingredients", func(in *domain.RecipeInput) { in.Ingredients = " \n\t" }, "ingredients"},
		{"blank instructions", func(in *domain.RecipeInput) { in.Instructions = "   " }, "instructions"},
		{"empty cookTime", func(in *domain.RecipeInput) { in.CookTime = "" }, "cookTime"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, m := newMemService()
			in := validInput()
			tc.mutate(&in)

			r, err := s.Create(context.Background(), in)
			if r != nil || !errors.Is(err, ErrInvalidRecipe) {
				t.Fatalf("expected ErrInvalidRecipe, got r=%v err=%v", r, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || len(ve.Fields) != 1 || ve.Fields[0] != tc.field {
				t.Fatalf("expected field %q, got %+v", tc.field, ve)
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Fatalf("message should name the field: %q", err.Error())
			}
			if n, _, _ := m.RecipeStats(context.Background()); n != 0 {
				t.Fatalf("invalid input must not be stored, count=%d", n)
			}
		})
	}
}

func TestRecipeService_Get_NotFound(t *testing.T) {
	s, _ := newMemService()
	if _, err := s.Get(context.Background(), 7); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("expected ErrRecipeNotFound, got %v", err)
	}
}

func TestRecipeService_List_NewestFirst(t *testing.T) {
	s, _ := newMemService()
	ctx := context.Background()

	a, _ := s.Create(ctx, validInput())
	in := validInput()
	in.Name = "B"
	b, _ := s.Create(ctx, in)

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("expected B before A, got %+v", list)
	}
}

func TestRecipeService_List_NeverNil(t *testing.T) {
	s := &RecipeService{Store: nilListStore{}}
	list, err := s.List(context.Background())
	if err != nil || list == nil {
		t.Fatalf("expected empty non-nil slice, got %#v, %v", list, err)
	}
}

func TestRecipeService_Delete(t *testing.T) {
	s, _ := newMemService()
	ctx := context.Background()
	r, _ := s.Create(ctx, validInput())
	keep, _ := s.Create(ctx, validInput())

	if err := s.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, r.ID); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, r.ID); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("second delete: expected ErrRecipeNotFound, got %v", err)
	}
	list, _ := s.List(ctx)
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Fatalf("unexpected remaining list: %+v", list)
	}
}

func TestRecipeService_StorageErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	s := &RecipeService{Store: failingStore{err: boom}}
	ctx := context.Background()

	check := func(name string, err error) {
		t.Helper()
		var se *StorageError
		if !errors.As(err, &se) {
			t.Fatalf("%s: expected *StorageError, got %T %v", name, err, err)
		}
		if !errors.Is(err, boom) {
			t.Fatalf("%s: cause should unwrap to boom", name)
		}
		if errors.Is(err, ErrRecipeNotFound) || errors.Is(err, ErrInvalidRecipe) {
			t.Fatalf("%s: storage error misclassified", name)
		}
	}

	_, err := s.List(ctx)
	check("List", err)
	_, err = s.Get(ctx, 1)
	check("Get", err)
	_, err = s.Create(ctx, validInput())
	check("Create", err)
	check("Delete", s.Delete(ctx, 1))
	_, _, err = s.Stats(ctx)
	check("Stats", err)
}

func TestRecipeService_Stats(t *testing.T) {
	s, _ := newMemService()
	ctx := context.Background()
	_, _ = s.Create(ctx, validInput())
	r2, _ := s.Create(ctx, validInput())

	n, last, err := s.Stats(ctx)
	if err != nil || n != 2 || last != r2.ID {
		t.Fatalf("Stats = (%d, %d, %v)", n, last, err)
	}
}

// ---------- CreateIdempotent ----------

func TestRecipeService_CreateIdempotent_NoKey(t *testing.T) {
	s, m := newMemService()
	ctx := context.Background()
	_, replayed, err := s.CreateIdempotent(ctx, "", validInput())
	if err != nil || replayed {
		t.Fatalf("unexpected (%v, %v)", replayed, err)
	}
	_, _, _ = s.CreateIdempotent(ctx, "", validInput())
	if n, _, _ := m.RecipeStats(ctx); n != 2 {
		t.Fatalf("keyless creates are not deduplicated, count=%d", n)
	}
}

func TestRecipeService_CreateIdempotent_Replay(t *testing.T) {
	s, m := newMemService()
	ctx := context.Background()

	first, replayed, err := s.CreateIdempotent(ctx, "key-1", validInput())
	if err != nil || replayed {
		t.Fatalf("first call = (%v, %v)", replayed, err)
	}
	second, replayed, err := s.CreateIdempotent(ctx, "key-1", validInput())
	if err != nil || !replayed {
		t.Fatalf("second call = (%v, %v)", replayed, err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different recipe: %d vs %d", second.ID, first.ID)
	}
	if n, _, _ := m.RecipeStats(ctx); n != 1 {
		t.Fatalf("replay must not create, count=%d", n)
	}
}

func TestRecipeService_CreateIdempotent_InvalidDoesNotRecordKey(t *testing.T) {
	s, _ := newMemService()
	ctx := context.Background()

	bad := validInput()
	bad.Name = ""
	if _, _, err := s.CreateIdempotent(ctx, "k", bad); !errors.Is(err, ErrInvalidRecipe) {
		t.Fatalf("expected validation error, got %v", err)
	}
	r, replayed, err := s.CreateIdempotent(ctx, "k", validInput())
	if err != nil || replayed || r == nil {
		t.Fatalf("retry with fixed input should create, got (%v, %v, %v)", r, replayed, err)
	}
}

func TestRecipeService_CreateIdempotent_ReplayStillValidates(t *testing.T) {
	s, m := newMemService()
	ctx := context.Background()

	if _, _, err := s.CreateIdempotent(ctx, "k-1", validInput()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	for _, in := range []domain.RecipeInput{
		{},
		{Name: " ", Ingredients: "", Instructions: "\t", CookTime: ""},
		{Name: "Test Recipe", Ingredients: "a", Instructions: "do it"},
	} {
		r, replayed, err := s.CreateIdempotent(ctx, "k-1", in)
		var ve *ValidationError
		if !errors.As(err, &ve) || r != nil || replayed {
			t.Fatalf("CreateIdempotent(%+v) = (%v, %v, %v); want ValidationError", in, r, replayed, err)
		}
	}
	if n, _, _ := m.RecipeStats(ctx); n != 1 {
		t.Fatalf("count = %d; want 1", n)
	}
}

func TestRecipeService_CreateIdempotent_DeletedRecipeConflicts(t *testing.T) {
	s, _ := newMemService()
	ctx := context.Background()

	r, _, _ := s.CreateIdempotent(ctx, "k", validInput())
	if err := s.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.CreateIdempotent(ctx, "k", validInput()); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestRecipeService_CreateIdempotent_LostRaceReturnsWinner(t *testing.T) {
	m := repo.NewMemoryStore()
	ctx := context.Background()
	winner, _ := m.CreateRecipe(ctx, validInput())

	idem := &dupIdem{winner: &domain.Idempotency{Key: "k", RecipeID: winner.ID, Status: 201}}
	s := &RecipeService{Store: m, Idempotency: idem}

	r, replayed, err := s.CreateIdempotent(ctx, "k", validInput())
	if err != nil || !replayed || r.ID != winner.ID {
		t.Fatalf("expected winner replay, got (%+v, %v, %v)", r, replayed, err)
	}
	if n, _, _ := m.RecipeStats(ctx); n != 1 {
		t.Fatalf("loser's recipe should be removed, count=%d", n)
	}
}

func TestRecipeService_CreateIdempotent_LostRaceWinnerGone(t *testing.T) {
	m := repo.NewMemoryStore()
	s := &RecipeService{Store: m, Idempotency: &dupIdem{}}
	if _, _, err := s.CreateIdempotent(context.Background(), "k", validInput()); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

// ---------- SQL backend ----------

func TestRecipeService_SQLiteBackend(t *testing.T) {
	b, err := repo.OpenBackend(repo.BackendOptions{
		Kind:   repo.KindSQLite,
		DBPath: filepath.Join(t.TempDir(), "svc.db"),
	})
	if err != nil {
		t.Fatalf("OpenBackend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	s := &RecipeService{Store: b.Recipes, Idempotency: b.Idempotency}
	ctx := context.Background()

	r, replayed, err := s.CreateIdempotent(ctx, "sql-key", validInput())
	if err != nil || replayed {
		t.Fatalf("create = (%v, %v)", replayed, err)
	}
	again, replayed, err := s.CreateIdempotent(ctx, "sql-key", validInput())
	if err != nil || !replayed || again.ID != r.ID {
		t.Fatalf("replay = (%+v, %v, %v)", again, replayed, err)
	}
	if err := s.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, r.ID); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("expected ErrRecipeNotFound, got %v", err)
	}
}
