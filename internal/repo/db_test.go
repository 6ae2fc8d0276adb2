package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "recipes.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var (
		journalMode string
		busyMS      int
	)
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// Second run is a no-op on an existing schema.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate (again): %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.Recipe{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	r, err := CreateRecipe(context.Background(), db, domain.RecipeInput{
		Name: "Toast", Ingredients: "bread", Instructions: "toast it", CookTime: "3 minutes",
	}, time.Now())
	if err != nil {
		t.Fatalf("insert recipe: %v", err)
	}
	if r.ID == 0 {
		t.Fatalf("expected generated id")
	}
}

func TestEnableTracing_RegistersPlugin(t *testing.T) {
	db := newTestDB(t, &domain.Recipe{})
	if err := EnableTracing(db); err != nil {
		t.Fatalf("EnableTracing: %v", err)
	}
	// Queries still work with the plugin callbacks installed.
	if _, err := ListRecipes(context.Background(), db); err != nil {
		t.Fatalf("ListRecipes with tracing: %v", err)
	}
}

// Compile-time guards to ensure signature stability.
var (
	_ func(string) (*gorm.DB, error) = OpenSQLite
	_ func(string) (*gorm.DB, error) = OpenPostgres
)
