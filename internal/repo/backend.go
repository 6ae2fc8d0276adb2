package repo

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Backend kinds accepted by OpenBackend.
const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// BackendOptions selects and configures the store opened at startup.
type BackendOptions struct {
	Kind    string // memory|sqlite|postgres
	DBPath  string // sqlite file
	DSN     string // postgres DSN
	Tracing bool   // register the GORM OpenTelemetry plugin
}

// Backend is the single active store of the process. Exactly one
// implementation backs both Recipes and Idempotency.
type Backend struct {
	Kind        string
	Recipes     RecipeRepo
	Idempotency IdempotencyRepo
	DB          *gorm.DB // nil for the memory backend
}

// Close releases the database connection pool, if any.
func (b *Backend) Close() error {
	if b == nil || b.DB == nil {
		return nil
	}
	sqlDB, err := b.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenBackend opens the configured store and, for SQL backends, ensures the
// schema exists.
func OpenBackend(opts BackendOptions) (*Backend, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch opts.Kind {
	case KindMemory:
		m := NewMemoryStore()
		log.Info().Str("backend", KindMemory).Msg("recipe store ready")
		return &Backend{Kind: KindMemory, Recipes: m, Idempotency: m}, nil
	case KindSQLite:
		db, err = OpenSQLite(opts.DBPath)
	case KindPostgres:
		db, err = OpenPostgres(opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Kind, err)
	}

	b := &Backend{Kind: opts.Kind, DB: db}
	if opts.Tracing {
		if err := EnableTracing(db); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("enable db tracing: %w", err)
		}
	}
	if err := AutoMigrate(db); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("migrate %s: %w", opts.Kind, err)
	}

	s := NewSQLStore(db)
	b.Recipes, b.Idempotency = s, s
	log.Info().Str("backend", opts.Kind).Msg("recipe store ready")
	return b, nil
}
