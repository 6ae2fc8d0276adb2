// Package repo implements the data persistence layer for recipes. This file
// provides repository helpers for the Idempotency model used to implement
// safe-retry semantics for POST /recipes.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// ErrDuplicate indicates that a live idempotency record already exists for
// the given key.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record for key or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency records that key produced recipeID with the given HTTP
// status. An expired record for the same key is replaced. A live one yields
// ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, key string, recipeID int64, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Key:       key,
		RecipeID:  recipeID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	tx := db.WithContext(ctx)
	if err := tx.Where("key = ? AND expires_at <= ?", key, now).Delete(&domain.Idempotency{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Create(rec).Error; err != nil {
		if isDuplicateErr(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// isDuplicateErr detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value violates unique constraint"
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
