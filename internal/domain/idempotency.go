package domain

import "time"

// Idempotency records the recipe produced by a POST that carried an
// Idempotency-Key header. Retries with the same key inside the TTL window
// are answered with the original recipe instead of creating a new one.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idempotency_key"`
	RecipeID  int64     `gorm:"not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is no longer replayable at now.
func (i Idempotency) Expired(now time.Time) bool { return !now.Before(i.ExpiresAt) }
