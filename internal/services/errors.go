// Package services defines the business logic for recipes. This file
// centralizes service-level error values and types so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecipeNotFound indicates that no recipe exists with the given id.
	ErrRecipeNotFound = errors.New("recipe not found")

	// ErrInvalidRecipe is matched by every ValidationError.
	ErrInvalidRecipe = errors.New("invalid recipe")

	// ErrIdempotencyConflict is returned when an Idempotency-Key is replayed
	// but the recipe it produced no longer exists.
	ErrIdempotencyConflict = errors.New("idempotency key already used")
)

// ValidationError reports the input fields that are missing or blank.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "all fields are required"
	}
	return "all fields are required: missing " + strings.Join(e.Fields, ", ")
}

// Is makes errors.Is(err, ErrInvalidRecipe) true for any ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRecipe }

// StorageError wraps a fault raised by the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
