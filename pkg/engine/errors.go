// pkg/engine/errors.go
package engine

import (
	"errors"

	"github.com/chartcsv/import-engine/pkg/schema"
	"github.com/chartcsv/import-engine/pkg/store"
)

// Category buckets engine errors for callers that map them onto a
// transport surface. Validation and schema errors are actionable by the
// caller; storage errors should be logged in full and surfaced
// generically.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategorySchemaMismatch Category = "schema_mismatch"
	CategoryNotFound       Category = "not_found"
	CategoryConflict       Category = "conflict"
	CategoryStorage        Category = "storage"
)

// Classify maps an error returned by the engine onto its category.
func Classify(err error) Category {
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		return CategoryValidation
	}
	var mismatchErr *schema.MismatchError
	if errors.As(err, &mismatchErr) {
		return CategorySchemaMismatch
	}
	if errors.Is(err, store.ErrNotFound) {
		return CategoryNotFound
	}
	if errors.Is(err, store.ErrConflict) {
		return CategoryConflict
	}
	return CategoryStorage
}
