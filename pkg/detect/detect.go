// pkg/detect/detect.go
package detect

import (
	"context"

	"github.com/chartcsv/import-engine/pkg/model"
)

// Result summarizes a duplicate check for one incoming batch of rows.
type Result struct {
	HasDuplicates      bool        `json:"hasDuplicates"`
	DuplicateRows      []model.Row `json:"duplicateRows"`
	DuplicateCount     int         `json:"duplicateCount"`
	ExistingCorpusSize int         `json:"existingCorpusSize"`
}

// Detector flags incoming rows that already exist in the stored corpus
// for the given scope.
type Detector interface {
	Detect(ctx context.Context, scope model.Scope, columns []string, rows []model.Row) (Result, error)
}
