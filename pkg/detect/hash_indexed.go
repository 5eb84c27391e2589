// pkg/detect/hash_indexed.go
package detect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/canonical"
	"github.com/chartcsv/import-engine/pkg/model"
)

// HashSource provides the set of content hashes already stored for a
// dataset.
type HashSource interface {
	ListRowHashes(ctx context.Context, datasetID string) (map[string]struct{}, error)
}

// HashIndexed detects duplicates by comparing canonical content hashes
// against the stored hash index. One round trip per batch regardless of
// corpus size.
type HashIndexed struct {
	source HashSource
	canon  *canonical.Canonicalizer
	logger *zap.Logger
}

func NewHashIndexed(source HashSource, canon *canonical.Canonicalizer, logger *zap.Logger) *HashIndexed {
	if logger == nil {
		logger = zap.L().Named("detect-hash")
	}
	return &HashIndexed{
		source: source,
		canon:  canon,
		logger: logger,
	}
}

// Detect hashes each incoming row and flags it when the hash already
// exists in the corpus. Within-batch repeats collapse to a single hash
// lookup; a row only counts as a duplicate against stored data.
func (d *HashIndexed) Detect(ctx context.Context, scope model.Scope, columns []string, rows []model.Row) (Result, error) {
	existing, err := d.source.ListRowHashes(ctx, scope.DatasetID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load stored hashes: %w", err)
	}

	result := Result{
		DuplicateRows:      []model.Row{},
		ExistingCorpusSize: len(existing),
	}

	checked := make(map[string]bool, len(rows))
	for _, row := range rows {
		hash := d.canon.Hash(row, columns)
		if checked[hash] {
			continue
		}
		checked[hash] = true
		if _, stored := existing[hash]; stored {
			result.DuplicateRows = append(result.DuplicateRows, row)
		}
	}

	result.DuplicateCount = len(result.DuplicateRows)
	result.HasDuplicates = result.DuplicateCount > 0

	d.logger.Debug("hash-indexed duplicate check complete",
		zap.Int("incoming_rows", len(rows)),
		zap.Int("duplicates", result.DuplicateCount),
		zap.Int("corpus_size", result.ExistingCorpusSize))

	return result, nil
}
