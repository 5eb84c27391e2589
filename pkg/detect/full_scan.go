// pkg/detect/full_scan.go
package detect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/model"
	"github.com/chartcsv/import-engine/pkg/schema"
)

// UploadSource provides an owner's stored upload history.
type UploadSource interface {
	ListUploads(ctx context.Context, ownerID string) ([]model.Upload, error)
}

// FullScan detects duplicates by comparing incoming rows field-by-field
// against every stored row from the owner's uploads that share the same
// column set. This is the legacy path: O(batches x storedRows x
// incomingRows) with no early exit, kept for history-scoped checks where
// no dataset schema exists. Dataset-scoped callers should use HashIndexed.
type FullScan struct {
	source UploadSource
	logger *zap.Logger
}

func NewFullScan(source UploadSource, logger *zap.Logger) *FullScan {
	if logger == nil {
		logger = zap.L().Named("detect-scan")
	}
	return &FullScan{
		source: source,
		logger: logger,
	}
}

func (d *FullScan) Detect(ctx context.Context, scope model.Scope, columns []string, rows []model.Row) (Result, error) {
	uploads, err := d.source.ListUploads(ctx, scope.OwnerID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load upload history: %w", err)
	}

	result := Result{DuplicateRows: []model.Row{}}

	flagged := make([]bool, len(rows))
	comparable := 0
	for _, upload := range uploads {
		if !schema.ColumnsMatch(upload.Columns, columns) {
			continue
		}
		comparable++
		result.ExistingCorpusSize += len(upload.Rows)

		for _, stored := range upload.Rows {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			for i, incoming := range rows {
				if flagged[i] {
					continue
				}
				if incoming.Equivalent(stored, columns) {
					flagged[i] = true
					result.DuplicateRows = append(result.DuplicateRows, incoming)
				}
			}
		}
	}

	result.DuplicateCount = len(result.DuplicateRows)
	result.HasDuplicates = result.DuplicateCount > 0

	d.logger.Debug("full-scan duplicate check complete",
		zap.Int("uploads_compared", comparable),
		zap.Int("incoming_rows", len(rows)),
		zap.Int("duplicates", result.DuplicateCount))

	return result, nil
}
