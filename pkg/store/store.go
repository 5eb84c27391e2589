// pkg/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/chartcsv/import-engine/pkg/model"
)

// Sentinel conditions every backend maps its driver errors onto.
var (
	// ErrNotFound marks a missing dataset or record. Cross-owner reads
	// surface as not-found, never as someone else's data.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict marks a unique-constraint violation: a concurrent
	// insert of the same content, or a duplicate dataset name. The
	// (dataset_id, row_hash) constraint is the backstop that turns a
	// detect/commit race into this error instead of a silent double
	// store.
	ErrConflict = errors.New("store: unique constraint violation")
)

// CorpusStore is the persistence port for the import engine. The engine
// only ever reads and appends through it: deduplication never mutates
// or deletes stored rows. InsertRows and InsertLogRecords are
// all-or-nothing per call.
type CorpusStore interface {
	// Datasets.
	CreateDataset(ctx context.Context, ds model.Dataset) (model.Dataset, error)
	GetDataset(ctx context.Context, ownerID, datasetID string) (model.Dataset, error)
	ListDatasets(ctx context.Context, ownerID string) ([]model.Dataset, error)
	FindDatasetsByColumns(ctx context.Context, ownerID string, columns []string) ([]model.Dataset, error)
	// DeleteDataset removes a dataset and cascades to its rows. It is
	// an owner action, not part of deduplication.
	DeleteDataset(ctx context.Context, ownerID, datasetID string) error

	// Dataset-scoped rows (hash-indexed strategy).
	ListRowHashes(ctx context.Context, datasetID string) (map[string]struct{}, error)
	ListRows(ctx context.Context, datasetID string) ([]model.CanonicalRow, error)
	// InsertRows appends canonical rows. With force false a content
	// hash already present in the dataset fails the whole call with
	// ErrConflict; with force true duplicates are stored deliberately.
	InsertRows(ctx context.Context, rows []model.CanonicalRow, force bool) (int, error)

	// Legacy whole-history uploads (full-scan strategy). No uniqueness
	// backstop exists on this path.
	ListUploads(ctx context.Context, ownerID string) ([]model.Upload, error)
	InsertUpload(ctx context.Context, up model.Upload) (model.Upload, error)

	// Time-ordered log records.
	BatchExists(ctx context.Context, ownerID string, batchTimestamp int64, sourceName string) (bool, error)
	// ListRecordsBefore returns the owner's records with a strictly
	// earlier batch timestamp, ascending by timestamp.
	ListRecordsBefore(ctx context.Context, ownerID string, beforeTimestamp int64) ([]model.LogRecord, error)
	InsertLogRecords(ctx context.Context, records []model.LogRecord) (int, error)
}
