// pkg/engine/engine.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/canonical"
	"github.com/chartcsv/import-engine/pkg/detect"
	"github.com/chartcsv/import-engine/pkg/model"
	"github.com/chartcsv/import-engine/pkg/reconcile"
	"github.com/chartcsv/import-engine/pkg/schema"
	"github.com/chartcsv/import-engine/pkg/store"
)

// Options configures an Engine. Zero values pick the defaults.
type Options struct {
	MaxColumns                int
	MaxRows                   int
	DuplicateOverlapThreshold int
	HashAlgorithm             string
}

// DefaultOptions returns the engine defaults: 100 columns, 5000 rows,
// overlap threshold 2, sha256 hashing.
func DefaultOptions() Options {
	return Options{
		MaxColumns:                schema.DefaultMaxColumns,
		MaxRows:                   schema.DefaultMaxRows,
		DuplicateOverlapThreshold: reconcile.DefaultThreshold,
		HashAlgorithm:             canonical.DefaultAlgorithm,
	}
}

// Engine is the deduplication and import reconciliation core. It is
// stateless between calls: every detect/commit/reconcile request stands
// alone, and concurrency safety rests on the store's constraints.
type Engine struct {
	store       store.CorpusStore
	canon       *canonical.Canonicalizer
	registry    *schema.Registry
	hashIndexed *detect.HashIndexed
	fullScan    *detect.FullScan
	reconciler  *reconcile.Reconciler
	limits      schema.Limits
	logger      *zap.Logger
}

// New assembles an engine over the given corpus store.
func New(st store.CorpusStore, opts Options, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.L().Named("import-engine")
	}

	canon, err := canonical.New(opts.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	limits := schema.DefaultLimits()
	if opts.MaxColumns > 0 {
		limits.MaxColumns = opts.MaxColumns
	}
	if opts.MaxRows > 0 {
		limits.MaxRows = opts.MaxRows
	}

	return &Engine{
		store:       st,
		canon:       canon,
		registry:    schema.NewRegistry(st, limits, logger.Named("registry")),
		hashIndexed: detect.NewHashIndexed(st, canon, logger.Named("detect-hash")),
		fullScan:    detect.NewFullScan(st, logger.Named("detect-scan")),
		reconciler:  reconcile.New(st, canon, opts.DuplicateOverlapThreshold, logger.Named("reconciler")),
		limits:      limits,
		logger:      logger,
	}, nil
}

// CreateDataset registers a new dataset with a fixed column set.
func (e *Engine) CreateDataset(ctx context.Context, ownerID, name, description string, columns []string) (model.Dataset, error) {
	return e.registry.Create(ctx, ownerID, name, description, columns)
}

// FindDatasetsByColumns returns the owner's datasets whose column set
// matches the incoming one, order-independent.
func (e *Engine) FindDatasetsByColumns(ctx context.Context, ownerID string, columns []string) ([]model.Dataset, error) {
	return e.registry.FindMatching(ctx, ownerID, columns)
}

// CheckDuplicates runs duplicate detection for a batch without any side
// effects. Dataset scopes use the hash-indexed strategy; history scopes
// fall back to the legacy full scan.
func (e *Engine) CheckDuplicates(ctx context.Context, scope model.Scope, columns []string, rows []model.Row) (detect.Result, error) {
	if err := schema.ValidateBatch(columns, len(rows), e.limits); err != nil {
		return detect.Result{}, err
	}

	detector, err := e.detectorFor(ctx, scope, columns)
	if err != nil {
		return detect.Result{}, err
	}
	return detector.Detect(ctx, scope, columns, rows)
}

// ReconcileLogBatch runs the time-ordered batch heuristic and persists
// whatever survives it.
func (e *Engine) ReconcileLogBatch(ctx context.Context, batch model.LogBatch) (reconcile.Stats, error) {
	if err := schema.ValidateBatch(batch.Columns, len(batch.Records), e.limits); err != nil {
		return reconcile.Stats{}, err
	}
	return e.reconciler.Reconcile(ctx, batch)
}

// detectorFor picks the strategy for a scope. Dataset scopes also
// validate the incoming columns against the registered schema.
func (e *Engine) detectorFor(ctx context.Context, scope model.Scope, columns []string) (detect.Detector, error) {
	if !scope.IsDataset() {
		return e.fullScan, nil
	}

	ds, err := e.store.GetDataset(ctx, scope.OwnerID, scope.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", scope.DatasetID, err)
	}
	if err := e.registry.Validate(ds, columns); err != nil {
		return nil, err
	}
	return e.hashIndexed, nil
}
