// pkg/reconcile/reconcile.go
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/canonical"
	"github.com/chartcsv/import-engine/pkg/model"
)

// Action is the outcome of the overlap-threshold decision for one batch.
type Action string

const (
	// ActionImportAll imports every record surviving intra-batch dedup;
	// the batch is treated as an independent series.
	ActionImportAll Action = "import_all"
	// ActionDedupeAgainstHistory filters out records whose composite key
	// already appears in the owner's earlier batches.
	ActionDedupeAgainstHistory Action = "dedupe_against_history"
)

// DefaultThreshold is the overlap count at which a batch is treated as a
// continuation of prior data rather than a new series. Tuned empirically
// for periodic full re-exports; keep it configurable.
const DefaultThreshold = 2

// Decision records how the threshold heuristic classified one batch.
// Recomputed per batch, never persisted.
type Decision struct {
	OverlapCount int    `json:"overlapCount"`
	Threshold    int    `json:"threshold"`
	Action       Action `json:"action"`
}

// Stats summarizes one reconciliation call.
type Stats struct {
	ImportedCount               int      `json:"importedCount"`
	SkippedAsAlreadyProcessed   bool     `json:"skippedAsAlreadyProcessed"`
	IntraBatchDuplicatesRemoved int      `json:"intraBatchDuplicatesRemoved"`
	HistoryDuplicatesRemoved    int      `json:"historyDuplicatesRemoved"`
	Decision                    Decision `json:"decision"`
}

// Store is the corpus access the reconciler needs.
type Store interface {
	BatchExists(ctx context.Context, ownerID string, batchTimestamp int64, sourceName string) (bool, error)
	ListRecordsBefore(ctx context.Context, ownerID string, batchTimestamp int64) ([]model.LogRecord, error)
	InsertLogRecords(ctx context.Context, records []model.LogRecord) (int, error)
}

// Reconciler decides, per time-ordered log batch, whether to dedupe
// against the owner's history or import the batch wholesale.
type Reconciler struct {
	store     Store
	canon     *canonical.Canonicalizer
	threshold int
	logger    *zap.Logger
}

func New(store Store, canon *canonical.Canonicalizer, threshold int, logger *zap.Logger) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.L().Named("reconciler")
	}
	return &Reconciler{
		store:     store,
		canon:     canon,
		threshold: threshold,
		logger:    logger,
	}
}

type keyedRecord struct {
	key string
	row model.Row
}

// Reconcile runs the already-processed guard, intra-batch dedup, the
// history overlap heuristic, and persists the surviving records tagged
// with the batch identity.
func (r *Reconciler) Reconcile(ctx context.Context, batch model.LogBatch) (Stats, error) {
	stats := Stats{
		Decision: Decision{Threshold: r.threshold, Action: ActionImportAll},
	}

	exists, err := r.store.BatchExists(ctx, batch.OwnerID, batch.BatchTimestamp, batch.SourceName)
	if err != nil {
		return stats, fmt.Errorf("failed to check batch identity: %w", err)
	}
	if exists {
		stats.SkippedAsAlreadyProcessed = true
		r.logger.Info("batch already processed, skipping",
			zap.String("owner_id", batch.OwnerID),
			zap.Int64("batch_timestamp", batch.BatchTimestamp),
			zap.String("source_name", batch.SourceName))
		return stats, nil
	}

	// Intra-batch dedup on composite key (all fields except the batch
	// timestamp).
	seen := make(map[string]bool, len(batch.Records))
	deduped := make([]keyedRecord, 0, len(batch.Records))
	for _, rec := range batch.Records {
		key := r.canon.Hash(rec, batch.Columns)
		if seen[key] {
			stats.IntraBatchDuplicatesRemoved++
			continue
		}
		seen[key] = true
		deduped = append(deduped, keyedRecord{key: key, row: rec})
	}

	history, err := r.store.ListRecordsBefore(ctx, batch.OwnerID, batch.BatchTimestamp)
	if err != nil {
		return stats, fmt.Errorf("failed to load record history: %w", err)
	}

	toImport := deduped
	if len(history) > 0 {
		historyKeys := make(map[string]bool, len(history))
		for _, rec := range history {
			historyKeys[rec.CompositeKey] = true
		}

		overlap := 0
		for _, rec := range deduped {
			if historyKeys[rec.key] {
				overlap++
			}
		}
		stats.Decision.OverlapCount = overlap

		if overlap >= r.threshold {
			stats.Decision.Action = ActionDedupeAgainstHistory
			toImport = make([]keyedRecord, 0, len(deduped))
			for _, rec := range deduped {
				if historyKeys[rec.key] {
					stats.HistoryDuplicatesRemoved++
					continue
				}
				toImport = append(toImport, rec)
			}
		}
	}

	records := make([]model.LogRecord, 0, len(toImport))
	for _, rec := range toImport {
		records = append(records, model.LogRecord{
			OwnerID:        batch.OwnerID,
			BatchTimestamp: batch.BatchTimestamp,
			SourceName:     batch.SourceName,
			CompositeKey:   rec.key,
			Payload:        rec.row,
		})
	}

	if len(records) > 0 {
		inserted, err := r.store.InsertLogRecords(ctx, records)
		if err != nil {
			return stats, fmt.Errorf("failed to persist batch records: %w", err)
		}
		stats.ImportedCount = inserted
	}

	r.logger.Info("batch reconciled",
		zap.String("owner_id", batch.OwnerID),
		zap.Int64("batch_timestamp", batch.BatchTimestamp),
		zap.String("action", string(stats.Decision.Action)),
		zap.Int("overlap_count", stats.Decision.OverlapCount),
		zap.Int("imported", stats.ImportedCount),
		zap.Int("intra_batch_removed", stats.IntraBatchDuplicatesRemoved),
		zap.Int("history_removed", stats.HistoryDuplicatesRemoved))

	return stats, nil
}
