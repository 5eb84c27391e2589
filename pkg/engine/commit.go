// pkg/engine/commit.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/detect"
	"github.com/chartcsv/import-engine/pkg/model"
	"github.com/chartcsv/import-engine/pkg/schema"
)

// State is where a commit attempt ended up. Every state except
// AwaitingConfirmation is terminal.
type State string

const (
	// StateAwaitingConfirmation means detection found duplicates and
	// nothing was persisted. The caller decides and resubmits; the
	// engine holds no pending state for them.
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateCommitted            State = "committed"
	// StateDiscarded means the confirmed selection left nothing to
	// persist.
	StateDiscarded State = "discarded"
	StateFailed    State = "failed"
)

// CommitOptions carries the caller's phase-2 decision. A zero value is
// a plain phase-1 submission: detect first, pause on duplicates.
type CommitOptions struct {
	// ForceUpload commits every row, duplicates included.
	ForceUpload bool
	// SelectedRows is the subset of the flagged duplicates the caller
	// chose to keep. Non-duplicate rows are always committed; flagged
	// rows outside the selection are discarded. A non-nil empty slice
	// keeps none of the duplicates.
	SelectedRows []model.Row
	// SourceName labels the stored upload on history-scoped commits.
	SourceName string
}

func (o CommitOptions) confirmed() bool {
	return o.ForceUpload || o.SelectedRows != nil
}

// CommitResult reports the outcome of one commit attempt. Duplicates is
// populated only when the attempt paused in AwaitingConfirmation.
type CommitResult struct {
	State         State          `json:"state"`
	InsertedCount int            `json:"insertedCount"`
	Duplicates    *detect.Result `json:"duplicates,omitempty"`
}

// Commit runs the two-phase protocol for one batch. Without options it
// detects duplicates and either persists directly (none found) or stops
// in AwaitingConfirmation with the detection result. With a phase-2
// decision it persists the chosen rows. Persistence is all-or-nothing;
// on a storage error nothing is retried and the state is Failed.
func (e *Engine) Commit(ctx context.Context, scope model.Scope, columns []string, rows []model.Row, opts CommitOptions) (CommitResult, error) {
	if err := schema.ValidateBatch(columns, len(rows), e.limits); err != nil {
		return CommitResult{State: StateFailed}, err
	}

	detector, err := e.detectorFor(ctx, scope, columns)
	if err != nil {
		return CommitResult{State: StateFailed}, err
	}

	if opts.ForceUpload {
		return e.persist(ctx, scope, columns, rows, opts.SourceName, true)
	}

	result, err := detector.Detect(ctx, scope, columns, rows)
	if err != nil {
		return CommitResult{State: StateFailed}, err
	}

	if !result.HasDuplicates {
		return e.persist(ctx, scope, columns, rows, opts.SourceName, false)
	}

	if !opts.confirmed() {
		dup := result
		e.logger.Info("duplicates found, awaiting confirmation",
			zap.String("owner_id", scope.OwnerID),
			zap.String("dataset_id", scope.DatasetID),
			zap.Int("duplicate_count", dup.DuplicateCount))
		return CommitResult{State: StateAwaitingConfirmation, Duplicates: &dup}, nil
	}

	chosen := e.applySelection(scope, columns, rows, result, opts.SelectedRows)
	if len(chosen) == 0 {
		e.logger.Info("selection kept no rows, discarding batch",
			zap.String("owner_id", scope.OwnerID),
			zap.String("dataset_id", scope.DatasetID))
		return CommitResult{State: StateDiscarded}, nil
	}
	// The selection may deliberately retain duplicate content, so the
	// insert must not trip the uniqueness backstop.
	return e.persist(ctx, scope, columns, chosen, opts.SourceName, true)
}

// applySelection keeps every non-duplicate row plus the flagged rows the
// caller selected. Selection matches on canonical hash, so the caller
// may resubmit equivalent rows rather than identical map values.
func (e *Engine) applySelection(scope model.Scope, columns []string, rows []model.Row, result detect.Result, selected []model.Row) []model.Row {
	flagged := make(map[string]bool, len(result.DuplicateRows))
	for _, row := range result.DuplicateRows {
		flagged[e.canon.Hash(row, columns)] = true
	}
	keep := make(map[string]bool, len(selected))
	for _, row := range selected {
		keep[e.canon.Hash(row, columns)] = true
	}

	chosen := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		hash := e.canon.Hash(row, columns)
		if flagged[hash] && !keep[hash] {
			continue
		}
		chosen = append(chosen, row)
	}
	return chosen
}

// persist is phase 3. Dataset scopes canonicalize and append through the
// hash-constrained table; history scopes store a whole upload with no
// uniqueness backstop.
func (e *Engine) persist(ctx context.Context, scope model.Scope, columns []string, rows []model.Row, sourceName string, force bool) (CommitResult, error) {
	var inserted int

	if scope.IsDataset() {
		canonical := make([]model.CanonicalRow, 0, len(rows))
		seen := make(map[string]bool, len(rows))
		for _, row := range rows {
			cr := e.canon.Canonicalize(scope.DatasetID, row, columns)
			// An unforced insert would trip the (dataset, hash)
			// constraint on a within-batch repeat, so collapse those
			// here. Forced inserts keep every copy.
			if !force && seen[cr.ContentHash] {
				continue
			}
			seen[cr.ContentHash] = true
			canonical = append(canonical, cr)
		}

		n, err := e.store.InsertRows(ctx, canonical, force)
		if err != nil {
			return CommitResult{State: StateFailed}, fmt.Errorf("insert rows: %w", err)
		}
		inserted = n
	} else {
		up, err := e.store.InsertUpload(ctx, model.Upload{
			OwnerID:  scope.OwnerID,
			FileName: sourceName,
			Columns:  append([]string(nil), columns...),
			Rows:     rows,
		})
		if err != nil {
			return CommitResult{State: StateFailed}, fmt.Errorf("insert upload: %w", err)
		}
		inserted = len(up.Rows)
	}

	e.logger.Info("batch committed",
		zap.String("owner_id", scope.OwnerID),
		zap.String("dataset_id", scope.DatasetID),
		zap.Int("inserted", inserted),
		zap.Bool("forced", force))

	return CommitResult{State: StateCommitted, InsertedCount: inserted}, nil
}
