package reconcile

import (
	"context"
	"testing"

	"github.com/chartcsv/import-engine/pkg/canonical"
	"github.com/chartcsv/import-engine/pkg/model"
	"github.com/chartcsv/import-engine/pkg/store"
)

var logColumns = []string{"challenge", "weapon", "score"}

func record(challenge, weapon string, score float64) model.Row {
	return model.Row{
		"challenge": model.String(challenge),
		"weapon":    model.String(weapon),
		"score":     model.Number(score),
	}
}

func batch(owner string, ts int64, source string, records ...model.Row) model.LogBatch {
	return model.LogBatch{
		OwnerID:        owner,
		BatchTimestamp: ts,
		SourceName:     source,
		Columns:        logColumns,
		Records:        records,
	}
}

func newReconciler(t *testing.T, mem *store.Memory, threshold int) *Reconciler {
	t.Helper()
	canon, err := canonical.New("")
	if err != nil {
		t.Fatalf("canonical.New failed: %v", err)
	}
	return New(mem, canon, threshold, nil)
}

func TestReconcileFirstBatchImportsAll(t *testing.T) {
	mem := store.NewMemory()
	r := newReconciler(t, mem, 0)

	stats, err := r.Reconcile(context.Background(), batch("owner-1", 100, "f1",
		record("gridshot", "pistol", 10),
		record("gridshot", "rifle", 12),
		record("spidershot", "pistol", 8)))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if stats.ImportedCount != 3 {
		t.Fatalf("expected 3 imported, got %+v", stats)
	}
	if stats.Decision.Action != ActionImportAll {
		t.Fatalf("first batch of a series must import all, got %s", stats.Decision.Action)
	}
	if stats.Decision.Threshold != DefaultThreshold {
		t.Fatalf("threshold <= 0 should fall back to the default, got %d", stats.Decision.Threshold)
	}
}

func TestReconcileAlreadyProcessedGuard(t *testing.T) {
	mem := store.NewMemory()
	r := newReconciler(t, mem, 2)
	ctx := context.Background()

	first := batch("owner-1", 100, "f1", record("gridshot", "pistol", 10))
	if _, err := r.Reconcile(ctx, first); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	stats, err := r.Reconcile(ctx, first)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !stats.SkippedAsAlreadyProcessed {
		t.Fatalf("identical batch identity must be skipped, got %+v", stats)
	}
	if stats.ImportedCount != 0 {
		t.Fatalf("skipped batch must import nothing, got %d", stats.ImportedCount)
	}

	records, err := mem.ListRecordsBefore(ctx, "owner-1", 101)
	if err != nil {
		t.Fatalf("ListRecordsBefore failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("corpus must be unchanged by a skipped batch, got %d records", len(records))
	}
}

func TestReconcileIntraBatchDedup(t *testing.T) {
	mem := store.NewMemory()
	r := newReconciler(t, mem, 2)

	stats, err := r.Reconcile(context.Background(), batch("owner-1", 100, "f1",
		record("gridshot", "pistol", 10),
		record("gridshot", "pistol", 10),
		record("spidershot", "rifle", 5)))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if stats.IntraBatchDuplicatesRemoved != 1 {
		t.Fatalf("expected 1 intra-batch duplicate removed, got %+v", stats)
	}
	if stats.ImportedCount != 2 {
		t.Fatalf("expected 2 imported, got %d", stats.ImportedCount)
	}
}

func TestReconcileThresholdBoundary(t *testing.T) {
	k1 := record("gridshot", "pistol", 10)
	k2 := record("gridshot", "rifle", 12)
	k3 := record("spidershot", "pistol", 8)
	fresh := record("motion", "smg", 4)

	// Exactly 1 overlap stays below threshold 2: independent series,
	// import everything.
	t.Run("one overlap imports all", func(t *testing.T) {
		mem := store.NewMemory()
		r := newReconciler(t, mem, 2)
		ctx := context.Background()

		if _, err := r.Reconcile(ctx, batch("owner-1", 100, "f1", k1, k2, k3)); err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		stats, err := r.Reconcile(ctx, batch("owner-1", 200, "f2", k1, fresh))
		if err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}

		if stats.Decision.OverlapCount != 1 {
			t.Fatalf("expected overlap 1, got %d", stats.Decision.OverlapCount)
		}
		if stats.Decision.Action != ActionImportAll {
			t.Fatalf("one overlap must import all, got %s", stats.Decision.Action)
		}
		if stats.ImportedCount != 2 || stats.HistoryDuplicatesRemoved != 0 {
			t.Fatalf("expected both rows imported, got %+v", stats)
		}
	})

	// Exactly 2 overlaps hits the threshold: dedupe, keeping only the
	// unseen rows.
	t.Run("two overlaps dedupe", func(t *testing.T) {
		mem := store.NewMemory()
		r := newReconciler(t, mem, 2)
		ctx := context.Background()

		if _, err := r.Reconcile(ctx, batch("owner-1", 100, "f1", k1, k2, k3)); err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		stats, err := r.Reconcile(ctx, batch("owner-1", 200, "f2", k1, k2, fresh))
		if err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}

		if stats.Decision.OverlapCount != 2 {
			t.Fatalf("expected overlap 2, got %d", stats.Decision.OverlapCount)
		}
		if stats.Decision.Action != ActionDedupeAgainstHistory {
			t.Fatalf("two overlaps must dedupe, got %s", stats.Decision.Action)
		}
		if stats.ImportedCount != 1 || stats.HistoryDuplicatesRemoved != 2 {
			t.Fatalf("expected only the fresh row imported, got %+v", stats)
		}
	})
}

func TestReconcileLogBatchScenario(t *testing.T) {
	mem := store.NewMemory()
	r := newReconciler(t, mem, 2)
	ctx := context.Background()

	k1 := record("gridshot", "pistol", 10)
	k2 := record("gridshot", "rifle", 12)
	k3 := record("spidershot", "pistol", 8)
	k4 := record("motion", "smg", 4)
	k5 := record("flicking", "sniper", 2)

	// T1: no history, everything lands.
	stats, err := r.Reconcile(ctx, batch("owner-1", 100, "t1", k1, k2, k3))
	if err != nil {
		t.Fatalf("Reconcile T1 failed: %v", err)
	}
	if stats.ImportedCount != 3 {
		t.Fatalf("T1: expected 3 imported, got %+v", stats)
	}

	// T2: overlaps K1 and K2, threshold reached, only K4 lands.
	stats, err = r.Reconcile(ctx, batch("owner-1", 200, "t2", k1, k2, k4))
	if err != nil {
		t.Fatalf("Reconcile T2 failed: %v", err)
	}
	if stats.Decision.Action != ActionDedupeAgainstHistory || stats.ImportedCount != 1 {
		t.Fatalf("T2: expected dedupe with 1 import, got %+v", stats)
	}

	// T3: no overlap at all, imported wholesale.
	stats, err = r.Reconcile(ctx, batch("owner-1", 300, "t3", k5))
	if err != nil {
		t.Fatalf("Reconcile T3 failed: %v", err)
	}
	if stats.Decision.Action != ActionImportAll || stats.ImportedCount != 1 {
		t.Fatalf("T3: expected import all with 1 import, got %+v", stats)
	}

	history, err := mem.ListRecordsBefore(ctx, "owner-1", 301)
	if err != nil {
		t.Fatalf("ListRecordsBefore failed: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 stored records after the scenario, got %d", len(history))
	}
}

func TestReconcileOwnerIsolation(t *testing.T) {
	mem := store.NewMemory()
	r := newReconciler(t, mem, 2)
	ctx := context.Background()

	k1 := record("gridshot", "pistol", 10)
	k2 := record("gridshot", "rifle", 12)

	if _, err := r.Reconcile(ctx, batch("owner-x", 100, "f1", k1, k2)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	stats, err := r.Reconcile(ctx, batch("owner-y", 200, "f2", k1, k2))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if stats.Decision.OverlapCount != 0 || stats.ImportedCount != 2 {
		t.Fatalf("owner X's history must not affect owner Y, got %+v", stats)
	}
}
