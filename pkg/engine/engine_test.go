package engine

import (
	"context"
	"testing"

	"github.com/chartcsv/import-engine/pkg/model"
	"github.com/chartcsv/import-engine/pkg/store"
)

var columns = []string{"name", "age"}

func row(name, age string) model.Row {
	return model.Row{"name": model.String(name), "age": model.String(age)}
}

func newEngine(t *testing.T) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	eng, err := New(mem, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return eng, mem
}

func createDataset(t *testing.T, eng *Engine, owner string) model.Dataset {
	t.Helper()
	ds, err := eng.CreateDataset(context.Background(), owner, "people", "", columns)
	if err != nil {
		t.Fatalf("CreateDataset failed: %v", err)
	}
	return ds
}

func corpusSize(t *testing.T, mem *store.Memory, datasetID string) int {
	t.Helper()
	rows, err := mem.ListRows(context.Background(), datasetID)
	if err != nil {
		t.Fatalf("ListRows failed: %v", err)
	}
	return len(rows)
}

func TestCommitEndToEnd(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()
	ds := createDataset(t, eng, "owner-1")
	scope := model.DatasetScope("owner-1", ds.ID)

	// Fresh upload: no duplicates, auto-committed.
	result, err := eng.Commit(ctx, scope, columns, []model.Row{row("Ann", "30")}, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.State != StateCommitted || result.InsertedCount != 1 {
		t.Fatalf("expected committed with 1 insert, got %+v", result)
	}
	if corpusSize(t, mem, ds.ID) != 1 {
		t.Fatalf("expected corpus size 1")
	}

	// Same row again: pauses, nothing persisted.
	result, err = eng.Commit(ctx, scope, columns, []model.Row{row("Ann", "30")}, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.State != StateAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", result.State)
	}
	if result.Duplicates == nil || result.Duplicates.DuplicateCount != 1 {
		t.Fatalf("expected 1 flagged duplicate, got %+v", result.Duplicates)
	}
	if corpusSize(t, mem, ds.ID) != 1 {
		t.Fatalf("awaiting confirmation must not mutate the corpus")
	}

	// Force upload: duplicate content retained by explicit choice.
	result, err = eng.Commit(ctx, scope, columns, []model.Row{row("Ann", "30")}, CommitOptions{ForceUpload: true})
	if err != nil {
		t.Fatalf("forced Commit failed: %v", err)
	}
	if result.State != StateCommitted || result.InsertedCount != 1 {
		t.Fatalf("expected forced commit of 1 row, got %+v", result)
	}
	if corpusSize(t, mem, ds.ID) != 2 {
		t.Fatalf("expected corpus size 2 after force upload, got %d", corpusSize(t, mem, ds.ID))
	}
}

func TestCommitSelectiveRoundTrip(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()
	ds := createDataset(t, eng, "owner-1")
	scope := model.DatasetScope("owner-1", ds.ID)

	r1 := row("Ann", "30")
	r2 := row("Bob", "25")
	r3 := row("Cara", "41")
	if _, err := eng.Commit(ctx, scope, columns, []model.Row{r1, r2, r3}, CommitOptions{}); err != nil {
		t.Fatalf("seeding commit failed: %v", err)
	}

	fresh1 := row("Dan", "19")
	fresh2 := row("Eve", "55")
	incoming := []model.Row{r1, r2, r3, fresh1, fresh2}

	result, err := eng.Commit(ctx, scope, columns, incoming, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.State != StateAwaitingConfirmation || result.Duplicates.DuplicateCount != 3 {
		t.Fatalf("expected 3 flagged duplicates, got %+v", result)
	}

	// Keep r1 and r3; r2 is discarded, the fresh rows always land.
	result, err = eng.Commit(ctx, scope, columns, incoming, CommitOptions{SelectedRows: []model.Row{r1, r3}})
	if err != nil {
		t.Fatalf("selective Commit failed: %v", err)
	}
	if result.State != StateCommitted || result.InsertedCount != 4 {
		t.Fatalf("expected 4 rows committed, got %+v", result)
	}

	// 3 seeded + (r1, r3, fresh1, fresh2); r2 only has its seeded copy.
	if corpusSize(t, mem, ds.ID) != 7 {
		t.Fatalf("expected corpus size 7, got %d", corpusSize(t, mem, ds.ID))
	}
}

func TestCommitEmptySelectionDiscards(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()
	ds := createDataset(t, eng, "owner-1")
	scope := model.DatasetScope("owner-1", ds.ID)

	if _, err := eng.Commit(ctx, scope, columns, []model.Row{row("Ann", "30")}, CommitOptions{}); err != nil {
		t.Fatalf("seeding commit failed: %v", err)
	}

	result, err := eng.Commit(ctx, scope, columns, []model.Row{row("Ann", "30")},
		CommitOptions{SelectedRows: []model.Row{}})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.State != StateDiscarded {
		t.Fatalf("empty selection over an all-duplicate batch must discard, got %s", result.State)
	}
	if corpusSize(t, mem, ds.ID) != 1 {
		t.Fatalf("discarded batch must not mutate the corpus")
	}
}

func TestCommitUnforcedDuplicateNeverMutates(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()
	ds := createDataset(t, eng, "owner-1")
	scope := model.DatasetScope("owner-1", ds.ID)

	batch := []model.Row{row("Ann", "30"), row("Bob", "25")}
	if _, err := eng.Commit(ctx, scope, columns, batch, CommitOptions{}); err != nil {
		t.Fatalf("seeding commit failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := eng.Commit(ctx, scope, columns, batch, CommitOptions{})
		if err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if result.State != StateAwaitingConfirmation {
			t.Fatalf("expected awaiting confirmation, got %s", result.State)
		}
	}
	if corpusSize(t, mem, ds.ID) != 2 {
		t.Fatalf("repeated unforced commits of duplicates must not grow the corpus")
	}
}

func TestCommitSchemaMismatch(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	ds := createDataset(t, eng, "owner-1")
	scope := model.DatasetScope("owner-1", ds.ID)

	_, err := eng.Commit(ctx, scope, []string{"name", "score"},
		[]model.Row{{"name": model.String("Ann"), "score": model.String("9")}}, CommitOptions{})
	if err == nil {
		t.Fatalf("expected schema mismatch error")
	}
	if got := Classify(err); got != CategorySchemaMismatch {
		t.Fatalf("expected %s, got %s", CategorySchemaMismatch, got)
	}
}

func TestCommitValidation(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	scope := model.HistoryScope("owner-1")

	_, err := eng.Commit(ctx, scope, nil, nil, CommitOptions{})
	if err == nil {
		t.Fatalf("expected validation error for empty input")
	}
	if got := Classify(err); got != CategoryValidation {
		t.Fatalf("expected %s, got %s", CategoryValidation, got)
	}
}

func TestCommitHistoryScope(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()
	scope := model.HistoryScope("owner-1")

	result, err := eng.Commit(ctx, scope, columns, []model.Row{row("Ann", "30")},
		CommitOptions{SourceName: "first.csv"})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.State != StateCommitted || result.InsertedCount != 1 {
		t.Fatalf("expected committed upload, got %+v", result)
	}

	// Re-uploading the same content pauses on the full-scan path too.
	result, err = eng.Commit(ctx, scope, columns, []model.Row{row("Ann", "30")}, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.State != StateAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", result.State)
	}

	uploads, err := mem.ListUploads(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListUploads failed: %v", err)
	}
	if len(uploads) != 1 || uploads[0].FileName != "first.csv" {
		t.Fatalf("expected a single stored upload named first.csv, got %+v", uploads)
	}
}

func TestCheckDuplicatesIsPureRead(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()
	ds := createDataset(t, eng, "owner-1")
	scope := model.DatasetScope("owner-1", ds.ID)

	result, err := eng.CheckDuplicates(ctx, scope, columns, []model.Row{row("Ann", "30")})
	if err != nil {
		t.Fatalf("CheckDuplicates failed: %v", err)
	}
	if result.HasDuplicates {
		t.Fatalf("empty corpus cannot have duplicates")
	}
	if corpusSize(t, mem, ds.ID) != 0 {
		t.Fatalf("detection must not persist anything")
	}
}
