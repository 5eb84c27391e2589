package schema

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chartcsv/import-engine/pkg/model"
)

type fakeDatasetStore struct {
	datasets []model.Dataset
}

func (f *fakeDatasetStore) CreateDataset(_ context.Context, ds model.Dataset) (model.Dataset, error) {
	ds.ID = fmt.Sprintf("ds-%d", len(f.datasets)+1)
	f.datasets = append(f.datasets, ds)
	return ds, nil
}

func (f *fakeDatasetStore) ListDatasets(_ context.Context, ownerID string) ([]model.Dataset, error) {
	var out []model.Dataset
	for _, ds := range f.datasets {
		if ds.OwnerID == ownerID {
			out = append(out, ds)
		}
	}
	return out, nil
}

func TestRegistryCreateRejectsBlankName(t *testing.T) {
	r := NewRegistry(&fakeDatasetStore{}, DefaultLimits(), nil)

	_, err := r.Create(context.Background(), "owner-1", "   ", "", []string{"a"})
	if err == nil {
		t.Fatalf("expected error for blank dataset name")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Rule != RuleEmptyName {
		t.Fatalf("expected %s violation, got %v", RuleEmptyName, err)
	}
}

func TestRegistryCreateTrimsAndCopies(t *testing.T) {
	st := &fakeDatasetStore{}
	r := NewRegistry(st, DefaultLimits(), nil)

	columns := []string{"name", "age"}
	ds, err := r.Create(context.Background(), "owner-1", "  scores  ", " test data ", columns)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ds.Name != "scores" {
		t.Fatalf("expected trimmed name, got %q", ds.Name)
	}

	columns[0] = "mutated"
	if st.datasets[0].Columns[0] != "name" {
		t.Fatalf("registry must copy the column slice")
	}
}

func TestRegistryValidateMismatch(t *testing.T) {
	r := NewRegistry(&fakeDatasetStore{}, DefaultLimits(), nil)
	ds := model.Dataset{ID: "ds-1", Name: "scores", Columns: []string{"name", "age"}}

	if err := r.Validate(ds, []string{"age", "name"}); err != nil {
		t.Fatalf("order-independent match should pass, got %v", err)
	}

	err := r.Validate(ds, []string{"name", "score"})
	var merr *MismatchError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if merr.DatasetID != "ds-1" {
		t.Fatalf("expected dataset ID in mismatch error, got %q", merr.DatasetID)
	}
}

func TestRegistryFindMatching(t *testing.T) {
	st := &fakeDatasetStore{}
	r := NewRegistry(st, DefaultLimits(), nil)
	ctx := context.Background()

	if _, err := r.Create(ctx, "owner-1", "scores", "", []string{"name", "age"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := r.Create(ctx, "owner-1", "other", "", []string{"x"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := r.Create(ctx, "owner-2", "scores", "", []string{"name", "age"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	matching, err := r.FindMatching(ctx, "owner-1", []string{"age", "name"})
	if err != nil {
		t.Fatalf("FindMatching failed: %v", err)
	}
	if len(matching) != 1 || matching[0].Name != "scores" {
		t.Fatalf("expected owner-1's scores dataset, got %v", matching)
	}
}
