// pkg/schema/registry.go
package schema

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/model"
)

// MismatchError reports that an incoming column set does not match the
// target dataset's registered columns. The caller must pick a
// compatible dataset or create a new one.
type MismatchError struct {
	DatasetID   string
	DatasetName string
	Want        []string
	Got         []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("columns %v do not match dataset %q columns %v", e.Got, e.DatasetName, e.Want)
}

// DatasetStore is the slice of the corpus store the registry needs.
type DatasetStore interface {
	CreateDataset(ctx context.Context, ds model.Dataset) (model.Dataset, error)
	ListDatasets(ctx context.Context, ownerID string) ([]model.Dataset, error)
}

// Registry associates datasets with their fixed column sets and
// validates incoming batches against them.
type Registry struct {
	store  DatasetStore
	limits Limits
	logger *zap.Logger
}

// NewRegistry creates a schema registry over the given dataset store.
func NewRegistry(store DatasetStore, limits Limits, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, limits: limits, logger: logger}
}

// Create registers a new dataset with a fixed column set. The name must
// be non-blank and unique per owner; the store enforces uniqueness.
func (r *Registry) Create(ctx context.Context, ownerID, name, description string, columns []string) (model.Dataset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Dataset{}, violation(RuleEmptyName, "dataset name cannot be empty")
	}
	if err := ValidateColumns(columns, r.limits); err != nil {
		return model.Dataset{}, err
	}

	ds, err := r.store.CreateDataset(ctx, model.Dataset{
		OwnerID:     ownerID,
		Name:        name,
		Columns:     append([]string(nil), columns...),
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return model.Dataset{}, fmt.Errorf("create dataset %q: %w", name, err)
	}

	r.logger.Info("Created dataset",
		zap.String("datasetID", ds.ID),
		zap.String("name", ds.Name),
		zap.Int("columns", len(ds.Columns)))
	return ds, nil
}

// Validate checks an incoming column set against a dataset's registered
// columns, order-independent.
func (r *Registry) Validate(ds model.Dataset, incoming []string) error {
	if ColumnsMatch(ds.Columns, incoming) {
		return nil
	}
	return &MismatchError{
		DatasetID:   ds.ID,
		DatasetName: ds.Name,
		Want:        ds.Columns,
		Got:         incoming,
	}
}

// FindMatching returns the owner's datasets whose column set equals the
// incoming one. Callers use this to offer a choice between reusing a
// compatible dataset and creating a new one.
func (r *Registry) FindMatching(ctx context.Context, ownerID string, columns []string) ([]model.Dataset, error) {
	datasets, err := r.store.ListDatasets(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	var matching []model.Dataset
	for _, ds := range datasets {
		if ColumnsMatch(ds.Columns, columns) {
			matching = append(matching, ds)
		}
	}
	return matching, nil
}
