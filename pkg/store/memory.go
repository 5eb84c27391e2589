// pkg/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chartcsv/import-engine/pkg/model"
	"github.com/chartcsv/import-engine/pkg/schema"
)

// Memory is an in-process CorpusStore used by tests and dry runs. It
// enforces the same uniqueness rules as the SQL backends: one dataset
// name per owner, and no unforced duplicate content hash per dataset.
type Memory struct {
	mu         sync.RWMutex
	datasets   map[string]model.Dataset        // dataset ID -> dataset
	rows       map[string][]model.CanonicalRow // dataset ID -> rows
	hashes     map[string]map[string]int       // dataset ID -> content hash -> copies stored
	uploads    map[string][]model.Upload       // owner ID -> uploads
	logRecords map[string][]model.LogRecord    // owner ID -> records
}

// NewMemory returns an empty in-memory corpus store.
func NewMemory() *Memory {
	return &Memory{
		datasets:   make(map[string]model.Dataset),
		rows:       make(map[string][]model.CanonicalRow),
		hashes:     make(map[string]map[string]int),
		uploads:    make(map[string][]model.Upload),
		logRecords: make(map[string][]model.LogRecord),
	}
}

func (m *Memory) CreateDataset(_ context.Context, ds model.Dataset) (model.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.datasets {
		if existing.OwnerID == ds.OwnerID && existing.Name == ds.Name {
			return model.Dataset{}, fmt.Errorf("dataset name %q already exists: %w", ds.Name, ErrConflict)
		}
	}

	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}
	ds.Columns = append([]string(nil), ds.Columns...)

	m.datasets[ds.ID] = ds
	m.hashes[ds.ID] = make(map[string]int)
	return ds, nil
}

func (m *Memory) GetDataset(_ context.Context, ownerID, datasetID string) (model.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.datasets[datasetID]
	if !ok || ds.OwnerID != ownerID {
		return model.Dataset{}, fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	return ds, nil
}

func (m *Memory) ListDatasets(_ context.Context, ownerID string) ([]model.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Dataset
	for _, ds := range m.datasets {
		if ds.OwnerID == ownerID {
			out = append(out, ds)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FindDatasetsByColumns(ctx context.Context, ownerID string, columns []string) ([]model.Dataset, error) {
	datasets, err := m.ListDatasets(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var matching []model.Dataset
	for _, ds := range datasets {
		if schema.ColumnsMatch(ds.Columns, columns) {
			matching = append(matching, ds)
		}
	}
	return matching, nil
}

func (m *Memory) DeleteDataset(_ context.Context, ownerID, datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.datasets[datasetID]
	if !ok || ds.OwnerID != ownerID {
		return fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	delete(m.datasets, datasetID)
	delete(m.rows, datasetID)
	delete(m.hashes, datasetID)
	return nil
}

func (m *Memory) ListRowHashes(_ context.Context, datasetID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := make(map[string]struct{}, len(m.hashes[datasetID]))
	for h := range m.hashes[datasetID] {
		set[h] = struct{}{}
	}
	return set, nil
}

func (m *Memory) ListRows(_ context.Context, datasetID string) ([]model.CanonicalRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]model.CanonicalRow(nil), m.rows[datasetID]...), nil
}

func (m *Memory) InsertRows(_ context.Context, rows []model.CanonicalRow, force bool) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// All-or-nothing: check the whole batch before touching state.
	if !force {
		pending := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			if _, stored := m.hashes[row.DatasetID][row.ContentHash]; stored {
				return 0, fmt.Errorf("row %s already stored: %w", row.ContentHash, ErrConflict)
			}
			if _, dup := pending[row.DatasetID+"/"+row.ContentHash]; dup {
				return 0, fmt.Errorf("row %s already stored: %w", row.ContentHash, ErrConflict)
			}
			pending[row.DatasetID+"/"+row.ContentHash] = struct{}{}
		}
	}

	for _, row := range rows {
		if m.hashes[row.DatasetID] == nil {
			m.hashes[row.DatasetID] = make(map[string]int)
		}
		m.hashes[row.DatasetID][row.ContentHash]++
		m.rows[row.DatasetID] = append(m.rows[row.DatasetID], model.CanonicalRow{
			DatasetID:   row.DatasetID,
			ContentHash: row.ContentHash,
			Payload:     row.Payload.Clone(),
		})
	}
	return len(rows), nil
}

func (m *Memory) ListUploads(_ context.Context, ownerID string) ([]model.Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]model.Upload(nil), m.uploads[ownerID]...), nil
}

func (m *Memory) InsertUpload(_ context.Context, up model.Upload) (model.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if up.ID == "" {
		up.ID = uuid.New().String()
	}
	if up.CreatedAt.IsZero() {
		up.CreatedAt = time.Now().UTC()
	}
	up.Columns = append([]string(nil), up.Columns...)
	m.uploads[up.OwnerID] = append(m.uploads[up.OwnerID], up)
	return up, nil
}

func (m *Memory) BatchExists(_ context.Context, ownerID string, batchTimestamp int64, sourceName string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.logRecords[ownerID] {
		if rec.BatchTimestamp == batchTimestamp && rec.SourceName == sourceName {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListRecordsBefore(_ context.Context, ownerID string, beforeTimestamp int64) ([]model.LogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.LogRecord
	for _, rec := range m.logRecords[ownerID] {
		if rec.BatchTimestamp < beforeTimestamp {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BatchTimestamp < out[j].BatchTimestamp })
	return out, nil
}

func (m *Memory) InsertLogRecords(_ context.Context, records []model.LogRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		if rec.UploadedAt.IsZero() {
			rec.UploadedAt = time.Now().UTC()
		}
		rec.Payload = rec.Payload.Clone()
		m.logRecords[rec.OwnerID] = append(m.logRecords[rec.OwnerID], rec)
	}
	return len(records), nil
}
