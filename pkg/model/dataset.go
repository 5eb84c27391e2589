// pkg/model/dataset.go
package model

import "time"

// Dataset is a named, schema-fixed collection of rows owned by one
// user. Columns are fixed at creation; rows committed to the dataset
// must carry exactly the same column set, order-independent.
type Dataset struct {
	ID          string
	OwnerID     string
	Name        string
	Columns     []string
	Description string
	CreatedAt   time.Time
}

// CanonicalRow is a row bound to its dataset scope together with the
// deterministic content hash of its normalized values. Within one
// dataset the hash identifies the row content.
type CanonicalRow struct {
	DatasetID   string
	ContentHash string
	Payload     Row
}

// Upload is one batch from the legacy, dataset-less import path: the
// raw column list and rows of a single file, kept whole so the
// full-scan duplicate strategy can replay an owner's history.
type Upload struct {
	ID        string
	OwnerID   string
	FileName  string
	Columns   []string
	Rows      []Row
	CreatedAt time.Time
}

// Scope names the corpus a detect or commit call runs against: a single
// dataset, or (when DatasetID is empty) the owner's whole upload
// history.
type Scope struct {
	OwnerID   string
	DatasetID string
}

// IsDataset reports whether the scope targets a single dataset.
func (s Scope) IsDataset() bool { return s.DatasetID != "" }

// DatasetScope returns a scope for one dataset.
func DatasetScope(ownerID, datasetID string) Scope {
	return Scope{OwnerID: ownerID, DatasetID: datasetID}
}

// HistoryScope returns a scope covering the owner's full upload
// history.
func HistoryScope(ownerID string) Scope {
	return Scope{OwnerID: ownerID}
}
