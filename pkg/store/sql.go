// pkg/store/sql.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/model"
	"github.com/chartcsv/import-engine/pkg/schema"
)

// DB implements CorpusStore over a relational backend. Postgres and
// SQLite share this implementation; the constructors differ only in
// driver, schema bootstrap, and conflict-error mapping. Queries are
// written with "?" placeholders and rebound per driver.
type DB struct {
	db         *sqlx.DB
	logger     *zap.Logger
	name       string
	isConflict func(error) bool
}

// Close closes the underlying database connection.
func (s *DB) Close() error {
	s.logger.Info("Closing corpus store", zap.String("database", s.name))
	logConnStats(s.logger, s.name, s.db.DB)
	return s.db.Close()
}

type datasetRow struct {
	ID          string         `db:"id"`
	OwnerID     string         `db:"owner_id"`
	Name        string         `db:"name"`
	ColumnsInfo string         `db:"columns_info"`
	Description sql.NullString `db:"description"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r datasetRow) toModel() (model.Dataset, error) {
	var columns []string
	if err := json.Unmarshal([]byte(r.ColumnsInfo), &columns); err != nil {
		return model.Dataset{}, fmt.Errorf("decode columns for dataset %s: %w", r.ID, err)
	}
	return model.Dataset{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Columns:     columns,
		Description: r.Description.String,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// CreateDataset inserts a new dataset. A duplicate (owner, name) pair
// fails with ErrConflict.
func (s *DB) CreateDataset(ctx context.Context, ds model.Dataset) (model.Dataset, error) {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}

	columnsJSON, err := json.Marshal(ds.Columns)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("encode columns: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO datasets (id, owner_id, name, columns_info, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		ds.ID, ds.OwnerID, ds.Name, string(columnsJSON), ds.Description, ds.CreatedAt,
	); err != nil {
		if s.isConflict(err) {
			return model.Dataset{}, fmt.Errorf("dataset name %q already exists: %w", ds.Name, ErrConflict)
		}
		return model.Dataset{}, fmt.Errorf("insert dataset: %w", err)
	}

	return ds, nil
}

// GetDataset loads one dataset. Reads are owner-scoped: asking for
// another owner's dataset returns ErrNotFound.
func (s *DB) GetDataset(ctx context.Context, ownerID, datasetID string) (model.Dataset, error) {
	var row datasetRow
	query := s.db.Rebind(`
		SELECT id, owner_id, name, columns_info, description, created_at
		FROM datasets
		WHERE id = ? AND owner_id = ?
	`)
	if err := s.db.GetContext(ctx, &row, query, datasetID, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Dataset{}, fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
		}
		return model.Dataset{}, fmt.Errorf("query dataset: %w", err)
	}
	return row.toModel()
}

// ListDatasets returns the owner's datasets, newest first.
func (s *DB) ListDatasets(ctx context.Context, ownerID string) ([]model.Dataset, error) {
	var rows []datasetRow
	query := s.db.Rebind(`
		SELECT id, owner_id, name, columns_info, description, created_at
		FROM datasets
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`)
	if err := s.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}

	datasets := make([]model.Dataset, 0, len(rows))
	for _, row := range rows {
		ds, err := row.toModel()
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

// FindDatasetsByColumns returns the owner's datasets whose column set
// equals the incoming one, order-independent.
func (s *DB) FindDatasetsByColumns(ctx context.Context, ownerID string, columns []string) ([]model.Dataset, error) {
	datasets, err := s.ListDatasets(ctx, ownerID)
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

// DeleteDataset removes a dataset and all of its rows.
func (s *DB) DeleteDataset(ctx context.Context, ownerID, datasetID string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction", zap.Error(rbErr), zap.Error(err))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM data_records WHERE dataset_id = ?`), datasetID,
	); err != nil {
		return fmt.Errorf("delete dataset rows: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM datasets WHERE id = ? AND owner_id = ?`), datasetID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if affected == 0 {
		err = fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	s.logger.Info("Deleted dataset", zap.String("datasetID", datasetID))
	return nil
}

// ListRowHashes returns the hash-only projection of a dataset's corpus.
func (s *DB) ListRowHashes(ctx context.Context, datasetID string) (map[string]struct{}, error) {
	var hashes []string
	query := s.db.Rebind(`SELECT row_hash FROM data_records WHERE dataset_id = ?`)
	if err := s.db.SelectContext(ctx, &hashes, query, datasetID); err != nil {
		return nil, fmt.Errorf("query row hashes: %w", err)
	}

	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return set, nil
}

// ListRows returns a dataset's stored rows with their content hashes.
func (s *DB) ListRows(ctx context.Context, datasetID string) ([]model.CanonicalRow, error) {
	type recordRow struct {
		RowHash  string `db:"row_hash"`
		DataJSON string `db:"data_json"`
	}
	var rows []recordRow
	query := s.db.Rebind(`
		SELECT row_hash, data_json
		FROM data_records
		WHERE dataset_id = ?
		ORDER BY id ASC
	`)
	if err := s.db.SelectContext(ctx, &rows, query, datasetID); err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}

	out := make([]model.CanonicalRow, 0, len(rows))
	for _, r := range rows {
		var payload model.Row
		if err := json.Unmarshal([]byte(r.DataJSON), &payload); err != nil {
			return nil, fmt.Errorf("decode row payload: %w", err)
		}
		out = append(out, model.CanonicalRow{
			DatasetID:   datasetID,
			ContentHash: r.RowHash,
			Payload:     payload,
		})
	}
	return out, nil
}

// InsertRows appends canonical rows inside one transaction. Without
// force, the (dataset_id, row_hash) unique constraint rejects content
// already present and the whole call fails with ErrConflict. With
// force, colliding rows get the next dup_seq so deliberate duplicates
// coexist with the original.
func (s *DB) InsertRows(ctx context.Context, rows []model.CanonicalRow, force bool) (n int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction", zap.Error(rbErr), zap.Error(err))
			}
		}
	}()

	var insert string
	if force {
		insert = s.db.Rebind(`
			INSERT INTO data_records (dataset_id, row_hash, dup_seq, data_json)
			VALUES (?, ?, (
				SELECT COALESCE(MAX(d.dup_seq), -1) + 1
				FROM data_records d
				WHERE d.dataset_id = ? AND d.row_hash = ?
			), ?)
		`)
	} else {
		insert = s.db.Rebind(`
			INSERT INTO data_records (dataset_id, row_hash, dup_seq, data_json)
			VALUES (?, ?, 0, ?)
		`)
	}

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		payload, mErr := json.Marshal(row.Payload)
		if mErr != nil {
			err = fmt.Errorf("encode row payload: %w", mErr)
			return 0, err
		}
		if force {
			_, err = stmt.ExecContext(ctx,
				row.DatasetID, row.ContentHash, row.DatasetID, row.ContentHash, string(payload))
		} else {
			_, err = stmt.ExecContext(ctx, row.DatasetID, row.ContentHash, string(payload))
		}
		if err != nil {
			if s.isConflict(err) {
				err = fmt.Errorf("row %s already stored: %w", row.ContentHash, ErrConflict)
				return 0, err
			}
			err = fmt.Errorf("insert row: %w", err)
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return len(rows), nil
}

type uploadRow struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	FileName    string    `db:"file_name"`
	ColumnsInfo string    `db:"columns_info"`
	DataJSON    string    `db:"data_json"`
	RowCount    int       `db:"row_count"`
	ColumnCount int       `db:"column_count"`
	CreatedAt   time.Time `db:"created_at"`
}

// ListUploads returns the owner's legacy uploads, oldest first.
func (s *DB) ListUploads(ctx context.Context, ownerID string) ([]model.Upload, error) {
	var rows []uploadRow
	query := s.db.Rebind(`
		SELECT id, owner_id, file_name, columns_info, data_json, row_count, column_count, created_at
		FROM uploads
		WHERE owner_id = ?
		ORDER BY created_at ASC
	`)
	if err := s.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}

	uploads := make([]model.Upload, 0, len(rows))
	for _, r := range rows {
		var columns []string
		if err := json.Unmarshal([]byte(r.ColumnsInfo), &columns); err != nil {
			return nil, fmt.Errorf("decode columns for upload %s: %w", r.ID, err)
		}
		var dataRows []model.Row
		if err := json.Unmarshal([]byte(r.DataJSON), &dataRows); err != nil {
			return nil, fmt.Errorf("decode rows for upload %s: %w", r.ID, err)
		}
		uploads = append(uploads, model.Upload{
			ID:        r.ID,
			OwnerID:   r.OwnerID,
			FileName:  r.FileName,
			Columns:   columns,
			Rows:      dataRows,
			CreatedAt: r.CreatedAt,
		})
	}
	return uploads, nil
}

// InsertUpload appends one legacy upload batch.
func (s *DB) InsertUpload(ctx context.Context, up model.Upload) (model.Upload, error) {
	if up.ID == "" {
		up.ID = uuid.New().String()
	}
	if up.CreatedAt.IsZero() {
		up.CreatedAt = time.Now().UTC()
	}

	columnsJSON, err := json.Marshal(up.Columns)
	if err != nil {
		return model.Upload{}, fmt.Errorf("encode columns: %w", err)
	}
	dataJSON, err := json.Marshal(up.Rows)
	if err != nil {
		return model.Upload{}, fmt.Errorf("encode rows: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO uploads (id, owner_id, file_name, columns_info, data_json, row_count, column_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		up.ID, up.OwnerID, up.FileName, string(columnsJSON), string(dataJSON),
		len(up.Rows), len(up.Columns), up.CreatedAt,
	); err != nil {
		return model.Upload{}, fmt.Errorf("insert upload: %w", err)
	}
	return up, nil
}

// BatchExists reports whether a log batch with this exact identity was
// already imported.
func (s *DB) BatchExists(ctx context.Context, ownerID string, batchTimestamp int64, sourceName string) (bool, error) {
	var count int
	query := s.db.Rebind(`
		SELECT COUNT(1)
		FROM log_records
		WHERE owner_id = ? AND batch_timestamp = ? AND source_name = ?
	`)
	if err := s.db.GetContext(ctx, &count, query, ownerID, batchTimestamp, sourceName); err != nil {
		return false, fmt.Errorf("count batch records: %w", err)
	}
	return count > 0, nil
}

type logRecordRow struct {
	OwnerID        string    `db:"owner_id"`
	BatchTimestamp int64     `db:"batch_timestamp"`
	SourceName     string    `db:"source_name"`
	RecordKey      string    `db:"record_key"`
	DataJSON       string    `db:"data_json"`
	UploadedAt     time.Time `db:"uploaded_at"`
}

// ListRecordsBefore returns the owner's log records with a strictly
// earlier batch timestamp, ascending. The reconciliation heuristic
// depends on this ordering.
func (s *DB) ListRecordsBefore(ctx context.Context, ownerID string, beforeTimestamp int64) ([]model.LogRecord, error) {
	var rows []logRecordRow
	query := s.db.Rebind(`
		SELECT owner_id, batch_timestamp, source_name, record_key, data_json, uploaded_at
		FROM log_records
		WHERE owner_id = ? AND batch_timestamp < ?
		ORDER BY batch_timestamp ASC, id ASC
	`)
	if err := s.db.SelectContext(ctx, &rows, query, ownerID, beforeTimestamp); err != nil {
		return nil, fmt.Errorf("query log records: %w", err)
	}

	records := make([]model.LogRecord, 0, len(rows))
	for _, r := range rows {
		var payload model.Row
		if err := json.Unmarshal([]byte(r.DataJSON), &payload); err != nil {
			return nil, fmt.Errorf("decode log record payload: %w", err)
		}
		records = append(records, model.LogRecord{
			OwnerID:        r.OwnerID,
			BatchTimestamp: r.BatchTimestamp,
			SourceName:     r.SourceName,
			CompositeKey:   r.RecordKey,
			Payload:        payload,
			UploadedAt:     r.UploadedAt,
		})
	}
	return records, nil
}

// InsertLogRecords appends log records inside one transaction.
func (s *DB) InsertLogRecords(ctx context.Context, records []model.LogRecord) (n int, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction", zap.Error(rbErr), zap.Error(err))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.db.Rebind(`
		INSERT INTO log_records (owner_id, batch_timestamp, source_name, record_key, data_json, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		payload, mErr := json.Marshal(rec.Payload)
		if mErr != nil {
			err = fmt.Errorf("encode log record payload: %w", mErr)
			return 0, err
		}
		uploadedAt := rec.UploadedAt
		if uploadedAt.IsZero() {
			uploadedAt = time.Now().UTC()
		}
		if _, err = stmt.ExecContext(ctx,
			rec.OwnerID, rec.BatchTimestamp, rec.SourceName, rec.CompositeKey, string(payload), uploadedAt,
		); err != nil {
			err = fmt.Errorf("insert log record: %w", err)
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return len(records), nil
}
