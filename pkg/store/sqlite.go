// pkg/store/sqlite.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS datasets (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	columns_info TEXT NOT NULL,
	description TEXT,
	created_at DATETIME NOT NULL,
	UNIQUE (owner_id, name)
);
CREATE INDEX IF NOT EXISTS idx_datasets_owner ON datasets (owner_id);

CREATE TABLE IF NOT EXISTS data_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset_id TEXT NOT NULL REFERENCES datasets (id) ON DELETE CASCADE,
	row_hash TEXT NOT NULL,
	dup_seq INTEGER NOT NULL DEFAULT 0,
	data_json TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (dataset_id, row_hash, dup_seq)
);
CREATE INDEX IF NOT EXISTS idx_data_records_dataset ON data_records (dataset_id);

CREATE TABLE IF NOT EXISTS uploads (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	columns_info TEXT NOT NULL,
	data_json TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	column_count INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_owner ON uploads (owner_id);

CREATE TABLE IF NOT EXISTS log_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	batch_timestamp INTEGER NOT NULL,
	source_name TEXT NOT NULL,
	record_key TEXT NOT NULL,
	data_json TEXT NOT NULL,
	uploaded_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_log_records_owner_ts ON log_records (owner_id, batch_timestamp);
`

// NewSQLite opens (creating if needed) a SQLite-backed corpus store at
// path. This is the local/CLI backend; it carries the same
// (dataset_id, row_hash, dup_seq) unique constraint as Postgres.
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	logger := zap.L().Named("sqlite-store")

	logger.Info("Opening SQLite corpus store", zap.String("path", path))

	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids
	// SQLITE_BUSY churn under concurrent inserts.
	db.SetMaxOpenConns(1)

	if err := pingWithTimeout(ctx, db.DB, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create corpus tables: %w", err)
	}

	return &DB{
		db:         db,
		logger:     logger,
		name:       path,
		isConflict: sqliteIsConflict,
	}, nil
}

func sqliteIsConflict(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrConstraint
	}
	return false
}
