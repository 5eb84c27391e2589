// pkg/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/config"
)

const pgUniqueViolation = "23505"

const pgSchema = `
CREATE TABLE IF NOT EXISTS datasets (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	columns_info TEXT NOT NULL,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (owner_id, name)
);
CREATE INDEX IF NOT EXISTS idx_datasets_owner ON datasets (owner_id);

CREATE TABLE IF NOT EXISTS data_records (
	id BIGSERIAL PRIMARY KEY,
	dataset_id TEXT NOT NULL REFERENCES datasets (id) ON DELETE CASCADE,
	row_hash VARCHAR(64) NOT NULL,
	dup_seq INT NOT NULL DEFAULT 0,
	data_json TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (dataset_id, row_hash, dup_seq)
);
CREATE INDEX IF NOT EXISTS idx_data_records_dataset ON data_records (dataset_id);

CREATE TABLE IF NOT EXISTS uploads (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	columns_info TEXT NOT NULL,
	data_json TEXT NOT NULL,
	row_count INT NOT NULL,
	column_count INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_uploads_owner ON uploads (owner_id);

CREATE TABLE IF NOT EXISTS log_records (
	id BIGSERIAL PRIMARY KEY,
	owner_id TEXT NOT NULL,
	batch_timestamp BIGINT NOT NULL,
	source_name TEXT NOT NULL,
	record_key VARCHAR(64) NOT NULL,
	data_json TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_log_records_owner_ts ON log_records (owner_id, batch_timestamp);
`

// NewPostgres connects to PostgreSQL and ensures the corpus tables
// exist. The unique index on (dataset_id, row_hash, dup_seq) is the
// race backstop for the hash-indexed strategy.
func NewPostgres(ctx context.Context, cfg *config.PostgresConfig) (*DB, error) {
	logger := zap.L().Named("postgres-store")

	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sqlx.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	applyConnSettings(db.DB, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime)

	if cfg.StatementTimeout > 0 {
		_, err = db.ExecContext(ctx,
			fmt.Sprintf("SET statement_timeout = %d", cfg.StatementTimeout.Milliseconds()))
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	if err := pingWithTimeout(ctx, db.DB, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create corpus tables: %w", err)
	}

	logConnStats(logger, cfg.Database, db.DB)
	return &DB{
		db:         db,
		logger:     logger,
		name:       cfg.Database,
		isConflict: pgIsConflict,
	}, nil
}

func pgIsConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return false
}
