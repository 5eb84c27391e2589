// cmd/importer/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chartcsv/import-engine/pkg/canonical"
	"github.com/chartcsv/import-engine/pkg/config"
	"github.com/chartcsv/import-engine/pkg/engine"
	"github.com/chartcsv/import-engine/pkg/ingest"
	"github.com/chartcsv/import-engine/pkg/model"
	"github.com/chartcsv/import-engine/pkg/store"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	var (
		mode        = flag.String("mode", "csv", "import mode: csv or aimtrainer")
		owner       = flag.String("owner", "", "owner identifier (required)")
		datasetID   = flag.String("dataset", "", "target dataset ID (csv mode; empty to match or create by columns)")
		datasetName = flag.String("dataset-name", "", "dataset name when creating a new dataset (csv mode)")
		force       = flag.Bool("force", false, "commit duplicates without pausing for confirmation")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if *owner == "" {
		logger.Fatal("owner identifier is required")
	}
	if flag.NArg() == 0 {
		logger.Fatal("no input files given")
	}

	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open corpus store", zap.Error(err))
	}
	defer closeStore()

	eng, err := engine.New(st, engine.Options{
		MaxColumns:                cfg.Engine.MaxColumns,
		MaxRows:                   cfg.Engine.MaxRows,
		DuplicateOverlapThreshold: cfg.Engine.DuplicateOverlapThreshold,
		HashAlgorithm:             cfg.Engine.HashAlgorithm,
	}, logger.Named("engine"))
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}

	switch *mode {
	case "csv":
		err = runCSVImport(ctx, eng, logger, *owner, *datasetID, *datasetName, *force, flag.Args())
	case "aimtrainer":
		err = runLogReplay(ctx, eng, logger, *owner, flag.Args())
	default:
		logger.Fatal("Unknown import mode", zap.String("mode", *mode))
	}
	if err != nil {
		logger.Fatal("Import failed", zap.Error(err))
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = level

	return zcfg.Build()
}

func openStore(ctx context.Context, cfg *config.Config) (store.CorpusStore, func(), error) {
	switch cfg.Backend {
	case "postgres":
		db, err := store.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	case "sqlite":
		db, err := store.NewSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown corpus backend %q", cfg.Backend)
	}
}

// runCSVImport pushes one or more CSV files through the two-phase
// commit flow against a dataset scope.
func runCSVImport(ctx context.Context, eng *engine.Engine, logger *zap.Logger, owner, datasetID, datasetName string, force bool, files []string) error {
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		columns, rows, err := ingest.ParseCSV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		rows, blanks := canonical.CleanRows(rows, columns)
		if blanks > 0 {
			logger.Info("Dropped blank rows", zap.String("file", path), zap.Int("count", blanks))
		}

		targetID := datasetID
		if targetID == "" {
			targetID, err = resolveDataset(ctx, eng, owner, datasetName, path, columns)
			if err != nil {
				return err
			}
		}
		scope := model.DatasetScope(owner, targetID)

		result, err := eng.Commit(ctx, scope, columns, rows, engine.CommitOptions{SourceName: filepath.Base(path)})
		if err != nil {
			return fmt.Errorf("commit %s: %w", path, err)
		}

		if result.State == engine.StateAwaitingConfirmation {
			if !force {
				logger.Warn("Duplicates found, skipping file (re-run with -force to import anyway)",
					zap.String("file", path),
					zap.Int("duplicate_count", result.Duplicates.DuplicateCount),
					zap.Int("corpus_size", result.Duplicates.ExistingCorpusSize))
				continue
			}
			result, err = eng.Commit(ctx, scope, columns, rows, engine.CommitOptions{
				ForceUpload: true,
				SourceName:  filepath.Base(path),
			})
			if err != nil {
				return fmt.Errorf("force commit %s: %w", path, err)
			}
		}

		logger.Info("File imported",
			zap.String("file", path),
			zap.String("dataset_id", targetID),
			zap.String("state", string(result.State)),
			zap.Int("inserted", result.InsertedCount))
	}
	return nil
}

// resolveDataset reuses the owner's first dataset with a matching column
// set, or creates a new one.
func resolveDataset(ctx context.Context, eng *engine.Engine, owner, name, path string, columns []string) (string, error) {
	matching, err := eng.FindDatasetsByColumns(ctx, owner, columns)
	if err != nil {
		return "", err
	}
	if len(matching) > 0 {
		return matching[0].ID, nil
	}

	if name == "" {
		name = filepath.Base(path)
	}
	ds, err := eng.CreateDataset(ctx, owner, name, "", columns)
	if err != nil {
		return "", err
	}
	return ds.ID, nil
}

// runLogReplay reconciles aim-trainer exports oldest first, so each
// batch's history comparison sees everything that came before it.
func runLogReplay(ctx context.Context, eng *engine.Engine, logger *zap.Logger, owner string, files []string) error {
	sorted := append([]string(nil), files...)
	sort.Slice(sorted, func(i, j int) bool {
		return ingest.ExtractTimestamp(filepath.Base(sorted[i])) < ingest.ExtractTimestamp(filepath.Base(sorted[j]))
	})

	var processed, skipped, duplicatesRemoved, newRecords int
	for _, path := range sorted {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		fileName := filepath.Base(path)
		records, err := ingest.ParseAimTrainerResults(string(content), fileName)
		if err != nil {
			logger.Warn("Skipping unparseable file", zap.String("file", fileName), zap.Error(err))
			skipped++
			continue
		}
		if len(records) == 0 {
			logger.Warn("No valid records in file", zap.String("file", fileName))
			skipped++
			continue
		}

		stats, err := eng.ReconcileLogBatch(ctx, model.LogBatch{
			OwnerID:        owner,
			BatchTimestamp: ingest.ExtractTimestamp(fileName),
			SourceName:     fileName,
			Columns:        ingest.AimTrainerColumns,
			Records:        records,
		})
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", path, err)
		}

		if stats.SkippedAsAlreadyProcessed {
			skipped++
			continue
		}
		processed++
		duplicatesRemoved += stats.IntraBatchDuplicatesRemoved + stats.HistoryDuplicatesRemoved
		newRecords += stats.ImportedCount
	}

	logger.Info("Log replay complete",
		zap.Int("total_files", len(sorted)),
		zap.Int("processed_files", processed),
		zap.Int("skipped_files", skipped),
		zap.Int("duplicates_removed", duplicatesRemoved),
		zap.Int("new_records", newRecords))
	return nil
}
