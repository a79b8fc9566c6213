// Package catalog persists scan runs and their anomalies in a local
// SQLite database so repeated scans over the same traces can be
// compared after the fact.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	terrors "github.com/tracelens/tracelens/internal/errors"
	"github.com/tracelens/tracelens/pkg/types"
)

// Run describes one validation run over a trace file.
type Run struct {
	RunID        string
	TracePath    string
	Digest       string
	BatchRecords int
	RecordCount  int64
	AnomalyCount int64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Catalog stores validation runs and their anomalies.
type Catalog interface {
	// RegisterRun inserts a completed run. A RunID is assigned if empty.
	RegisterRun(ctx context.Context, run *Run) error

	// RecordAnomalies persists the anomalies of a run, in stream order.
	RecordAnomalies(ctx context.Context, runID string, anomalies []types.Anomaly) error

	// GetRun retrieves a single run by ID.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// AnomaliesForRun returns a run's anomalies in stream order.
	AnomaliesForRun(ctx context.Context, runID string) ([]types.Anomaly, error)

	// Close closes the catalog database connection.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string

	insertRunStmt *sql.Stmt
}

// NewCatalog opens (or creates) the catalog database at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeRegisterFailed, "failed to open catalog database", err)
	}
	db.SetMaxOpenConns(1) // single writer

	c := &SQLiteCatalog{db: db, dbPath: dbPath}

	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, terrors.NewCatalogError(terrors.CodeCatalogCorrupt, "failed to initialize schema", err)
	}

	c.insertRunStmt, err = db.Prepare(`
		INSERT INTO runs (
			run_id, trace_path, digest, batch_records,
			record_count, anomaly_count, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, terrors.NewCatalogError(terrors.CodeRegisterFailed, "failed to prepare insert statement", err)
	}

	return c, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id        TEXT PRIMARY KEY,
			trace_path    TEXT NOT NULL,
			digest        TEXT NOT NULL,
			batch_records INTEGER NOT NULL,
			record_count  INTEGER NOT NULL,
			anomaly_count INTEGER NOT NULL,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_digest ON runs(digest)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			run_id     TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			prev_count INTEGER NOT NULL,
			insn_count INTEGER NOT NULL,
			cpu        INTEGER NOT NULL,
			op         INTEGER NOT NULL,
			size       INTEGER NOT NULL,
			address    INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		) WITHOUT ROWID`,
	}

	for _, stmt := range schema {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// RegisterRun inserts a completed run into the catalog.
func (c *SQLiteCatalog) RegisterRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}

	_, err := c.insertRunStmt.ExecContext(ctx,
		run.RunID, run.TracePath, run.Digest, run.BatchRecords,
		run.RecordCount, run.AnomalyCount,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano())
	if err != nil {
		return terrors.NewCatalogError(terrors.CodeRegisterFailed,
			fmt.Sprintf("failed to register run %s", run.RunID), err)
	}
	return nil
}

// RecordAnomalies persists a run's anomalies in one transaction.
func (c *SQLiteCatalog) RecordAnomalies(ctx context.Context, runID string, anomalies []types.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return terrors.NewCatalogError(terrors.CodeRegisterFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anomalies (run_id, seq, prev_count, insn_count, cpu, op, size, address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return terrors.NewCatalogError(terrors.CodeRegisterFailed, "failed to prepare anomaly insert", err)
	}
	defer stmt.Close()

	for seq, a := range anomalies {
		_, err := stmt.ExecContext(ctx, runID, seq,
			int64(a.PrevCount), int64(a.Record.InsnCount),
			a.Record.CPU, a.Record.Op, a.Record.Size, int64(a.Record.Addr))
		if err != nil {
			return terrors.NewCatalogError(terrors.CodeRegisterFailed,
				fmt.Sprintf("failed to insert anomaly %d for run %s", seq, runID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return terrors.NewCatalogError(terrors.CodeRegisterFailed, "failed to commit anomalies", err)
	}
	return nil
}

// GetRun retrieves a single run by ID.
func (c *SQLiteCatalog) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT run_id, trace_path, digest, batch_records,
		       record_count, anomaly_count, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, terrors.NewCatalogError(terrors.CodeRunNotFound,
			fmt.Sprintf("run %s not found", runID), nil)
	}
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogCorrupt, "failed to scan run", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (c *SQLiteCatalog) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT run_id, trace_path, digest, batch_records,
		       record_count, anomaly_count, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogCorrupt, "failed to query runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, terrors.NewCatalogError(terrors.CodeCatalogCorrupt, "failed to scan run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogCorrupt, "error iterating runs", err)
	}
	return runs, nil
}

// AnomaliesForRun returns a run's anomalies in stream order.
func (c *SQLiteCatalog) AnomaliesForRun(ctx context.Context, runID string) ([]types.Anomaly, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT prev_count, insn_count, cpu, op, size, address
		FROM anomalies WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogCorrupt, "failed to query anomalies", err)
	}
	defer rows.Close()

	var anomalies []types.Anomaly
	for rows.Next() {
		var prev, insn, addr int64
		var cpu, op, size uint8
		if err := rows.Scan(&prev, &insn, &cpu, &op, &size, &addr); err != nil {
			return nil, terrors.NewCatalogError(terrors.CodeCatalogCorrupt, "failed to scan anomaly", err)
		}
		anomalies = append(anomalies, types.Anomaly{
			PrevCount: uint64(prev),
			Record: types.TraceRecord{
				InsnCount: uint64(insn),
				CPU:       cpu,
				Op:        op,
				Size:      size,
				Addr:      uint64(addr),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogCorrupt, "error iterating anomalies", err)
	}
	return anomalies, nil
}

// scanner abstracts sql.Row and sql.Rows for scanRun.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var started, finished int64
	if err := s.Scan(&run.RunID, &run.TracePath, &run.Digest, &run.BatchRecords,
		&run.RecordCount, &run.AnomalyCount, &started, &finished); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, started)
	run.FinishedAt = time.Unix(0, finished)
	return &run, nil
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	if c.insertRunStmt != nil {
		c.insertRunStmt.Close()
	}
	return c.db.Close()
}
