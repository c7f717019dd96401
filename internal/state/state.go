// Package state persists run history in a local SQLite database so prior
// migrations can be listed and inspected after the fact.
package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed history store.
type Store struct {
	db *sql.DB
}

// Run is one recorded migration run.
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
	TotalAssets int
	Successful  int
	Failed      int
	Skipped     int
}

// AssetRecord is one asset outcome within a run.
type AssetRecord struct {
	AssetID          string
	Status           string
	RowCount         int64
	ConversionErrors int64
	DurationMS       int64
	TargetTable      string
	FailedStep       string
	Error            string
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'running',
	total_assets INTEGER NOT NULL DEFAULT 0,
	successful INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS asset_results (
	run_id TEXT NOT NULL REFERENCES runs(id),
	asset_id TEXT NOT NULL,
	status TEXT NOT NULL,
	row_count INTEGER NOT NULL DEFAULT 0,
	conversion_errors INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	target_table TEXT,
	failed_step TEXT,
	error TEXT,
	PRIMARY KEY (run_id, asset_id)
);
`

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateRun registers a new run as running.
func (s *Store) CreateRun(id string, startedAt time.Time, totalAssets int) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, total_assets) VALUES (?, ?, ?)`,
		id, startedAt.UTC(), totalAssets)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", id, err)
	}
	return nil
}

// CompleteRun finalizes a run with its aggregate counts.
func (s *Store) CompleteRun(id, status string, successful, failed, skipped int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, status = ?, successful = ?, failed = ?, skipped = ? WHERE id = ?`,
		time.Now().UTC(), status, successful, failed, skipped, id)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", id, err)
	}
	return nil
}

// RecordAsset stores one asset outcome.
func (s *Store) RecordAsset(runID string, rec AssetRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO asset_results
		 (run_id, asset_id, status, row_count, conversion_errors, duration_ms, target_table, failed_step, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.AssetID, rec.Status, rec.RowCount, rec.ConversionErrors,
		rec.DurationMS, rec.TargetTable, rec.FailedStep, rec.Error)
	if err != nil {
		return fmt.Errorf("recording asset %s: %w", rec.AssetID, err)
	}
	return nil
}

// GetRuns lists runs, newest first.
func (s *Store) GetRuns() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, completed_at, status, total_assets, successful, failed, skipped
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &completed, &r.Status,
			&r.TotalAssets, &r.Successful, &r.Failed, &r.Skipped); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunAssets lists the asset outcomes of one run.
func (s *Store) GetRunAssets(runID string) ([]AssetRecord, error) {
	rows, err := s.db.Query(
		`SELECT asset_id, status, row_count, conversion_errors, duration_ms, target_table, failed_step, error
		 FROM asset_results WHERE run_id = ? ORDER BY asset_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []AssetRecord
	for rows.Next() {
		var rec AssetRecord
		var target, step, errMsg sql.NullString
		if err := rows.Scan(&rec.AssetID, &rec.Status, &rec.RowCount,
			&rec.ConversionErrors, &rec.DurationMS, &target, &step, &errMsg); err != nil {
			return nil, err
		}
		rec.TargetTable = target.String
		rec.FailedStep = step.String
		rec.Error = errMsg.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
