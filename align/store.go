package align

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const storeSchema = `
	CREATE TABLE IF NOT EXISTS alignment_runs (
		run_id TEXT PRIMARY KEY,
		split TEXT NOT NULL,
		started_at TEXT NOT NULL,
		duration_secs REAL,
		valid_clips INTEGER,
		total_clips INTEGER,
		valid_frames INTEGER,
		total_frames INTEGER
	);

	CREATE TABLE IF NOT EXISTS unit_results (
		run_id TEXT NOT NULL,
		pass TEXT NOT NULL,
		unit TEXT NOT NULL,
		source_frames INTEGER,
		dest_frames INTEGER,
		matched INTEGER,
		scale REAL,
		residual REAL,
		error TEXT,
		PRIMARY KEY (run_id, pass, unit),
		FOREIGN KEY (run_id) REFERENCES alignment_runs(run_id)
	);
`

// ResultStore persists run summaries and per-unit fit statistics in sqlite.
type ResultStore struct {
	db *sql.DB
}

// OpenResultStore opens (or creates) the sqlite database at path.
func OpenResultStore(path string) (*ResultStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")

	s, err := NewResultStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewResultStore wraps an open database and creates the schema.
func NewResultStore(db *sql.DB) (*ResultStore, error) {
	if _, err := db.Exec(storeSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// Close closes the database.
func (s *ResultStore) Close() error {
	return s.db.Close()
}

// Consume stores the run and every unit result in one transaction.
func (s *ResultStore) Consume(ctx context.Context, report *RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	t := report.Coverage.Tally
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO alignment_runs
		(run_id, split, started_at, duration_secs, valid_clips, total_clips, valid_frames, total_frames)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.Split,
		report.StartedAt.Format(time.RFC3339),
		report.Duration.Seconds(),
		t.ValidClips, t.TotalClips, t.ValidFrames, t.TotalFrames,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range report.Results() {
		var (
			scale, residual sql.NullFloat64
			errText         sql.NullString
		)
		if res.OK() {
			scale = sql.NullFloat64{Float64: res.Transform.S, Valid: true}
			residual = sql.NullFloat64{Float64: res.Residual, Valid: true}
		} else {
			errText = sql.NullString{String: res.Err.Error(), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO unit_results
			(run_id, pass, unit, source_frames, dest_frames, matched, scale, residual, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, string(res.Pass), res.Unit,
			res.SourceFrames, res.DestFrames, res.Correspondences.Len(),
			scale, residual, errText,
		)
		if err != nil {
			return fmt.Errorf("insert unit %s: %w", res.Unit, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunTally returns the stored coverage tally of a run.
func (s *ResultStore) RunTally(ctx context.Context, runID string) (CoverageTally, error) {
	var t CoverageTally
	err := s.db.QueryRowContext(ctx, `
		SELECT valid_clips, total_clips, valid_frames, total_frames
		FROM alignment_runs WHERE run_id = ?`, runID,
	).Scan(&t.ValidClips, &t.TotalClips, &t.ValidFrames, &t.TotalFrames)
	if err != nil {
		return t, fmt.Errorf("query run %s: %w", runID, err)
	}
	return t, nil
}

// StoredUnit is one row of unit_results. Scale and Residual are zero for
// skipped units.
type StoredUnit struct {
	Pass         Pass
	Unit         string
	SourceFrames int
	DestFrames   int
	Matched      int
	Scale        float64
	Residual     float64
	Error        string
}

// UnitResults returns the stored unit rows of a run ordered by pass and unit.
func (s *ResultStore) UnitResults(ctx context.Context, runID string) ([]StoredUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pass, unit, source_frames, dest_frames, matched, scale, residual, error
		FROM unit_results WHERE run_id = ? ORDER BY pass, unit`, runID)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var out []StoredUnit
	for rows.Next() {
		var (
			u               StoredUnit
			pass            string
			scale, residual sql.NullFloat64
			errText         sql.NullString
		)
		if err := rows.Scan(&pass, &u.Unit, &u.SourceFrames, &u.DestFrames, &u.Matched, &scale, &residual, &errText); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		u.Pass = Pass(pass)
		u.Scale = scale.Float64
		u.Residual = residual.Float64
		u.Error = errText.String
		out = append(out, u)
	}
	return out, rows.Err()
}
