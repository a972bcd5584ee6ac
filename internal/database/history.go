package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a run lookup fails.
var ErrNotFound = errors.New("run not found")

// ErrRunExists is returned when a run key is saved twice.
var ErrRunExists = errors.New("run already exists")

// Run is one finished simulation run.
type Run struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"` // Scheduler run id
	Scope       string    `json:"scope"`
	Fingerprint string    `json:"fingerprint"`
	Settings    string    `json:"settings,omitempty"` // YAML snapshot of the run inputs
	Jobs        int       `json:"jobs"`
	Cancelled   bool      `json:"cancelled"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ResultRow is the stored result of one entity within a run.
type ResultRow struct {
	RunID      int64  `json:"run_id"`
	Kind       string `json:"kind"`
	EntityID   int    `json:"entity_id"`
	Name       string `json:"name"`
	SimSuccess bool   `json:"sim_success"`
	Reason     string `json:"reason,omitempty"`
	Metrics    string `json:"metrics"` // JSON object
}

// SaveRun stores a run and its results in one transaction and sets run.ID.
func (d *Database) SaveRun(run *Run, results []ResultRow) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := d.insertRun(tx, run)
	if err != nil {
		if d.dialect.IsDuplicateKeyError(err) {
			return ErrRunExists
		}
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.Prepare(d.qb.Build(
		`INSERT INTO simulation_results (run_id, entity_kind, entity_id, name, sim_success, reason, metrics)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	))
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(id, r.Kind, r.EntityID, r.Name, boolToInt(r.SimSuccess), r.Reason, r.Metrics); err != nil {
			return fmt.Errorf("failed to save %s %d: %w", r.Kind, r.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	run.ID = id
	return nil
}

func (d *Database) insertRun(tx *sql.Tx, run *Run) (int64, error) {
	query := d.qb.BuildWithReturning(
		`INSERT INTO simulation_runs (run_key, scope, fingerprint, settings, jobs, cancelled, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"id",
	)
	args := []any{
		run.Key, run.Scope, run.Fingerprint, run.Settings, run.Jobs, boolToInt(run.Cancelled),
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	}

	if !d.dialect.SupportsLastInsertID() {
		var id int64
		err := tx.QueryRow(query, args...).Scan(&id)
		return id, err
	}
	result, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const runColumns = "id, run_key, scope, fingerprint, settings, jobs, cancelled, started_at, finished_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var cancelled int
	if err := row.Scan(&run.ID, &run.Key, &run.Scope, &run.Fingerprint, &run.Settings,
		&run.Jobs, &cancelled, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	run.Cancelled = cancelled != 0
	return &run, nil
}

// GetRun retrieves a run by its key.
func (d *Database) GetRun(key string) (*Run, error) {
	row := d.db.QueryRow(d.qb.Build("SELECT "+runColumns+" FROM simulation_runs WHERE run_key = ?"), key)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. The settings snapshot is
// left out; use GetRun for it.
func (d *Database) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(d.qb.Build(
		`SELECT id, run_key, scope, fingerprint, '', jobs, cancelled, started_at, finished_at
		 FROM simulation_runs ORDER BY started_at DESC, id DESC LIMIT ?`,
	), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRunResults returns the stored results of a run ordered by kind and id.
func (d *Database) GetRunResults(runID int64) ([]ResultRow, error) {
	rows, err := d.db.Query(d.qb.Build(
		`SELECT run_id, entity_kind, entity_id, name, sim_success, reason, metrics
		 FROM simulation_results WHERE run_id = ? ORDER BY entity_kind, entity_id`,
	), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []ResultRow
	for rows.Next() {
		var r ResultRow
		var success int
		if err := rows.Scan(&r.RunID, &r.Kind, &r.EntityID, &r.Name, &success, &r.Reason, &r.Metrics); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.SimSuccess = success != 0
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteRun removes a run and its results.
func (d *Database) DeleteRun(key string) error {
	run, err := d.GetRun(key)
	if err != nil {
		return err
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(d.qb.Build("DELETE FROM simulation_results WHERE run_id = ?"), run.ID); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	if _, err := tx.Exec(d.qb.Build("DELETE FROM simulation_runs WHERE id = ?"), run.ID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return tx.Commit()
}

// PruneRuns keeps the newest keep runs and deletes the rest. It returns the
// number of runs removed.
func (d *Database) PruneRuns(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	keepSet := d.qb.Build(`SELECT id FROM simulation_runs ORDER BY started_at DESC, id DESC LIMIT ?`)
	if _, err := tx.Exec(
		`DELETE FROM simulation_results WHERE run_id NOT IN (SELECT id FROM (`+keepSet+`) AS kept)`, keep,
	); err != nil {
		return 0, fmt.Errorf("failed to prune results: %w", err)
	}
	result, err := tx.Exec(
		`DELETE FROM simulation_runs WHERE id NOT IN (SELECT id FROM (`+keepSet+`) AS kept)`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return removed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
