// Package taskstore keeps a SQLite history of runs and their item results.
package taskstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNoRuns is returned by LatestRun on an empty history
var ErrNoRuns = errors.New("no runs recorded")

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// RunInfo describes how a run was configured
type RunInfo struct {
	Checklist string
	Runtime   string
	Model     string
}

// RunRecord is one row of the run history
type RunRecord struct {
	ID         string
	Checklist  string
	Runtime    string
	Model      string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Completed  int
	Failed     int
	Skipped    int
	DryRun     bool
	Cancelled  bool
}

// Duration returns the wall-clock time of the run
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// New opens (or creates) the history database at dbPath
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport stores a finished run and all of its item summaries
func (s *Store) SaveReport(report domain.RunReport, info RunInfo) error {
	if report.RunID == "" {
		return errors.New("saving report: empty run id")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, checklist, runtime, model, started_at, finished_at, processed, completed, failed, skipped, dry_run, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		info.Checklist,
		info.Runtime,
		info.Model,
		report.StartedAt.UnixMilli(),
		report.FinishedAt.UnixMilli(),
		report.Processed,
		report.Completed,
		report.Failed,
		report.Skipped,
		report.DryRun,
		report.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", report.RunID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO item_results (run_id, position, item_id, tier_index, tier_name, status, note, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, item := range report.Items {
		if _, err := stmt.Exec(
			report.RunID,
			i,
			item.ID,
			item.Tier.Index,
			item.Tier.Name,
			string(item.Status),
			item.Note,
			item.Error,
			item.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("saving item %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	query := `SELECT id, checklist, runtime, model, started_at, finished_at, processed, completed, failed, skipped, dry_run, cancelled
		FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest run that actually dispatched items
func (s *Store) LatestRun() (RunRecord, error) {
	row := s.db.QueryRow(`SELECT id, checklist, runtime, model, started_at, finished_at, processed, completed, failed, skipped, dry_run, cancelled
		FROM runs WHERE dry_run = FALSE ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNoRuns
	}
	return run, err
}

// GetRunItems returns the item summaries of a run in backlog order
func (s *Store) GetRunItems(runID string) ([]domain.ItemSummary, error) {
	rows, err := s.db.Query(`
		SELECT item_id, tier_index, tier_name, status, note, error, duration_ms
		FROM item_results WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ItemSummary
	for rows.Next() {
		var item domain.ItemSummary
		var status string
		var durationMS int64
		if err := rows.Scan(&item.ID, &item.Tier.Index, &item.Tier.Name, &status, &item.Note, &item.Error, &durationMS); err != nil {
			return nil, err
		}
		item.Status = domain.ItemStatus(status)
		item.Duration = time.Duration(durationMS) * time.Millisecond
		items = append(items, item)
	}
	return items, rows.Err()
}

// LatestItemStatuses returns, per item ID, the most recent verdict
// (completed or failed) across all non dry runs
func (s *Store) LatestItemStatuses() (map[string]domain.ItemStatus, error) {
	rows, err := s.db.Query(`
		SELECT i.item_id, i.status
		FROM item_results i JOIN runs r ON r.id = i.run_id
		WHERE r.dry_run = FALSE AND i.status IN (?, ?)
		ORDER BY r.started_at, r.rowid
	`, string(domain.StatusCompleted), string(domain.StatusFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[string]domain.ItemStatus)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		statuses[id] = domain.ItemStatus(status)
	}
	return statuses, rows.Err()
}

// FailedItemIDs returns the IDs of the items that failed in runID
func (s *Store) FailedItemIDs(runID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT item_id FROM item_results WHERE run_id = ? AND status = ? ORDER BY position`,
		runID, string(domain.StatusFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var run RunRecord
	var startedMS, finishedMS int64
	err := row.Scan(&run.ID, &run.Checklist, &run.Runtime, &run.Model, &startedMS, &finishedMS,
		&run.Processed, &run.Completed, &run.Failed, &run.Skipped, &run.DryRun, &run.Cancelled)
	if err != nil {
		return RunRecord{}, err
	}
	run.StartedAt = time.UnixMilli(startedMS)
	run.FinishedAt = time.UnixMilli(finishedMS)
	return run, nil
}
