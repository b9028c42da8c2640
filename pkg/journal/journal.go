// Package journal records every fetch run and its failures in a local
// SQLite database, for the history command.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gphotofetch/pkg/models"
)

// Failure kinds
const (
	KindBucket = "bucket"
	KindItem   = "item"
)

// Run is one row of the runs table
type Run struct {
	ID       string
	Range    string
	Started  time.Time
	Finished time.Time // zero while running or after a crash
	Totals   models.TotalsSnapshot
}

// Failure is one row of the failures table
type Failure struct {
	RunID string
	Kind  string
	Key   string
	Error string
}

// Journal is the run history database
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	// WAL is best effort; some filesystems refuse it
	_, _ = db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`)

	j := &Journal{db: db}
	if err := j.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise journal: %w", err)
	}
	return j, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		month_range TEXT NOT NULL,
		started TEXT NOT NULL,
		finished TEXT,
		seen INTEGER NOT NULL DEFAULT 0,
		downloaded INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		failed_buckets INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		failure_key TEXT NOT NULL,
		error TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id);
	`
	_, err := j.db.Exec(query)
	return err
}

// Begin records the start of a run
func (j *Journal) Begin(ctx context.Context, id string, r models.Range, started time.Time) error {
	query := `INSERT INTO runs (id, month_range, started) VALUES (?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query, id, r.String(), formatTime(started))
	return err
}

// Finish stores the final totals of a run
func (j *Journal) Finish(ctx context.Context, id string, finished time.Time, t models.TotalsSnapshot) error {
	query := `UPDATE runs SET finished = ?, seen = ?, downloaded = ?, skipped = ?, failed = ?, bytes = ?, failed_buckets = ? WHERE id = ?`
	res, err := j.db.ExecContext(ctx, query,
		formatTime(finished), t.Seen, t.Downloaded, t.Skipped, t.Failed, t.Bytes, t.FailedBuckets, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// RecordFailure stores a failed bucket or item of a run
func (j *Journal) RecordFailure(ctx context.Context, runID, kind, key string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	query := `INSERT INTO failures (run_id, kind, failure_key, error) VALUES (?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query, runID, kind, key, msg)
	return err
}

// Recent returns the latest runs, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, month_range, started, finished, seen, downloaded, skipped, failed, bytes, failed_buckets
		FROM runs ORDER BY started DESC LIMIT ?`
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Range, &started, &finished,
			&run.Totals.Seen, &run.Totals.Downloaded, &run.Totals.Skipped,
			&run.Totals.Failed, &run.Totals.Bytes, &run.Totals.FailedBuckets); err != nil {
			return nil, err
		}
		run.Started = parseTime(started)
		if finished.Valid {
			run.Finished = parseTime(finished.String)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Failures returns the failures of a run in insertion order
func (j *Journal) Failures(ctx context.Context, runID string) ([]Failure, error) {
	query := `SELECT run_id, kind, failure_key, error FROM failures WHERE run_id = ? ORDER BY id`
	rows, err := j.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.RunID, &f.Kind, &f.Key, &f.Error); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// fixed width so that text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
