// Package ledger records pipeline runs and their metrics in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Store is a run ledger. A Store opened with an empty path, or a nil
// *Store, records nothing; every method is then a no-op.
type Store struct {
	db *sql.DB
}

type Run struct {
	ID         string
	Pipeline   string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Output     string
	Rows       int
	Error      string
	Metrics    map[string]float64
}

func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{}, nil
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) enabled() bool { return s != nil && s.db != nil }

func (s *Store) Close() error {
	if !s.enabled() {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  pipeline TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  output TEXT NOT NULL DEFAULT '',
  row_count INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS metrics (
  run_id TEXT NOT NULL REFERENCES runs(id),
  name TEXT NOT NULL,
  value REAL NOT NULL,
  PRIMARY KEY (run_id, name)
);
`)
	return err
}

// Begin records the start of a pipeline run and returns its ID. The ID is
// generated even when the ledger is disabled so it can tag log lines.
func (s *Store) Begin(ctx context.Context, pipeline string) (string, error) {
	id := uuid.NewString()
	if !s.enabled() {
		return id, nil
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs(id, pipeline, started_at, status) VALUES(?, ?, ?, ?);",
		id, pipeline, formatTime(time.Now()), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("ledger: begin: %w", err)
	}
	return id, nil
}

// Metric stores a named value for a run, replacing an earlier one.
func (s *Store) Metric(ctx context.Context, runID, name string, value float64) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metrics(run_id, name, value) VALUES(?, ?, ?) ON CONFLICT(run_id, name) DO UPDATE SET value=excluded.value;",
		runID, name, value)
	if err != nil {
		return fmt.Errorf("ledger: metric %s: %w", name, err)
	}
	return nil
}

// Finish closes a run. A non-nil runErr marks it failed.
func (s *Store) Finish(ctx context.Context, runID, output string, rows int, runErr error) error {
	if !s.enabled() {
		return nil
	}
	status, msg := StatusOK, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at=?, status=?, output=?, row_count=?, error=? WHERE id=?;",
		formatTime(time.Now()), status, output, rows, msg, runID)
	if err != nil {
		return fmt.Errorf("ledger: finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger: finish: unknown run %s", runID)
	}
	return nil
}

// Runs returns up to limit runs, newest first, with their metrics.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if !s.enabled() {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, pipeline, started_at, finished_at, status, output, row_count, error FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?;",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Pipeline, &started, &finished, &r.Status, &r.Output, &r.Rows, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// release the single connection before querying metrics
	rows.Close()

	for i := range out {
		m, err := s.metrics(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Metrics = m
	}
	return out, nil
}

func (s *Store) metrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM metrics WHERE run_id=?;", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := map[string]float64{}
	for rows.Next() {
		var name string
		var v float64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, err
		}
		m[name] = v
	}
	return m, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
