// Package store keeps the run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/panelrenew/panelrenew/internal/types"
)

// ErrNotFound is returned when no run matches a query.
var ErrNotFound = errors.New("run not found")

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema. Timestamps are unix milliseconds.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		outcome TEXT NOT NULL,
		strategy TEXT,
		login TEXT,
		claim TEXT,
		screenshots TEXT,
		archive_path TEXT,
		asset_url TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts run and sets its ID
func (s *Store) SaveRun(ctx context.Context, run *types.RunResult) error {
	loginJSON, err := marshalOptional(run.Login)
	if err != nil {
		return err
	}
	claimJSON, err := marshalOptional(run.Claim)
	if err != nil {
		return err
	}
	shotsJSON, err := json.Marshal(run.Screenshots)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, finished_at, outcome, strategy, login, claim,
			screenshots, archive_path, asset_url, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, toMillis(run.StartedAt), toMillis(run.FinishedAt), string(run.Outcome), string(run.LoginStrategy()),
		loginJSON, claimJSON, string(shotsJSON), run.ArchivePath, run.AssetURL, run.Error)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]types.RunResult, error) {
	rows, err := s.db.QueryContext(ctx, selectRuns+`
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []types.RunResult
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// LastOutcome returns the most recent run that ended with outcome
func (s *Store) LastOutcome(ctx context.Context, outcome types.Outcome) (*types.RunResult, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+`
		WHERE outcome = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, string(outcome))

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no %s run", ErrNotFound, outcome)
	}
	return run, err
}

// CountSince returns how many runs ended with each outcome since t
func (s *Store) CountSince(ctx context.Context, t time.Time) (map[types.Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM runs WHERE started_at >= ? GROUP BY outcome
	`, t.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[types.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[types.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

const selectRuns = `
	SELECT id, started_at, finished_at, outcome, login, claim,
		screenshots, archive_path, asset_url, error
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*types.RunResult, error) {
	var (
		run                           types.RunResult
		started                       int64
		finished                      sql.NullInt64
		outcome                       string
		loginJSON, claimJSON, shots   sql.NullString
		archivePath, assetURL, errStr sql.NullString
	)
	err := row.Scan(&run.ID, &started, &finished, &outcome, &loginJSON, &claimJSON,
		&shots, &archivePath, &assetURL, &errStr)
	if err != nil {
		return nil, err
	}

	run.StartedAt = fromMillis(started)
	if finished.Valid {
		run.FinishedAt = fromMillis(finished.Int64)
	}
	run.Outcome = types.Outcome(outcome)
	run.ArchivePath = archivePath.String
	run.AssetURL = assetURL.String
	run.Error = errStr.String

	if loginJSON.Valid && loginJSON.String != "" {
		run.Login = &types.LoginResult{}
		if err := json.Unmarshal([]byte(loginJSON.String), run.Login); err != nil {
			return nil, fmt.Errorf("run %d: corrupt login record: %w", run.ID, err)
		}
	}
	if claimJSON.Valid && claimJSON.String != "" {
		run.Claim = &types.ClaimResult{}
		if err := json.Unmarshal([]byte(claimJSON.String), run.Claim); err != nil {
			return nil, fmt.Errorf("run %d: corrupt claim record: %w", run.ID, err)
		}
	}
	if shots.Valid && shots.String != "" {
		if err := json.Unmarshal([]byte(shots.String), &run.Screenshots); err != nil {
			return nil, fmt.Errorf("run %d: corrupt screenshot list: %w", run.ID, err)
		}
	}
	return &run, nil
}

func marshalOptional(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case *types.LoginResult:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *types.ClaimResult:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func toMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
