package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Outcome is the terminal state of an attempt.
type Outcome string

const (
	// OutcomePublished means the artifact was built and published.
	OutcomePublished Outcome = "published"
	// OutcomeSkipped means the identity was already published.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means a phase failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeDryRun means the artifact would have been built.
	OutcomeDryRun Outcome = "dry-run"
)

// Attempt is one processed artifact.
type Attempt struct {
	// RunID groups the attempts of one run.
	RunID string
	// Artifact is the artifact file name.
	Artifact string
	// Outcome is the terminal state.
	Outcome Outcome
	// Phase is the last phase entered.
	Phase string
	// Error is the failure message, empty on success.
	Error string
	// StartedAt is when processing began.
	StartedAt time.Time
	// Duration is how long processing took.
	Duration time.Duration
}

// Repository stores attempts.
type Repository interface {
	Record(ctx context.Context, attempt Attempt) error
	List(ctx context.Context, limit int) ([]Attempt, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	artifact    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	phase       TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_run_id ON attempts (run_id);
`

var errClosed = errors.New("history repository is closed")

// SQLiteRepository keeps attempts in a SQLite database file.
type SQLiteRepository struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Record stores attempt.
func (r *SQLiteRepository) Record(ctx context.Context, attempt Attempt) error {
	if r.db == nil {
		return errClosed
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, artifact, outcome, phase, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.RunID,
		attempt.Artifact,
		string(attempt.Outcome),
		attempt.Phase,
		attempt.Error,
		attempt.StartedAt.UTC().Format(time.RFC3339Nano),
		attempt.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	return nil
}

// List returns the latest attempts, newest first. A non-positive limit returns everything.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Attempt, error) {
	if r.db == nil {
		return nil, errClosed
	}

	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, artifact, outcome, phase, error, started_at, duration_ms
		 FROM attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var attempts []Attempt

	for rows.Next() {
		var (
			attempt    Attempt
			outcome    string
			startedAt  string
			durationMS int64
		)

		if err := rows.Scan(&attempt.RunID, &attempt.Artifact, &outcome, &attempt.Phase,
			&attempt.Error, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}

		attempt.Outcome = Outcome(outcome)
		attempt.Duration = time.Duration(durationMS) * time.Millisecond

		if attempt.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}

		attempts = append(attempts, attempt)
	}

	return attempts, rows.Err()
}

// Close releases the database.
func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}

	err := r.db.Close()
	r.db = nil

	return err
}

// NopRepository discards attempts. It is used when history is disabled.
type NopRepository struct{}

// Record implements Repository.
func (NopRepository) Record(context.Context, Attempt) error { return nil }

// List implements Repository.
func (NopRepository) List(context.Context, int) ([]Attempt, error) { return nil, nil }

// Close implements Repository.
func (NopRepository) Close() error { return nil }
