package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/slipway-ci/slipway/pkg/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id         TEXT PRIMARY KEY,
	claimed_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	delivery_id TEXT NOT NULL,
	repository  TEXT NOT NULL,
	project     TEXT NOT NULL DEFAULT '',
	tag_name    TEXT NOT NULL,
	prerelease  INTEGER NOT NULL DEFAULT 0,
	commit_sha  TEXT NOT NULL,
	status      TEXT NOT NULL,
	steps       TEXT NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

// Store persists delivery claims and run records in SQLite. Run records
// hold metadata only; tokens never reach this layer.
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create store directory", goerr.V("path", path))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open run store", goerr.V("path", path))
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent webhook deliveries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to apply run store schema", goerr.V("path", path))
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ClaimDelivery records a webhook delivery ID. It returns false when the ID
// was already claimed.
func (s *Store) ClaimDelivery(ctx context.Context, deliveryID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (id, claimed_at) VALUES (?, ?)`,
		deliveryID, time.Now().UTC())
	if err != nil {
		return false, goerr.Wrap(err, "failed to claim delivery", goerr.V("delivery_id", deliveryID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to read claim result", goerr.V("delivery_id", deliveryID))
	}
	return n == 1, nil
}

// SaveRun inserts or updates a run record.
func (s *Store) SaveRun(ctx context.Context, run *model.PipelineRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return goerr.Wrap(err, "failed to encode run steps", goerr.V("run_id", run.ID))
	}

	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, delivery_id, repository, project, tag_name, prerelease, commit_sha, status, steps, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project = excluded.project,
			status = excluded.status,
			steps = excluded.steps,
			error = excluded.error,
			finished_at = excluded.finished_at`,
		run.ID, run.DeliveryID, run.Repository, run.Project, run.TagName,
		boolToInt(run.Prerelease), run.CommitSHA, string(run.Status),
		string(steps), run.Error, run.StartedAt.UTC(), finished)
	if err != nil {
		return goerr.Wrap(err, "failed to save run", goerr.V("run_id", run.ID))
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, delivery_id, repository, project, tag_name, prerelease, commit_sha, status, steps, error, started_at, finished_at
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(err, "run not found", goerr.V("run_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load run", goerr.V("run_id", id))
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, repository, project, tag_name, prerelease, commit_sha, status, steps, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*model.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan run row")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate run rows")
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.PipelineRun, error) {
	var (
		run        model.PipelineRun
		status     string
		steps      string
		prerelease int
		finished   sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.DeliveryID, &run.Repository, &run.Project,
		&run.TagName, &prerelease, &run.CommitSHA, &status, &steps,
		&run.Error, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	run.Prerelease = prerelease != 0
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return nil, err
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
