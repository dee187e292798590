package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/spotlift/internal/attribution"
	"github.com/sawpanic/spotlift/internal/persistence"
)

// runsRepo implements RunsRepo for PostgreSQL
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a new PostgreSQL run repository
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunsRepo {
	return &runsRepo{
		db:      db,
		timeout: timeout,
	}
}

const selectRuns = `
		SELECT id, created_at, source, digest, report
		FROM attribution_runs`

// Insert stores a run with its report as JSONB
func (r *runsRepo) Insert(ctx context.Context, run persistence.Run) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.Report == nil {
		return fmt.Errorf("run %s has no report", run.ID)
	}

	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO attribution_runs (id, created_at, source, digest, spots, baseline_rate, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.CreatedAt, run.Source, run.Digest,
		len(run.Report.Results), run.Report.BaselineRate, reportJSON)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", persistence.ErrDuplicateRun, run.ID)
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves one run by id
func (r *runsRepo) Get(ctx context.Context, id string) (*persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, selectRuns+`
		WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// Latest returns the most recent runs across all sources
func (r *runsRepo) Latest(ctx context.Context, limit int) ([]persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, selectRuns+`
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// ListBySources returns the most recent runs for any of sources
func (r *runsRepo) ListBySources(ctx context.Context, sources []string, limit int) ([]persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, selectRuns+`
		WHERE source = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2`, pq.Array(sources), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by source: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Helper methods

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*persistence.Run, error) {
	var run persistence.Run
	var reportJSON []byte

	if err := row.Scan(&run.ID, &run.CreatedAt, &run.Source, &run.Digest, &reportJSON); err != nil {
		return nil, err
	}

	run.Report = &attribution.Report{}
	if err := json.Unmarshal(reportJSON, run.Report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &run, nil
}

func scanRuns(rows *sqlx.Rows) ([]persistence.Run, error) {
	var runs []persistence.Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}
