package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/spotlift/internal/attribution"
	"github.com/sawpanic/spotlift/internal/persistence"
)

func newMockRepo(t *testing.T) (persistence.RunsRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewRunsRepo(sqlx.NewDb(mockDB, "postgres"), 5*time.Second), mock
}

func sampleRun() persistence.Run {
	spot := time.Date(2017, 12, 30, 18, 0, 0, 0, time.UTC)
	return persistence.Run{
		ID:        "0b6f3c52-8d0e-4c55-9d7c-0f7f5d1a2b3c",
		CreatedAt: time.Date(2025, 9, 7, 10, 0, 0, 0, time.UTC),
		Source:    "winter",
		Digest:    "abc123",
		Report: &attribution.Report{
			Results:      []attribution.Result{{Ordinal: 1, SpotTime: spot, Raw: 4, Adjusted: 2}},
			BaselineRate: 1,
		},
	}
}

func TestRunsRepo_Insert(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()

	mock.ExpectExec(`INSERT INTO attribution_runs`).
		WithArgs(run.ID, run.CreatedAt, run.Source, run.Digest, 1, int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRepo_InsertDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO attribution_runs`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := repo.Insert(context.Background(), sampleRun())
	assert.True(t, errors.Is(err, persistence.ErrDuplicateRun))
}

func TestRunsRepo_InsertWithoutReport(t *testing.T) {
	repo, _ := newMockRepo(t)
	run := sampleRun()
	run.Report = nil

	err := repo.Insert(context.Background(), run)
	assert.Contains(t, err.Error(), "no report")
}

func TestRunsRepo_Get(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()
	reportJSON, err := json.Marshal(run.Report)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, created_at, source, digest, report\s+FROM attribution_runs\s+WHERE id = \$1`).
		WithArgs(run.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "source", "digest", "report"}).
			AddRow(run.ID, run.CreatedAt, run.Source, run.Digest, reportJSON))

	got, err := repo.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Source, got.Source)
	require.NotNil(t, got.Report)
	assert.Equal(t, run.Report.Results, got.Report.Results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRepo_GetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM attribution_runs`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "source", "digest", "report"}))

	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestRunsRepo_LatestAndSources(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()
	reportJSON, err := json.Marshal(run.Report)
	require.NoError(t, err)
	columns := []string{"id", "created_at", "source", "digest", "report"}

	mock.ExpectQuery(`ORDER BY created_at DESC\s+LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(run.ID, run.CreatedAt, run.Source, run.Digest, reportJSON).
			AddRow("second", run.CreatedAt.Add(-time.Hour), "http", "def", reportJSON))

	runs, err := repo.Latest(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "second", runs[1].ID)

	mock.ExpectQuery(`WHERE source = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"winter"}), 10).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(run.ID, run.CreatedAt, run.Source, run.Digest, reportJSON))

	runs, err = repo.ListBySources(context.Background(), []string{"winter"}, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
