package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLoader(t *testing.T) (*PostgresLoader, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewPostgresLoader(sqlx.NewDb(mockDB, "postgres"), 5*time.Second), mock
}

func TestPostgresLoader_Load(t *testing.T) {
	loader, mock := newMockLoader(t)
	base := time.Date(2017, 12, 30, 18, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT aired_at\s+FROM tv_spots`).
		WithArgs("winter").
		WillReturnRows(sqlmock.NewRows([]string{"aired_at"}).
			AddRow(base).
			AddRow(base.Add(5 * time.Minute)))
	mock.ExpectQuery(`SELECT created_at\s+FROM signups`).
		WithArgs("winter").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).
			AddRow(base.Add(-2 * time.Minute)))

	ds, err := loader.Load(context.Background(), "winter")
	require.NoError(t, err)

	assert.Equal(t, []string{"2017-12-30T18:00:00", "2017-12-30T18:05:00"}, ds.Spots)
	assert.Equal(t, []string{"2017-12-30T17:58:00"}, ds.Signups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoader_QueryError(t *testing.T) {
	loader, mock := newMockLoader(t)

	mock.ExpectQuery(`SELECT aired_at`).WithArgs("winter").WillReturnError(errors.New("connection reset"))

	_, err := loader.Load(context.Background(), "winter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query spots")
	assert.NoError(t, mock.ExpectationsWereMet())
}
