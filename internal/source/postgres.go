package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/spotlift/internal/attribution"
)

// PostgresLoader reads a campaign's spots and signups from the tv_spots and
// signups tables.
type PostgresLoader struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresLoader creates a loader over an open connection pool
func NewPostgresLoader(db *sqlx.DB, timeout time.Duration) *PostgresLoader {
	return &PostgresLoader{db: db, timeout: timeout}
}

// Load returns the timestamps recorded for campaign, formatted with attribution.Layout
func (l *PostgresLoader) Load(ctx context.Context, campaign string) (Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	spots, err := l.selectTimes(ctx, `
		SELECT aired_at
		FROM tv_spots
		WHERE campaign = $1
		ORDER BY aired_at`, campaign)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to query spots: %w", err)
	}

	signups, err := l.selectTimes(ctx, `
		SELECT created_at
		FROM signups
		WHERE campaign = $1
		ORDER BY created_at`, campaign)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to query signups: %w", err)
	}

	return Dataset{Spots: spots, Signups: signups}, nil
}

func (l *PostgresLoader) selectTimes(ctx context.Context, query, campaign string) ([]string, error) {
	var rows []time.Time
	if err := l.db.SelectContext(ctx, &rows, query, campaign); err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, t := range rows {
		out[i] = t.UTC().Format(attribution.Layout)
	}
	return out, nil
}
