package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sawpanic/spotlift/internal/config"
	"github.com/sawpanic/spotlift/internal/persistence"
	"github.com/sawpanic/spotlift/internal/persistence/postgres"
	"github.com/sawpanic/spotlift/internal/source"
)

// Manager owns the connection pool and the repositories built on it
type Manager struct {
	db     *sqlx.DB
	config config.PostgresConfig
	runs   persistence.RunsRepo
	loader *source.PostgresLoader
}

// NewManager opens and pings the pool. A disabled config yields a manager
// with no repositories.
func NewManager(cfg config.PostgresConfig) (*Manager, error) {
	if !cfg.Enabled {
		return &Manager{config: cfg}, nil
	}

	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newManagerWithDB(db, cfg), nil
}

func newManagerWithDB(db *sqlx.DB, cfg config.PostgresConfig) *Manager {
	return &Manager{
		db:     db,
		config: cfg,
		runs:   postgres.NewRunsRepo(db, cfg.QueryTimeout),
		loader: source.NewPostgresLoader(db, cfg.QueryTimeout),
	}
}

// Runs returns the run repository, or nil if the database is disabled
func (m *Manager) Runs() persistence.RunsRepo {
	return m.runs
}

// Loader returns the campaign loader, or nil if the database is disabled
func (m *Manager) Loader() *source.PostgresLoader {
	return m.loader
}

// IsEnabled returns whether database persistence is enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Health pings the database and reports pool statistics
func (m *Manager) Health(ctx context.Context) persistence.HealthCheck {
	if !m.IsEnabled() {
		return persistence.HealthCheck{
			Healthy:   true,
			Errors:    []string{"database persistence disabled"},
			LastCheck: time.Now(),
		}
	}

	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()

	var errs []string
	healthy := true
	if err := m.db.PingContext(pingCtx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := m.db.Stats()
	return persistence.HealthCheck{
		Healthy: healthy,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open":   stats.MaxOpenConnections,
			"open":       stats.OpenConnections,
			"in_use":     stats.InUse,
			"idle":       stats.Idle,
			"wait_count": int(stats.WaitCount),
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}
