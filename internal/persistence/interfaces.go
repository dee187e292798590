package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/spotlift/internal/attribution"
)

// ErrNotFound is returned when a run id is unknown
var ErrNotFound = errors.New("run not found")

// ErrDuplicateRun is returned when a run id is inserted twice
var ErrDuplicateRun = errors.New("duplicate run")

// Run is one completed attribution computation
type Run struct {
	ID        string              `json:"id" db:"id"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
	Source    string              `json:"source" db:"source"` // file path, campaign or "http"
	Digest    string              `json:"digest" db:"digest"` // dataset digest used as cache key
	Cached    bool                `json:"cached" db:"-"`
	Report    *attribution.Report `json:"report" db:"-"`
}

// RunsRepo provides run history persistence
type RunsRepo interface {
	// Insert stores a finished run; the id must be unique
	Insert(ctx context.Context, run Run) error

	// Get returns the run with id or ErrNotFound
	Get(ctx context.Context, id string) (*Run, error)

	// Latest returns the most recent runs, newest first
	Latest(ctx context.Context, limit int) ([]Run, error)

	// ListBySources returns the most recent runs for any of the given sources
	ListBySources(ctx context.Context, sources []string, limit int) ([]Run, error)
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool,omitempty"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
}
