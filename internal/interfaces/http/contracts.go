package http

import (
	"time"

	"github.com/sawpanic/spotlift/internal/persistence"
)

// RunsResponse lists stored runs, newest first
type RunsResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Count     int               `json:"count"`
	Runs      []persistence.Run `json:"runs"`
}

// ErrorResponse is returned for every non-2xx API answer
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}
