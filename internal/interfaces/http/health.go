package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/sawpanic/spotlift/internal/persistence"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "degraded"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	System    SystemInfo             `json:"system"`
	Checks    map[string]CheckResult `json:"checks"`
}

// SystemInfo provides process level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
}

// CheckResult is the outcome of one dependency check
type CheckResult struct {
	Healthy bool     `json:"healthy"`
	Errors  []string `json:"errors,omitempty"`
	Latency int64    `json:"latency_ms"`
}

// HealthHandler provides the /health endpoint
type HealthHandler struct {
	db        persistence.RepositoryHealth
	startTime time.Time
	version   string
}

// NewHealthHandler creates a health handler; db may be nil
func NewHealthHandler(db persistence.RepositoryHealth, version string) *HealthHandler {
	return &HealthHandler{db: db, startTime: time.Now(), version: version}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
		},
		Checks: map[string]CheckResult{},
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		check := h.db.Health(ctx)
		resp.Checks["database"] = CheckResult{
			Healthy: check.Healthy,
			Errors:  check.Errors,
			Latency: check.ResponseTimeMS,
		}
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
