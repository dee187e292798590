package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotlift/internal/persistence"
	"github.com/sawpanic/spotlift/internal/pipeline"
	"github.com/sawpanic/spotlift/internal/source"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// handleAttribution runs attribution over a campaign export posted as the body
func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	ds, err := source.DecodeJSON(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err)
		return
	}

	src := r.URL.Query().Get("source")
	if src == "" {
		src = "http"
	}

	run, err := s.deps.Runner.Run(r.Context(), src, ds)
	if err != nil {
		status := http.StatusUnprocessableEntity
		kind := pipeline.Outcome(err)
		if kind == "error" {
			status = http.StatusInternalServerError
		}
		writeError(w, r, status, kind, err)
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

// handleGetRun returns one stored run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := s.deps.Runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleListRuns lists recent runs, optionally filtered by ?source=
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "bad_request", errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	var (
		runs []persistence.Run
		err  error
	)
	if sources := r.URL.Query()["source"]; len(sources) > 0 {
		runs, err = s.deps.Runs.ListBySources(r.Context(), sources, limit)
	} else {
		runs, err = s.deps.Runs.Latest(r.Context(), limit)
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, RunsResponse{
		Timestamp: time.Now().UTC(),
		Count:     len(runs),
		Runs:      runs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Str("component", "http").Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind string, err error) {
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Kind:      kind,
		RequestID: requestID(r),
	})
}
