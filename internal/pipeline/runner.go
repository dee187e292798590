package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sawpanic/spotlift/internal/attribution"
	"github.com/sawpanic/spotlift/internal/cache"
	applog "github.com/sawpanic/spotlift/internal/log"
	"github.com/sawpanic/spotlift/internal/metrics"
	"github.com/sawpanic/spotlift/internal/persistence"
	"github.com/sawpanic/spotlift/internal/source"
)

// Publisher receives every finished run
type Publisher interface {
	Publish(ctx context.Context, run persistence.Run) error
}

// Options wires a Runner. Only Metrics is required; nil collaborators are skipped.
type Options struct {
	Policy    attribution.DuplicatePolicy
	Cache     cache.Cache
	Runs      persistence.RunsRepo
	Publisher Publisher
	Metrics   *metrics.Registry
	Strict    bool // fail the run when persisting or publishing fails
}

// Runner executes attribution runs: cache lookup, attribution, persistence
// and publishing. It is safe for concurrent use; each run works on its own
// inputs.
type Runner struct {
	engine    *attribution.Engine
	policy    attribution.DuplicatePolicy
	cache     cache.Cache
	runs      persistence.RunsRepo
	publisher Publisher
	metrics   *metrics.Registry
	strict    bool
	logger    zerolog.Logger

	mu        sync.RWMutex
	listeners []func(persistence.Run)

	now   func() time.Time
	newID func() string
}

// NewRunner creates a runner from opts
func NewRunner(opts Options) *Runner {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewRegistry()
	}
	policy := opts.Policy
	if policy == "" {
		policy = attribution.DuplicatesCollapse
	}
	return &Runner{
		engine:    attribution.NewEngine(policy),
		policy:    policy,
		cache:     opts.Cache,
		runs:      opts.Runs,
		publisher: opts.Publisher,
		metrics:   m,
		strict:    opts.Strict,
		logger:    applog.Component("pipeline"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
}

// Subscribe registers fn to be called with every successful run
func (r *Runner) Subscribe(fn func(persistence.Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// LoadAndRun loads name through loader and runs attribution on the result
func (r *Runner) LoadAndRun(ctx context.Context, loader source.Loader, name string) (*persistence.Run, error) {
	timer := r.metrics.StartStep(metrics.StepLoad)
	ds, err := loader.Load(ctx, name)
	if err != nil {
		timer.Stop(metrics.ResultError)
		r.metrics.RecordFailure(Outcome(err))
		return nil, err
	}
	timer.Stop(metrics.ResultSuccess)

	return r.Run(ctx, name, ds)
}

// Run attributes ds. Core failures return no run. Persistence and publishing
// failures are logged and counted, and only fail the run in strict mode.
func (r *Runner) Run(ctx context.Context, src string, ds source.Dataset) (*persistence.Run, error) {
	run := persistence.Run{
		ID:        r.newID(),
		CreatedAt: r.now(),
		Source:    src,
		Digest:    ds.Digest(),
	}
	key := cache.Key(run.Digest, r.policy)

	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, key); ok {
			r.metrics.RecordCacheHit()
			run.Report = cached
			run.Cached = true
		} else {
			r.metrics.RecordCacheMiss()
		}
	}

	if run.Report == nil {
		timer := r.metrics.StartStep(metrics.StepAttribute)
		report, err := r.engine.Run(ds.Spots, ds.Signups)
		if err != nil {
			timer.Stop(metrics.ResultError)
			r.metrics.RecordFailure(Outcome(err))
			r.logger.Error().Err(err).Str("source", src).Msg("Attribution failed")
			return nil, err
		}
		timer.Stop(metrics.ResultSuccess)
		run.Report = report

		if r.cache != nil {
			r.cache.Set(ctx, key, report)
		}
	}

	if n := len(run.Report.Duplicates); n > 0 {
		r.logger.Warn().Str("source", src).Int("duplicates", n).
			Msg("Duplicate spot timestamps collapsed into one bin")
	}

	if err := r.persist(ctx, run); err != nil && r.strict {
		return nil, err
	}
	if err := r.publish(ctx, run); err != nil && r.strict {
		return nil, err
	}

	r.metrics.RecordRun(run.Report)
	r.logger.Info().
		Str("run_id", run.ID).
		Str("source", src).
		Int("spots", len(run.Report.Results)).
		Int64("baseline_rate", run.Report.BaselineRate).
		Bool("cached", run.Cached).
		Msg("Attribution run completed")

	r.notify(run)
	return &run, nil
}

func (r *Runner) persist(ctx context.Context, run persistence.Run) error {
	if r.runs == nil {
		return nil
	}
	timer := r.metrics.StartStep(metrics.StepPersist)
	if err := r.runs.Insert(ctx, run); err != nil {
		timer.Stop(metrics.ResultError)
		r.metrics.RecordSinkError("runs")
		r.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist run")
		return fmt.Errorf("persist run: %w", err)
	}
	timer.Stop(metrics.ResultSuccess)
	return nil
}

func (r *Runner) publish(ctx context.Context, run persistence.Run) error {
	if r.publisher == nil {
		return nil
	}
	timer := r.metrics.StartStep(metrics.StepPublish)
	if err := r.publisher.Publish(ctx, run); err != nil {
		timer.Stop(metrics.ResultError)
		r.metrics.RecordSinkError("publisher")
		r.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to publish run")
		return fmt.Errorf("publish run: %w", err)
	}
	timer.Stop(metrics.ResultSuccess)
	return nil
}

func (r *Runner) notify(run persistence.Run) {
	r.mu.RLock()
	listeners := make([]func(persistence.Run), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(run)
	}
}

// Outcome classifies an error for metrics and exit codes
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, attribution.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, attribution.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, attribution.ErrDegenerateInterval):
		return "degenerate_interval"
	default:
		return "error"
	}
}
