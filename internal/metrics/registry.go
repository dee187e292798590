package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotlift/internal/attribution"
)

// Step names used for duration and step counters
const (
	StepLoad      = "load"
	StepAttribute = "attribute"
	StepPersist   = "persist"
	StepPublish   = "publish"
)

// Step results
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Registry holds all Prometheus metrics for spotlift
type Registry struct {
	reg *prometheus.Registry

	StepDuration *prometheus.HistogramVec
	Runs         *prometheus.CounterVec
	Signups      *prometheus.CounterVec
	SinkErrors   *prometheus.CounterVec

	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheHitRatio prometheus.Gauge

	LastSpots        prometheus.Gauge
	LastBaselineRate prometheus.Gauge
	LastDuplicates   prometheus.Gauge
}

// NewRegistry creates a registry with every spotlift metric registered on
// its own prometheus.Registry, so repeated construction is safe.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spotlift_step_duration_seconds",
				Help:    "Duration of each run step in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"step", "result"},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotlift_runs_total",
				Help: "Attribution runs by outcome",
			},
			[]string{"outcome"},
		),

		Signups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotlift_signups_total",
				Help: "Signups processed by classification",
			},
			[]string{"class"},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotlift_sink_errors_total",
				Help: "Failures writing finished runs to a sink",
			},
			[]string{"sink"},
		),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spotlift_cache_hits_total",
			Help: "Report cache hits",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spotlift_cache_misses_total",
			Help: "Report cache misses",
		}),

		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spotlift_cache_hit_ratio",
			Help: "Report cache hit ratio (0.0 to 1.0)",
		}),

		LastSpots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spotlift_last_run_spots",
			Help: "Number of bins in the most recent run",
		}),

		LastBaselineRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spotlift_last_run_baseline_rate",
			Help: "Baseline signups per minute in the most recent run",
		}),

		LastDuplicates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spotlift_last_run_duplicate_spots",
			Help: "Spot timestamps collapsed into an existing bin in the most recent run",
		}),
	}

	r.reg.MustRegister(
		r.StepDuration,
		r.Runs,
		r.Signups,
		r.SinkErrors,
		r.CacheHits,
		r.CacheMisses,
		r.CacheHitRatio,
		r.LastSpots,
		r.LastBaselineRate,
		r.LastDuplicates,
	)

	return r
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the registry
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// StepTimer tracks execution time for one run step
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStep begins timing a step
func (r *Registry) StartStep(step string) *StepTimer {
	return &StepTimer{metrics: r, step: step, start: time.Now()}
}

// Stop records the step duration with its result
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Run step completed")
}

// RecordRun records a finished run
func (r *Registry) RecordRun(report *attribution.Report) {
	r.Runs.WithLabelValues("success").Inc()

	var attributed int64
	for _, res := range report.Results {
		attributed += res.Raw
	}
	r.Signups.WithLabelValues("attributed").Add(float64(attributed))
	r.Signups.WithLabelValues("pre_baseline").Add(float64(report.PreBaselineCount))
	r.Signups.WithLabelValues("unattributed").Add(float64(report.Unattributed))

	r.LastSpots.Set(float64(len(report.Results)))
	r.LastBaselineRate.Set(float64(report.BaselineRate))
	r.LastDuplicates.Set(float64(len(report.Duplicates)))
}

// RecordFailure records a run that produced no report
func (r *Registry) RecordFailure(outcome string) {
	r.Runs.WithLabelValues(outcome).Inc()
}

// RecordSinkError records a failed write to a sink
func (r *Registry) RecordSinkError(sink string) {
	r.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordCacheHit records a report cache hit
func (r *Registry) RecordCacheHit() {
	r.CacheHits.Inc()
	r.updateCacheHitRatio()
}

// RecordCacheMiss records a report cache miss
func (r *Registry) RecordCacheMiss() {
	r.CacheMisses.Inc()
	r.updateCacheHitRatio()
}

func (r *Registry) updateCacheHitRatio() {
	hits := counterValue(r.CacheHits)
	total := hits + counterValue(r.CacheMisses)
	if total > 0 {
		r.CacheHitRatio.Set(hits / total)
	}
}

func counterValue(c prometheus.Counter) float64 {
	m := &io_prometheus_client.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
