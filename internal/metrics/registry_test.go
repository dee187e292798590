package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/spotlift/internal/attribution"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &io_prometheus_client.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func vecValue(t *testing.T, v *prometheus.CounterVec, label string) float64 {
	t.Helper()
	c, err := v.GetMetricWithLabelValues(label)
	require.NoError(t, err)
	return counterValue(c)
}

func TestRegistry_RecordRun(t *testing.T) {
	r := NewRegistry()
	report := &attribution.Report{
		Results: []attribution.Result{
			{Ordinal: 1, Raw: 2, Adjusted: 3},
			{Ordinal: 2, Raw: 1, Adjusted: 1},
		},
		PreBaselineCount: 2,
		BaselineRate:     1,
		Unattributed:     1,
		Duplicates:       []time.Time{time.Now()},
	}

	r.RecordRun(report)

	assert.Equal(t, 1.0, vecValue(t, r.Runs, "success"))
	assert.Equal(t, 3.0, vecValue(t, r.Signups, "attributed"))
	assert.Equal(t, 2.0, vecValue(t, r.Signups, "pre_baseline"))
	assert.Equal(t, 1.0, vecValue(t, r.Signups, "unattributed"))
	assert.Equal(t, 2.0, gaugeValue(t, r.LastSpots))
	assert.Equal(t, 1.0, gaugeValue(t, r.LastBaselineRate))
	assert.Equal(t, 1.0, gaugeValue(t, r.LastDuplicates))
}

func TestRegistry_CacheHitRatio(t *testing.T) {
	r := NewRegistry()

	r.RecordCacheMiss()
	assert.Equal(t, 0.0, gaugeValue(t, r.CacheHitRatio))

	r.RecordCacheHit()
	r.RecordCacheHit()
	r.RecordCacheHit()
	assert.Equal(t, 0.75, gaugeValue(t, r.CacheHitRatio))
}

func TestRegistry_FailuresAndSinks(t *testing.T) {
	r := NewRegistry()

	r.RecordFailure("degenerate_interval")
	r.RecordSinkError("kafka")
	r.StartStep(StepAttribute).Stop(ResultError)

	assert.Equal(t, 1.0, vecValue(t, r.Runs, "degenerate_interval"))
	assert.Equal(t, 1.0, vecValue(t, r.SinkErrors, "kafka"))

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["spotlift_step_duration_seconds"])
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.RecordCacheHit()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "spotlift_cache_hits_total 1")
}

func TestNewRegistry_Repeatable(t *testing.T) {
	assert.NotPanics(t, func() {
		NewRegistry()
		NewRegistry()
	})
}
