package graph

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics_ToggleDuringRun(t *testing.T) {
	t.Run("disabled mid-run", func(t *testing.T) {
		metrics := NewPrometheusMetrics(prometheus.NewRegistry())
		metrics.RunStarted()
		metrics.Disable()
		metrics.RunFinished(StatusCompleted)

		if got := testutil.ToFloat64(metrics.inflight); got != 0 {
			t.Errorf("inflight = %v, want 0", got)
		}
		if got := testutil.ToFloat64(metrics.runs.WithLabelValues("completed")); got != 0 {
			t.Errorf("completed runs = %v, want 0 while disabled", got)
		}
	})

	t.Run("enabled mid-run", func(t *testing.T) {
		metrics := NewPrometheusMetrics(prometheus.NewRegistry())
		metrics.Disable()
		metrics.RunStarted()
		metrics.Enable()
		metrics.RunFinished(StatusFailed)

		if got := testutil.ToFloat64(metrics.inflight); got != 0 {
			t.Errorf("inflight = %v, want 0", got)
		}
		if got := testutil.ToFloat64(metrics.runs.WithLabelValues("failed")); got != 1 {
			t.Errorf("failed runs = %v, want 1", got)
		}
	})

	t.Run("nil metrics", func(t *testing.T) {
		var metrics *PrometheusMetrics
		metrics.RunStarted()
		metrics.RunFinished(StatusCompleted)
	})
}
