// Package metrics 站点分析相关的 prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "site_compare"

var (
	siteOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "site_outcomes_total",
		Help:      "Site analyses by terminal outcome (succeeded, unreachable, form_not_found, timed_out, cancelled, internal).",
	}, []string{"outcome"})
	siteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "site_duration_seconds",
		Help:      "Wall time of a single site analysis.",
		Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90},
	})
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_sessions_active",
		Help:      "Browser sessions currently open.",
	})
	batchesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_started_total",
		Help:      "Batches started by source (stream, queue, cli).",
	}, []string{"source"})
	batchesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_cancelled_total",
		Help:      "Batches stopped before every site ran.",
	})
)

func RecordSiteOutcome(outcome string, d time.Duration) {
	siteOutcomes.WithLabelValues(outcome).Inc()
	siteDuration.Observe(d.Seconds())
}

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }

func RecordBatchStart(source string) {
	batchesStarted.WithLabelValues(source).Inc()
}

func RecordBatchCancelled() {
	batchesCancelled.Inc()
}
