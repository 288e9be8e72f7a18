package escalation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type sweepMetrics struct {
	runs      prometheus.Counter
	reminders *prometheus.CounterVec
	flagged   prometheus.Counter
	errors    prometheus.Counter
	durations prometheus.Observer
}

var (
	sweepMetricsOnce sync.Once
	sweepMetricsInst *sweepMetrics
)

func globalSweepMetrics() *sweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetricsInst = newSweepMetrics()
	})
	return sweepMetricsInst
}

func newSweepMetrics() *sweepMetrics {
	return &sweepMetrics{
		runs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldserve",
			Subsystem: "escalation",
			Name:      "sweep_runs_total",
			Help:      "Total escalation sweep executions",
		}),
		reminders: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldserve",
			Subsystem: "escalation",
			Name:      "reminders_sent_total",
			Help:      "Reminders sent by the escalation sweeps, labeled by kind",
		}, []string{"kind"}),
		flagged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldserve",
			Subsystem: "escalation",
			Name:      "requests_flagged_total",
			Help:      "Requests flagged after exhausting acknowledgment retries",
		}),
		errors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldserve",
			Subsystem: "escalation",
			Name:      "sweep_errors_total",
			Help:      "Per-request failures during escalation sweeps",
		}),
		durations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fieldserve",
			Subsystem: "escalation",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of escalation sweep executions",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *sweepMetrics) recordRun() func() {
	if m == nil {
		return func() {}
	}
	m.runs.Inc()
	timer := prometheus.NewTimer(m.durations)
	return func() {
		timer.ObserveDuration()
	}
}

func (m *sweepMetrics) recordResult(result *SweepResult) {
	if m == nil || result == nil {
		return
	}
	if result.AckReminders > 0 {
		m.reminders.WithLabelValues("acknowledge").Add(float64(result.AckReminders))
	}
	if result.StartReminders > 0 {
		m.reminders.WithLabelValues("start").Add(float64(result.StartReminders))
	}
	if result.Flagged > 0 {
		m.flagged.Add(float64(result.Flagged))
	}
	if result.Errors > 0 {
		m.errors.Add(float64(result.Errors))
	}
}
