package notifications

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type dispatcherMetrics struct {
	events   prometheus.Counter
	attempts *prometheus.CounterVec
}

var (
	dispatchMetricsOnce sync.Once
	dispatchMetricsInst *dispatcherMetrics
)

func dispatchMetrics() *dispatcherMetrics {
	dispatchMetricsOnce.Do(func() {
		dispatchMetricsInst = &dispatcherMetrics{
			events: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "fieldserve",
				Subsystem: "dispatch",
				Name:      "events_total",
				Help:      "Events that matched at least one subscription",
			}),
			attempts: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fieldserve",
				Subsystem: "dispatch",
				Name:      "attempts_total",
				Help:      "Delivery attempts, labeled by channel and outcome",
			}, []string{"channel", "status"}),
		}
	})
	return dispatchMetricsInst
}
