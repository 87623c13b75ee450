package judge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "explab",
		Subsystem: "judge",
		Name:      "run_duration_seconds",
		Help:      "Duration of sandboxed judge runs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"driver"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explab",
		Subsystem: "judge",
		Name:      "run_failures_total",
		Help:      "Number of judge runs that could not produce a result",
	}, []string{"driver"})
)

// ObserveRun records the outcome of one judge run for the given driver.
func ObserveRun(driver string, started time.Time, err error) {
	runDuration.WithLabelValues(driver).Observe(time.Since(started).Seconds())
	if err != nil {
		runFailures.WithLabelValues(driver).Inc()
	}
}
