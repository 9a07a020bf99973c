package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frost",
		Subsystem: "broadcast",
		Name:      "sends_total",
		Help:      "Broadcast send attempts by result.",
	}, []string{"result"})

	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "frost",
		Subsystem: "broadcast",
		Name:      "runs_total",
		Help:      "Broadcast runs started.",
	})

	runsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "frost",
		Subsystem: "broadcast",
		Name:      "runs_in_flight",
		Help:      "Broadcast runs currently executing.",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "frost",
		Subsystem: "broadcast",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of broadcast runs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
	})
)
