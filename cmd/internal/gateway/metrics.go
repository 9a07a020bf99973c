package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "frost",
	Subsystem: "gateway",
	Name:      "sessions_active",
	Help:      "WebSocket sessions currently registered in the hub.",
})
