package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shittim_bridge_calls_total",
			Help: "Bridge calls by mode, action and outcome",
		},
		[]string{"mode", "action", "outcome"},
	)

	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shittim_bridge_call_duration_seconds",
			Help:    "Bridge call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode", "action"},
	)

	sdkFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shittim_bridge_sdk_fallbacks_total",
			Help: "HTTP calls retried over the host SDK after a transport failure",
		},
		[]string{"action", "outcome"},
	)

	modeResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shittim_bridge_mode_resolutions_total",
			Help: "Transport detections by resulting mode",
		},
		[]string{"mode"},
	)

	mockReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shittim_bridge_mock_replies_total",
			Help: "Synthetic student replies dispatched in mock mode",
		},
	)
)

// Register registers bridge metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(callsTotal, callDuration, sdkFallbacks, modeResolutions, mockReplies)
}

func observeCall(mode Mode, action string, err error, d time.Duration) {
	kind := mode.Kind.String()
	callsTotal.WithLabelValues(kind, action, outcome(err)).Inc()
	callDuration.WithLabelValues(kind, action).Observe(d.Seconds())
}
