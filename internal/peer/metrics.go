package peer

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shittim_peer_requests_total",
			Help: "Peer actions handled by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shittim_peer_events_total",
			Help: "Events emitted to host SDK connections",
		},
		[]string{"event"},
	)

	repliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shittim_peer_student_replies_total",
			Help: "Asynchronous student replies sent",
		},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shittim_peer_sdk_connections",
			Help: "Connected host SDK websockets",
		},
	)

	droppedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shittim_peer_dropped_frames_total",
			Help: "Event frames dropped because a connection was not keeping up",
		},
	)
)

// Register registers peer metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(requestsTotal, eventsTotal, repliesTotal, wsConnections, droppedFrames)
}
