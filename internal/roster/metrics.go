package roster

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shittim_roster_refreshes_total",
			Help: "Roster refreshes by outcome",
		},
		[]string{"outcome"},
	)

	placeholders = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shittim_roster_placeholders_total",
			Help: "Registered students merged without a catalog entry",
		},
	)

	rosterSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shittim_roster_records",
			Help: "Records in the current roster",
		},
	)
)

// Register registers roster metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(refreshes, placeholders, rosterSize)
}
