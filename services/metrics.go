package services

import "github.com/prometheus/client_golang/prometheus"

var (
	authEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Identity operations by kind and result",
		},
		[]string{"event", "result"},
	)
	recordSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_submissions_total",
			Help: "Leaderboard submissions by difficulty and outcome",
		},
		[]string{"difficulty", "outcome"},
	)
	recordEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_evictions_total",
			Help: "Records removed to keep a difficulty at its retained size",
		},
		[]string{"difficulty"},
	)
	coinsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coins_moved_total",
			Help: "Coins granted or spent",
		},
		[]string{"direction", "reason"},
	)
)

// Collectors returns the service metrics for registration next to the HTTP ones.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{authEvents, recordSubmissions, recordEvictions, coinsMoved}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
