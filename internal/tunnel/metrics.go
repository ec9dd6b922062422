package tunnel

import "github.com/prometheus/client_golang/prometheus"

var attemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tunnelwatch_tunnel_attempts_total",
		Help: "Connector attempts by action and result.",
	},
	[]string{"action", "result"},
)

func init() {
	prometheus.MustRegister(attemptsTotal)
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
