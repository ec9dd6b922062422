package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunnelwatch_probe_duration_seconds",
			Help:    "Latency of endpoint probes that got an answer.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelwatch_probes_total",
			Help: "Endpoint probes by result.",
		},
		[]string{"endpoint", "result"},
	)
	endpointsConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunnelwatch_endpoints_connected",
			Help: "Endpoints currently connected, by security classification.",
		},
		[]string{"classification"},
	)
)

func init() {
	prometheus.MustRegister(probeDuration, probesTotal, endpointsConnected)
}

func recordStats(s Stats) {
	endpointsConnected.WithLabelValues("secured").Set(float64(s.SecuredConnected))
	endpointsConnected.WithLabelValues("unsecured").Set(float64(s.UnsecuredConnected))
}
