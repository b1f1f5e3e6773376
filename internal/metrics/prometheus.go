package metrics

import "github.com/prometheus/client_golang/prometheus"

type Prometheus struct {
	Operations *prometheus.CounterVec
}

func NewPrometheusMetrics() Prometheus {
	return Prometheus{Operations: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "desk",
			Name:      "operations",
		}, []string{"operation", "outcome"}),
	}
}
