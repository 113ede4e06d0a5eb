package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Checkouts        *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
	CheckoutDuration prometheus.Histogram
}

// New registers the engine's metrics on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "requests_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "webhook_events_total",
			Help:      "Provider webhook deliveries by type and outcome.",
		}, []string{"type", "outcome"}),
		CheckoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "request_duration_ms",
			Help:      "Checkout latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
	reg.MustRegister(m.Checkouts, m.WebhookEvents, m.CheckoutDuration)
	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}
