package async

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for buffered event delivery.
type Metrics struct {
	Enqueued     prometheus.Counter
	Dropped      prometheus.Counter
	Delivered    prometheus.Counter
	Failed       prometheus.Counter
	Buffered     prometheus.Gauge
	BreakerState prometheus.Gauge
}

// NewMetrics registers the delivery metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_events_enqueued_total",
			Help: "Total number of lifecycle events accepted for asynchronous delivery",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_events_dropped_total",
			Help: "Total number of lifecycle events dropped because the buffer was full",
		}),
		Delivered: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_events_delivered_total",
			Help: "Total number of lifecycle events delivered to the sink",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_events_delivery_failures_total",
			Help: "Total number of failed delivery attempts",
		}),
		Buffered: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_events_buffered",
			Help: "Current number of events waiting for delivery",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_events_breaker_open",
			Help: "Sink circuit breaker state (0=closed, 1=open)",
		}),
	}
}
