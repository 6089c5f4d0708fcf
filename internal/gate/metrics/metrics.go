package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Logins        *prometheus.CounterVec
	LoginDuration prometheus.Histogram
	Logouts       *prometheus.CounterVec
	Resumes       *prometheus.CounterVec
	TokenFlows    *prometheus.CounterVec
}

// New registers the gate metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_gate_logins_total",
			Help: "Total number of login attempts by outcome and reason",
		}, []string{"outcome", "reason"}),
		LoginDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_gate_login_duration_seconds",
			Help:    "Time spent deciding a login",
			Buckets: prometheus.DefBuckets,
		}),
		Logouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_gate_logouts_total",
			Help: "Total number of logouts by mode",
		}, []string{"mode"}),
		Resumes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_gate_resumes_total",
			Help: "Total number of session resumes by source and outcome",
		}, []string{"source", "outcome"}),
		TokenFlows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_gate_token_flows_total",
			Help: "Total number of activation and reminder completions by status",
		}, []string{"flow", "status"}),
	}
}

func (m *Metrics) ObserveLogin(outcome, reason string, elapsed time.Duration) {
	m.Logins.WithLabelValues(outcome, reason).Inc()
	m.LoginDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementLogouts(everywhere bool) {
	mode := "session"
	if everywhere {
		mode = "everywhere"
	}
	m.Logouts.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveResume(source, outcome string) {
	m.Resumes.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveTokenFlow(flow, status string) {
	m.TokenFlows.WithLabelValues(flow, status).Inc()
}
