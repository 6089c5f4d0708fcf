package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"warden/internal/throttle/models"
)

type Metrics struct {
	FailuresRecorded *prometheus.CounterVec
	LocksApplied     *prometheus.CounterVec
	ChecksTotal      *prometheus.CounterVec
	Resets           *prometheus.CounterVec
}

// New registers the throttle metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FailuresRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_throttle_failures_recorded_total",
			Help: "Total number of failed attempts recorded per scope",
		}, []string{"scope"}),
		LocksApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_throttle_locks_applied_total",
			Help: "Total number of lockouts persisted per scope",
		}, []string{"scope"}),
		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_throttle_checks_total",
			Help: "Total number of scope checks by outcome",
		}, []string{"scope", "outcome"}),
		Resets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_throttle_resets_total",
			Help: "Total number of scope resets",
		}, []string{"scope"}),
	}
}

func (m *Metrics) IncrementFailures(scope models.Scope) {
	m.FailuresRecorded.WithLabelValues(string(scope)).Inc()
}

func (m *Metrics) IncrementLocks(scope models.Scope) {
	m.LocksApplied.WithLabelValues(string(scope)).Inc()
}

func (m *Metrics) ObserveCheck(scope models.Scope, allowed bool) {
	outcome := "locked"
	if allowed {
		outcome = "allowed"
	}
	m.ChecksTotal.WithLabelValues(string(scope), outcome).Inc()
}

func (m *Metrics) IncrementResets(scope models.Scope) {
	m.Resets.WithLabelValues(string(scope)).Inc()
}
