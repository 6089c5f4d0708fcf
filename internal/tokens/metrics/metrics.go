package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"warden/internal/tokens/models"
)

type Metrics struct {
	Issued      *prometheus.CounterVec
	Validations *prometheus.CounterVec
	Completions *prometheus.CounterVec
	Revoked     *prometheus.CounterVec
	Collected   prometheus.Counter
}

// New registers the ledger metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tokens_issued_total",
			Help: "Total number of tokens issued per kind",
		}, []string{"kind"}),
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tokens_validations_total",
			Help: "Total number of token validations by kind and status",
		}, []string{"kind", "status"}),
		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tokens_completions_total",
			Help: "Total number of completion attempts by kind and status",
		}, []string{"kind", "status"}),
		Revoked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tokens_revoked_total",
			Help: "Total number of tokens revoked per kind",
		}, []string{"kind"}),
		Collected: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_tokens_collected_total",
			Help: "Total number of expired tokens removed by garbage collection",
		}),
	}
}

func (m *Metrics) IncrementIssued(kind models.Kind) {
	m.Issued.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ObserveValidation(kind models.Kind, status models.Status) {
	m.Validations.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *Metrics) ObserveCompletion(kind models.Kind, status models.Status) {
	m.Completions.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *Metrics) AddRevoked(kind models.Kind, n int) {
	m.Revoked.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) AddCollected(n int) {
	m.Collected.Add(float64(n))
}
