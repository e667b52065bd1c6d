package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check-in outcome label values.
const (
	OutcomeAdmitted       = "admitted"
	OutcomeAlreadyChecked = "already_checked_in"
	OutcomeInvalidToken   = "invalid_token"
	OutcomeError          = "error"
)

// Metrics holds the Prometheus collectors of the registration desk.
type Metrics struct {
	RegistrationsCreated prometheus.Counter
	RegistrationsFailed  *prometheus.CounterVec
	CheckIns             *prometheus.CounterVec
	CheckInDuration      prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RegistrationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "eventpass_registrations_created_total",
			Help: "Total number of registrations stored",
		}),
		RegistrationsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_registrations_failed_total",
			Help: "Registrations rejected, by reason",
		}, []string{"reason"}),
		CheckIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_checkins_total",
			Help: "Ticket validations, by outcome",
		}, []string{"outcome"}),
		CheckInDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventpass_checkin_duration_ms",
			Help:    "Latency of ticket validation in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
	}
}

func (m *Metrics) IncrementRegistrations() {
	m.RegistrationsCreated.Inc()
}

func (m *Metrics) IncrementRegistrationFailures(reason string) {
	m.RegistrationsFailed.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementCheckIns(outcome string) {
	m.CheckIns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCheckInDuration(ms float64) {
	m.CheckInDuration.Observe(ms)
}
