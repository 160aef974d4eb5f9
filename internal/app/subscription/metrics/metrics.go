package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enrollment use cases. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Payment attempts by allocation source and outcome ("success", "failed", "error")
	PaymentsTotal *prometheus.CounterVec

	// Enrollment steps completed by step type
	StepsCompletedTotal *prometheus.CounterVec

	// Lifecycle transitions driven by the use cases
	EnrollmentsStartedTotal prometheus.Counter
	ActivationsTotal        prometheus.Counter
	CancellationsTotal      prometheus.Counter

	// Requests rejected because another request held the subscription lock
	LockContentionTotal prometheus.Counter
}

// New creates a Metrics instance registered with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_payments_total",
			Help: "Total payment attempts by allocation source and outcome",
		}, []string{"source", "outcome"}),

		StepsCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_steps_completed_total",
			Help: "Total enrollment steps completed by step type",
		}, []string{"step"}),

		EnrollmentsStartedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_started_total",
			Help: "Total subscriptions moved from draft into enrollment",
		}),

		ActivationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_activations_total",
			Help: "Total subscriptions activated",
		}),

		CancellationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_cancellations_total",
			Help: "Total subscriptions cancelled",
		}),

		LockContentionTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_lock_contention_total",
			Help: "Total requests rejected because the subscription was locked",
		}),
	}
}

// IncrementPayment records one payment attempt.
func (m *Metrics) IncrementPayment(source, outcome string) {
	if m != nil {
		m.PaymentsTotal.WithLabelValues(source, outcome).Inc()
	}
}

func (m *Metrics) IncrementStepCompleted(step string) {
	if m != nil {
		m.StepsCompletedTotal.WithLabelValues(step).Inc()
	}
}

func (m *Metrics) IncrementEnrollmentStarted() {
	if m != nil {
		m.EnrollmentsStartedTotal.Inc()
	}
}

func (m *Metrics) IncrementActivation() {
	if m != nil {
		m.ActivationsTotal.Inc()
	}
}

func (m *Metrics) IncrementCancellation() {
	if m != nil {
		m.CancellationsTotal.Inc()
	}
}

func (m *Metrics) IncrementLockContention() {
	if m != nil {
		m.LockContentionTotal.Inc()
	}
}
