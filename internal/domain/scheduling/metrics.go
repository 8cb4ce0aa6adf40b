package scheduling

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

const (
	outcomeOK               = "ok"
	outcomeInvalidRequest   = "invalid_request"
	outcomeInvalidTimestamp = "invalid_timestamp"
	outcomeDoctorConflict   = "doctor_conflict"
	outcomePatientConflict  = "patient_conflict"
	outcomeStoreUnavailable = "store_unavailable"
	outcomeError            = "error"
)

// Metrics holds the scheduling collectors. A nil *Metrics records nothing.
type Metrics struct {
	validations *prometheus.CounterVec
	duration    prometheus.Histogram
	writes      *prometheus.CounterVec
	breaker     prometheus.Gauge
}

// NewMetrics registers the scheduling collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "validations_total",
			Help:      "Scheduling validations by outcome.",
		}, []string{"outcome"}),

		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "validation_duration_seconds",
			Help:      "Scheduling validation latency, store queries included.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "appointment_writes_total",
			Help:      "Appointment writes by operation.",
		}, []string{"operation"}),

		breaker: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "store_breaker_state",
			Help:      "Conflict store circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
	}
}

func (m *Metrics) observeValidation(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) recordWrite(op string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(op).Inc()
}

func (m *Metrics) setBreakerState(st gobreaker.State) {
	if m == nil {
		return
	}
	m.breaker.Set(float64(st))
}

func outcomeOf(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &verr):
		return outcomeInvalidRequest
	case errors.Is(err, ErrInvalidTimestamp):
		return outcomeInvalidTimestamp
	case errors.Is(err, ErrDoctorConflict):
		return outcomeDoctorConflict
	case errors.Is(err, ErrPatientConflict):
		return outcomePatientConflict
	case errors.Is(err, ErrStoreUnavailable):
		return outcomeStoreUnavailable
	default:
		return outcomeError
	}
}
