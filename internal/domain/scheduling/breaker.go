package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures the circuit breaker around the conflict store.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failed queries that opens the
	// breaker. Zero disables the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe
	// query through.
	OpenTimeout time.Duration
	// Metrics, when set, exports the breaker state as a gauge.
	Metrics *Metrics
}

// BreakerStore fails conflict queries fast while the underlying store is
// known to be down. It never retries; an open breaker surfaces as
// gobreaker.ErrOpenState.
type BreakerStore struct {
	next ConflictStore
	cb   *gobreaker.CircuitBreaker[bool]
}

// NewBreakerStore wraps next. With MaxFailures zero it returns next unchanged.
func NewBreakerStore(next ConflictStore, s BreakerSettings, logger zerolog.Logger) ConflictStore {
	if s.MaxFailures == 0 {
		return next
	}
	cb := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        "appointment-store",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		// A caller giving up is not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.Metrics.setBreakerState(to)
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) DoctorHasAppointment(ctx context.Context, doctorID int64, from, to time.Time, excludeID *int64) (bool, error) {
	return b.cb.Execute(func() (bool, error) {
		return b.next.DoctorHasAppointment(ctx, doctorID, from, to, excludeID)
	})
}

func (b *BreakerStore) PatientHasAppointment(ctx context.Context, patientID int64, from, to time.Time, excludeID *int64) (bool, error) {
	return b.cb.Execute(func() (bool, error) {
		return b.next.PatientHasAppointment(ctx, patientID, from, to, excludeID)
	})
}
