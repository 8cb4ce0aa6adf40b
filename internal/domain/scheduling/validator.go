package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Zack-y11/clinica-dental-system/internal/domain/scheduling"

// Validator decides whether a candidate appointment time is free for the
// doctor and, optionally, the patient. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	store   ConflictStore
	loc     *time.Location
	metrics *Metrics
	logger  zerolog.Logger
	tracer  trace.Tracer
}

type ValidatorOption func(*Validator)

// WithLocation sets the clinic time zone used for zone-less timestamps and
// for the patient's calendar day. Defaults to UTC.
func WithLocation(loc *time.Location) ValidatorOption {
	return func(v *Validator) {
		if loc != nil {
			v.loc = loc
		}
	}
}

func WithMetrics(m *Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

func WithLogger(logger zerolog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logger }
}

func NewValidator(store ConflictStore, opts ...ValidatorOption) *Validator {
	v := &Validator{
		store:  store,
		loc:    time.UTC,
		logger: zerolog.Nop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Location returns the clinic time zone.
func (v *Validator) Location() *time.Location {
	return v.loc
}

// Validate returns nil when c can be booked. Failures match one of
// ErrInvalidTimestamp, ErrDoctorConflict, ErrPatientConflict or
// ErrStoreUnavailable; a candidate without a doctor yields a *ValidationError.
// The doctor window is checked before the patient day and the first failure
// is returned. A malformed timestamp never reaches the store.
func (v *Validator) Validate(ctx context.Context, c Candidate) (err error) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, "scheduling.Validate",
		trace.WithAttributes(attribute.Int64("doctor.id", c.DoctorID)))
	if c.PatientID != nil {
		span.SetAttributes(attribute.Int64("patient.id", *c.PatientID))
	}
	defer func() {
		outcome := outcomeOf(err)
		span.SetAttributes(attribute.String("scheduling.outcome", outcome))
		if outcome == outcomeStoreUnavailable {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store unavailable")
		}
		span.End()
		v.metrics.observeValidation(outcome, time.Since(start))
	}()

	if c.DoctorID <= 0 {
		return &ValidationError{Fields: []string{"doctor_id is required"}}
	}

	at, err := ParseScheduledAt(c.ScheduledAt, v.loc)
	if err != nil {
		v.logger.Debug().Str("scheduled_at", c.ScheduledAt).Msg("rejected unparseable timestamp")
		return err
	}

	from, to := DoctorWindow(at)
	busy, err := v.store.DoctorHasAppointment(ctx, c.DoctorID, from, to, c.ExcludeID)
	if err != nil {
		v.logger.Error().Err(err).Int64("doctor_id", c.DoctorID).Msg("doctor window query failed")
		return storeError("doctor window query", err)
	}
	if busy {
		v.logger.Debug().
			Int64("doctor_id", c.DoctorID).
			Time("scheduled_at", at).
			Msg("doctor conflict")
		return ErrDoctorConflict
	}

	if c.PatientID == nil {
		return nil
	}

	dayStart, dayEnd := DayBounds(at, v.loc)
	busy, err = v.store.PatientHasAppointment(ctx, *c.PatientID, dayStart, dayEnd, c.ExcludeID)
	if err != nil {
		v.logger.Error().Err(err).Int64("patient_id", *c.PatientID).Msg("patient day query failed")
		return storeError("patient day query", err)
	}
	if busy {
		v.logger.Debug().
			Int64("patient_id", *c.PatientID).
			Time("day", dayStart).
			Msg("patient conflict")
		return ErrPatientConflict
	}
	return nil
}
