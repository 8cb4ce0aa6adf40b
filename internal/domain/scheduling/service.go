package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig carries the optional collaborators of Service.
type ServiceConfig struct {
	// LockWrites serializes validated writes per doctor through
	// AppointmentRepository.WithDoctorLock.
	LockWrites bool
	Metrics    *Metrics
	Logger     zerolog.Logger
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

type Service struct {
	appointments AppointmentRepository
	validator    *Validator
	lockWrites   bool
	metrics      *Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appt AppointmentRepository, v *Validator, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		appointments: appt,
		validator:    v,
		lockWrites:   cfg.LockWrites,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		now:          now,
	}
}

// Location returns the clinic time zone shared with the validator.
func (s *Service) Location() *time.Location {
	return s.validator.Location()
}

// CreateAppointment validates the request against the doctor's and patient's
// schedules and inserts it as scheduled.
func (s *Service) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	var missing []string
	if req.PatientID <= 0 {
		missing = append(missing, "patient_id is required")
	}
	if req.DoctorID <= 0 {
		missing = append(missing, "doctor_id is required")
	}
	if strings.TrimSpace(req.ScheduledAt) == "" {
		missing = append(missing, "scheduled_at is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		missing = append(missing, "reason is required")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	at, err := ParseScheduledAt(req.ScheduledAt, s.Location())
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:   req.PatientID,
		DoctorID:    int64Ptr(req.DoctorID),
		ScheduledAt: at,
		Reason:      strPtr(strings.TrimSpace(req.Reason)),
		Status:      StatusScheduled,
	}
	candidate := Candidate{
		DoctorID:    req.DoctorID,
		PatientID:   int64Ptr(req.PatientID),
		ScheduledAt: req.ScheduledAt,
	}

	err = s.withDoctorLock(ctx, req.DoctorID, func(ctx context.Context) error {
		if err := s.validator.Validate(ctx, candidate); err != nil {
			return err
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return storeError("create appointment", err)
		}
		return nil
	})
	if IsConflict(err) {
		s.logger.Info().
			Int64("doctor_id", req.DoctorID).
			Int64("patient_id", req.PatientID).
			Time("scheduled_at", at).
			Str("reason", err.Error()).
			Msg("appointment rejected")
	}
	if err != nil {
		return nil, err
	}

	s.metrics.recordWrite("create")
	s.logger.Info().
		Int64("appointment_id", a.ID).
		Int64("doctor_id", req.DoctorID).
		Int64("patient_id", req.PatientID).
		Time("scheduled_at", at).
		Msg("appointment created")
	return a, nil
}

// UpdateAppointment applies the fields present in req. Conflict validation
// runs only when validate is set, the payload carries both doctor_id and
// scheduled_at, and the stored appointment is still scheduled. The patient
// day is checked only when the payload carries patient_id.
func (s *Service) UpdateAppointment(ctx context.Context, id int64, req UpdateAppointmentRequest, validate bool) (*Appointment, error) {
	var invalid []string
	if req.PatientID != nil && *req.PatientID <= 0 {
		invalid = append(invalid, "patient_id must be positive")
	}
	if req.DoctorID != nil && *req.DoctorID <= 0 {
		invalid = append(invalid, "doctor_id must be positive")
	}
	if len(invalid) > 0 {
		return nil, &ValidationError{Fields: invalid}
	}

	var at time.Time
	if req.ScheduledAt != nil {
		parsed, err := ParseScheduledAt(*req.ScheduledAt, s.Location())
		if err != nil {
			return nil, err
		}
		at = parsed
	}

	wantsCheck := validate && req.DoctorID != nil && req.ScheduledAt != nil

	var (
		updated *Appointment
		checked bool
	)
	write := func(ctx context.Context) error {
		current, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return wrapStore("get appointment", err)
		}
		if req.PatientID != nil {
			current.PatientID = *req.PatientID
		}
		if req.DoctorID != nil {
			current.DoctorID = int64Ptr(*req.DoctorID)
		}
		if req.ScheduledAt != nil {
			current.ScheduledAt = at
		}
		if req.Reason != nil {
			current.Reason = strPtr(*req.Reason)
		}

		if wantsCheck && !current.Status.IsTerminal() {
			checked = true
			candidate := Candidate{
				DoctorID:    *req.DoctorID,
				PatientID:   req.PatientID,
				ScheduledAt: *req.ScheduledAt,
				ExcludeID:   int64Ptr(id),
			}
			if err := s.validator.Validate(ctx, candidate); err != nil {
				return err
			}
		}
		if err := s.appointments.UpdateDetails(ctx, current); err != nil {
			return wrapStore("update appointment", err)
		}
		updated = current
		return nil
	}

	var err error
	if wantsCheck {
		err = s.withDoctorLock(ctx, *req.DoctorID, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.recordWrite("update")
	s.logger.Info().
		Int64("appointment_id", id).
		Bool("validated", checked).
		Msg("appointment updated")
	return updated, nil
}

func (s *Service) CompleteAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted)
}

func (s *Service) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id int64, next Status) (*Appointment, error) {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, wrapStore("get appointment", err)
	}
	if !current.CanTransitionTo(next) {
		return nil, &TransitionError{From: current.Status, To: next}
	}
	a, err := s.appointments.UpdateStatus(ctx, id, current.Status, next)
	if err != nil {
		return nil, wrapStore("update appointment status", err)
	}

	s.metrics.recordWrite(string(next))
	s.logger.Info().
		Int64("appointment_id", id).
		Str("status", string(next)).
		Msg("appointment status changed")
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, wrapStore("get appointment", err)
	}
	return a, nil
}

// ListAppointments applies f. A Date filter is expanded to its civil day in
// the clinic time zone and replaces From/To.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]*Appointment, int, error) {
	if f.Status != nil && !f.Status.IsValid() {
		return nil, 0, &ValidationError{Fields: []string{"status must be one of scheduled, completed, cancelled"}}
	}
	if f.Date != nil {
		start, end := DayBounds(*f.Date, s.Location())
		f.From, f.To = &start, &end
	}
	items, total, err := s.appointments.List(ctx, f)
	if err != nil {
		return nil, 0, storeError("list appointments", err)
	}
	return items, total, nil
}

// DeleteAppointment removes the row without any conflict logic.
func (s *Service) DeleteAppointment(ctx context.Context, id int64) error {
	if err := s.appointments.Delete(ctx, id); err != nil {
		return wrapStore("delete appointment", err)
	}
	s.metrics.recordWrite("delete")
	s.logger.Info().Int64("appointment_id", id).Msg("appointment deleted")
	return nil
}

// DoctorAgenda returns the doctor's appointments from the start of day from
// through the end of day to, both civil dates in the clinic time zone. Nil
// bounds default to today.
func (s *Service) DoctorAgenda(ctx context.Context, doctorID int64, from, to *time.Time) ([]*Appointment, error) {
	if doctorID <= 0 {
		return nil, &ValidationError{Fields: []string{"doctor id must be positive"}}
	}
	today := s.now().In(s.Location())
	if from == nil {
		from = &today
	}
	if to == nil {
		to = from
	}
	start, _ := DayBounds(*from, s.Location())
	_, end := DayBounds(*to, s.Location())
	if !end.After(start) {
		return nil, &ValidationError{Fields: []string{"to must not be before from"}}
	}

	items, _, err := s.appointments.List(ctx, ListFilter{DoctorID: &doctorID, From: &start, To: &end})
	if err != nil {
		return nil, storeError("doctor agenda", err)
	}
	return items, nil
}

// CheckAvailability runs the validator without writing anything.
func (s *Service) CheckAvailability(ctx context.Context, c Candidate) error {
	return s.validator.Validate(ctx, c)
}

func (s *Service) withDoctorLock(ctx context.Context, doctorID int64, fn func(ctx context.Context) error) error {
	if !s.lockWrites {
		return fn(ctx)
	}
	return s.appointments.WithDoctorLock(ctx, doctorID, fn)
}

// wrapStore passes domain errors through and marks everything else as a
// store failure.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrInvalidStatusTransition) {
		return err
	}
	return storeError(op, err)
}
