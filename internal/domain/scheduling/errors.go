package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTimestamp        = errors.New("scheduled_at is not a valid date and time")
	ErrDoctorConflict          = errors.New("doctor already has an appointment scheduled in that time window")
	ErrPatientConflict         = errors.New("patient already has an appointment scheduled that day")
	ErrStoreUnavailable        = errors.New("appointment store unavailable")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
)

// ValidationError lists request fields that are missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// storeError keeps the cause of a failed store query reachable through
// errors.Is/As while matching ErrStoreUnavailable.
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsConflict reports whether err is a doctor or patient scheduling conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDoctorConflict) || errors.Is(err, ErrPatientConflict)
}
