package scheduling

import (
	"context"
	"time"
)

// ConflictStore answers the two read-only questions the validator asks.
// Appointments with status cancelled and the appointment excludeID never
// count. The doctor window is inclusive on both ends; the patient day is
// inclusive on from and exclusive on to.
type ConflictStore interface {
	DoctorHasAppointment(ctx context.Context, doctorID int64, from, to time.Time, excludeID *int64) (bool, error)
	PatientHasAppointment(ctx context.Context, patientID int64, from, to time.Time, excludeID *int64) (bool, error)
}

type AppointmentRepository interface {
	ConflictStore
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	// GetForUpdate reads id and, inside a transaction, holds a row lock on it
	// until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	// UpdateDetails writes patient, doctor, time and reason. Status is left
	// as stored and a.Status is refreshed from the row.
	UpdateDetails(ctx context.Context, a *Appointment) error
	// UpdateStatus moves id from status from to status to. When the stored
	// status is no longer from it returns a *TransitionError naming the
	// stored status.
	UpdateStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error)
	Delete(ctx context.Context, id int64) error
	// List returns matching appointments ordered by scheduled_at and the total
	// match count. Limit <= 0 returns every match.
	List(ctx context.Context, f ListFilter) ([]*Appointment, int, error)
	// WithDoctorLock runs fn while holding an exclusive lock on doctorID.
	// Writes made through the context passed to fn commit only if fn
	// returns nil.
	WithDoctorLock(ctx context.Context, doctorID int64, fn func(ctx context.Context) error) error
}
