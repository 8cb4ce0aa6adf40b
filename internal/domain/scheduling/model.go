package scheduling

import (
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusScheduled: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s Status) IsValid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID          int64     `db:"id" json:"id"`
	PatientID   int64     `db:"patient_id" json:"patient_id"`
	DoctorID    *int64    `db:"doctor_id" json:"doctor_id,omitempty"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Reason      *string   `db:"reason" json:"reason,omitempty"`
	Status      Status    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) CanTransitionTo(next Status) bool {
	for _, s := range statusTransitions[a.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// Candidate is a proposed appointment time submitted for conflict validation.
// PatientID nil skips the patient same-day check. ExcludeID is the appointment
// being rescheduled, so it never conflicts with itself.
type Candidate struct {
	DoctorID    int64
	PatientID   *int64
	ScheduledAt string
	ExcludeID   *int64
}

// CreateAppointmentRequest is the payload of the validated create path.
type CreateAppointmentRequest struct {
	PatientID   int64  `json:"patient_id"`
	DoctorID    int64  `json:"doctor_id"`
	ScheduledAt string `json:"scheduled_at"`
	Reason      string `json:"reason"`
}

// UpdateAppointmentRequest carries the fields present in an update payload.
// Nil means the field was not sent.
type UpdateAppointmentRequest struct {
	PatientID   *int64  `json:"patient_id,omitempty"`
	DoctorID    *int64  `json:"doctor_id,omitempty"`
	ScheduledAt *string `json:"scheduled_at,omitempty"`
	Reason      *string `json:"reason,omitempty"`
}

// ListFilter narrows an appointment listing. Date selects one civil day and
// takes precedence over From/To.
type ListFilter struct {
	PatientID *int64
	DoctorID  *int64
	Status    *Status
	Date      *time.Time
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }
