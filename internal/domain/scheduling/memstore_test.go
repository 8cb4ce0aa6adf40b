package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memRepo is an in-memory AppointmentRepository used across the package tests.
type memRepo struct {
	mu          sync.Mutex
	doctorLocks sync.Map
	items       map[int64]*Appointment
	nextID      int64

	doctorQueries  int
	patientQueries int
	lockCalls      int
	failWith       error

	// afterRead runs once a read of id has returned, outside the repo lock,
	// so tests can interleave a competing write.
	afterRead func(id int64)
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[int64]*Appointment), nextID: 1}
}

// seed stores an appointment as-is and returns its id.
func (m *memRepo) seed(patientID, doctorID int64, at time.Time, status Status) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.items[id] = &Appointment{
		ID:          id,
		PatientID:   patientID,
		DoctorID:    int64Ptr(doctorID),
		ScheduledAt: at,
		Reason:      strPtr("checkup"),
		Status:      status,
	}
	return id
}

// setStatus overwrites the stored status directly.
func (m *memRepo) setStatus(id int64, st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id].Status = st
}

func (m *memRepo) status(id int64) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

func (m *memRepo) queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doctorQueries + m.patientQueries
}

func (m *memRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a.ID = m.nextID
	m.nextID++
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id int64) (*Appointment, error) {
	a, err := m.read(id)
	if err == nil && m.afterRead != nil {
		m.afterRead(id)
	}
	return a, err
}

func (m *memRepo) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) read(id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) UpdateDetails(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	stored, ok := m.items[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	stored.PatientID = a.PatientID
	stored.DoctorID = a.DoctorID
	stored.ScheduledAt = a.ScheduledAt
	stored.Reason = a.Reason
	stored.UpdatedAt = time.Now()
	a.Status = stored.Status
	a.CreatedAt = stored.CreatedAt
	a.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id int64, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	stored, ok := m.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if stored.Status != from {
		return nil, &TransitionError{From: stored.Status, To: to}
	}
	stored.Status = to
	stored.UpdatedAt = time.Now()
	cp := *stored
	return &cp, nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.items[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, 0, m.failWith
	}
	var matched []*Appointment
	for _, a := range m.items {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && (a.DoctorID == nil || *a.DoctorID != *f.DoctorID) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.From != nil && a.ScheduledAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.ScheduledAt.Before(*f.To) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ScheduledAt.Equal(matched[j].ScheduledAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].ScheduledAt.Before(matched[j].ScheduledAt)
	})

	total := len(matched)
	if f.Limit > 0 {
		if f.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[f.Offset:]
		if len(matched) > f.Limit {
			matched = matched[:f.Limit]
		}
	}
	return matched, total, nil
}

func (m *memRepo) DoctorHasAppointment(_ context.Context, doctorID int64, from, to time.Time, excludeID *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctorQueries++
	if m.failWith != nil {
		return false, m.failWith
	}
	for _, a := range m.items {
		if a.DoctorID == nil || *a.DoctorID != doctorID || a.Status == StatusCancelled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if !a.ScheduledAt.Before(from) && !a.ScheduledAt.After(to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) PatientHasAppointment(_ context.Context, patientID int64, from, to time.Time, excludeID *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patientQueries++
	if m.failWith != nil {
		return false, m.failWith
	}
	for _, a := range m.items {
		if a.PatientID != patientID || a.Status == StatusCancelled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) WithDoctorLock(ctx context.Context, doctorID int64, fn func(ctx context.Context) error) error {
	v, _ := m.doctorLocks.LoadOrStore(doctorID, &sync.Mutex{})
	lock := v.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	m.lockCalls++
	m.mu.Unlock()
	return fn(ctx)
}
