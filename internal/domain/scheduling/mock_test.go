package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// -- Mock Repositories --

type mockAppointmentRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
	order []uuid.UUID

	// queueCollisions makes the next n Create calls fail with errQueueTaken.
	queueCollisions int
	bookedErr       error
	creates         int
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.queueCollisions > 0 {
		m.queueCollisions--
		return errQueueTaken
	}
	for _, o := range m.appts {
		if !sameDay(o.AppointmentDate, a.AppointmentDate) {
			continue
		}
		active := o.Status != StatusCancelled
		if active && o.DoctorID == a.DoctorID && o.TimeSlot == a.TimeSlot {
			return ErrSlotUnavailable
		}
		if active && o.PatientID == a.PatientID {
			return ErrAlreadyBooked
		}
		if o.DoctorID == a.DoctorID && o.QueueNumber == a.QueueNumber {
			return errQueueTaken
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	m.order = append(m.order, a.ID)
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.appts[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if err := CheckTransition(stored.Status, a.Status); err != nil {
		return err
	}
	cp := *a
	cp.Patient, cp.Doctor = nil, nil
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) MaxQueueNumber(_ context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	highest := 0
	for _, a := range m.appts {
		if a.DoctorID == doctorID && sameDay(a.AppointmentDate, date) && a.QueueNumber > highest {
			highest = a.QueueNumber
		}
	}
	return highest, nil
}

func (m *mockAppointmentRepo) BookedSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bookedErr != nil {
		return nil, m.bookedErr
	}
	var out []string
	for _, a := range m.appts {
		if a.DoctorID == doctorID && sameDay(a.AppointmentDate, date) && a.Status != StatusCancelled {
			out = append(out, a.TimeSlot)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) ActiveForPatientOnDate(_ context.Context, patientID uuid.UUID, date time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.PatientID == patientID && sameDay(a.AppointmentDate, date) && a.Status != StatusCancelled {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID, status *Status, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Appointment
	for i := len(m.order) - 1; i >= 0; i-- {
		a := m.appts[m.order[i]]
		if a.PatientID != patientID || (status != nil && a.Status != *status) {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].AppointmentDate.After(all[j].AppointmentDate) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockAppointmentRepo) CountAhead(_ context.Context, doctorID uuid.UUID, date time.Time, queueNumber int) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ahead, inQueue := 0, 0
	for _, a := range m.appts {
		if a.DoctorID != doctorID || !sameDay(a.AppointmentDate, date) || a.Status == StatusCancelled || a.QueueNumber >= queueNumber {
			continue
		}
		ahead++
		if a.Status.InQueue() {
			inQueue++
		}
	}
	return ahead, inQueue, nil
}

func (m *mockAppointmentRepo) RecentConsultations(_ context.Context, doctorID uuid.UUID, limit int) ([]time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var done []*Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Status == StatusCompleted && a.ActualStartTime != nil && a.ActualEndTime != nil {
			done = append(done, a)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].ActualEndTime.After(*done[j].ActualEndTime) })
	var out []time.Duration
	for i := 0; i < len(done) && i < limit; i++ {
		d, _ := done[i].ConsultationDuration()
		out = append(out, d)
	}
	return out, nil
}

func (m *mockAppointmentRepo) Stats(_ context.Context, doctorID uuid.UUID, from, to time.Time) (*DoctorStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &DoctorStats{DoctorID: doctorID, From: from, To: to, ByStatus: map[Status]int{}}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}
	var total time.Duration
	n := 0
	for _, a := range m.appts {
		d := CivilDate(a.AppointmentDate, from.Location())
		if a.DoctorID != doctorID || d.Before(from) || d.After(to) {
			continue
		}
		st.ByStatus[a.Status]++
		st.Total++
		if dur, ok := a.ConsultationDuration(); ok && a.Status == StatusCompleted {
			total += dur
			n++
		}
	}
	if n > 0 {
		st.AverageConsultationMinutes = (total / time.Duration(n)).Minutes()
	}
	return st, nil
}

type mockTrackerRepo struct {
	mu       sync.Mutex
	trackers map[uuid.UUID]*Tracker // by appointment id
}

func newMockTrackerRepo() *mockTrackerRepo {
	return &mockTrackerRepo{trackers: make(map[uuid.UUID]*Tracker)}
}

func (m *mockTrackerRepo) Create(_ context.Context, t *Tracker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	cp := *t
	m.trackers[t.AppointmentID] = &cp
	return nil
}

func (m *mockTrackerRepo) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[appointmentID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockTrackerRepo) Update(_ context.Context, t *Tracker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trackers[t.AppointmentID] = &cp
	return nil
}

func (m *mockTrackerRepo) active(doctorID uuid.UUID, date time.Time, statuses ...Status) []*Tracker {
	var out []*Tracker
	for _, t := range m.trackers {
		if t.DoctorID != doctorID || !sameDay(t.AppointmentDate, date) || !t.IsActive {
			continue
		}
		for _, s := range statuses {
			if t.Status == s {
				cp := *t
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out
}

func (m *mockTrackerRepo) ListActive(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active(doctorID, date, StatusWaiting, StatusInProgress), nil
}

func (m *mockTrackerRepo) NextWaiting(_ context.Context, doctorID uuid.UUID, date time.Time) (*Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rows := m.active(doctorID, date, StatusWaiting); len(rows) > 0 {
		return rows[0], nil
	}
	return nil, nil
}

func (m *mockTrackerRepo) ShiftQueueNumbers(_ context.Context, doctorID uuid.UUID, date time.Time, removed int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.trackers {
		if t.DoctorID == doctorID && sameDay(t.AppointmentDate, date) && t.IsActive &&
			t.Status == StatusWaiting && t.QueueNumber > removed {
			t.QueueNumber--
			n++
		}
	}
	return n, nil
}

func (m *mockTrackerRepo) AverageWait(_ context.Context, doctorID uuid.UUID, from, to time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, n := 0, 0
	for _, t := range m.trackers {
		if t.DoctorID == doctorID && t.Status == StatusCompleted && t.ActualWaitTime != nil {
			sum += *t.ActualWaitTime
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (m *mockTrackerRepo) DeactivateBefore(_ context.Context, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.trackers {
		if t.IsActive && CivilDate(t.AppointmentDate, date.Location()).Before(date) {
			t.IsActive = false
			n++
		}
	}
	return n, nil
}

// -- Collaborators --

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockDirectory struct {
	patients map[uuid.UUID]*PatientInfo
	doctors  map[uuid.UUID]*DoctorInfo
	err      error
}

func (d *mockDirectory) Patient(_ context.Context, id uuid.UUID) (*PatientInfo, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.patients[id], nil
}

func (d *mockDirectory) Doctor(_ context.Context, id uuid.UUID) (*DoctorInfo, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.doctors[id], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []StatusEvent
	err    error
}

func (p *recordingPublisher) PublishStatus(_ context.Context, ev StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) last() (StatusEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return StatusEvent{}, false
	}
	return p.events[len(p.events)-1], true
}

var errStorage = errors.New("connection refused")
