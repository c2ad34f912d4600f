package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Tracker is the live queue record shadowing one appointment. Its queue
// number may be compacted independently of the appointment's.
type Tracker struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	AppointmentID   uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	AppointmentDate time.Time  `db:"appointment_date" json:"appointment_date"`
	TimeSlot        string     `db:"time_slot" json:"time_slot"`
	QueueNumber     int        `db:"queue_number" json:"queue_number"`
	Status          Status     `db:"status" json:"status"`
	StartTime       *time.Time `db:"start_time" json:"start_time,omitempty"`
	EndTime         *time.Time `db:"end_time" json:"end_time,omitempty"`
	ActualWaitTime  *int       `db:"actual_wait_time" json:"actual_wait_time,omitempty"`
	Priority        int        `db:"priority" json:"priority"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// NewTracker mirrors a freshly booked appointment. StartTime is the
// booking time.
func NewTracker(a *Appointment, now time.Time) *Tracker {
	start := now
	return &Tracker{
		AppointmentID:   a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		AppointmentDate: a.AppointmentDate,
		TimeSlot:        a.TimeSlot,
		QueueNumber:     a.QueueNumber,
		Status:          a.Status,
		StartTime:       &start,
		IsActive:        !a.Status.IsTerminal(),
	}
}

// Apply mirrors an appointment transition. Entering a terminal status
// records the end time and the wait in whole minutes, and deactivates the
// record.
func (t *Tracker) Apply(to Status, now time.Time) {
	t.Status = to
	switch to {
	case StatusCompleted, StatusCancelled:
		if t.EndTime == nil {
			end := now
			t.EndTime = &end
		}
		if d, ok := t.Duration(); ok {
			w := int(d / time.Minute)
			t.ActualWaitTime = &w
		}
		t.IsActive = false
	case StatusWaiting, StatusInProgress:
	}
}

// Duration is EndTime minus StartTime, clamped at zero.
func (t *Tracker) Duration() (time.Duration, bool) {
	if t.StartTime == nil || t.EndTime == nil {
		return 0, false
	}
	d := t.EndTime.Sub(*t.StartTime)
	if d < 0 {
		d = 0
	}
	return d, true
}

// CurrentWaitMinutes is the time since the record started for a waiting
// patient, zero otherwise.
func CurrentWaitMinutes(t *Tracker, now time.Time) int {
	if t.Status != StatusWaiting || t.StartTime == nil {
		return 0
	}
	d := now.Sub(*t.StartTime)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
