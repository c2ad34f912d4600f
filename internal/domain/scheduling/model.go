package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// PatientSummary is the patient detail embedded in appointment responses.
type PatientSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
}

type DoctorSummary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
}

// PatientInfo is what booking needs to know about a patient.
type PatientInfo struct {
	PatientSummary
	IsVerified bool
}

// DoctorInfo is what booking needs to know about a doctor. WorkStart and
// WorkEnd are "HH:mm" and may be empty.
type DoctorInfo struct {
	DoctorSummary
	IsActive  bool
	WorkStart string
	WorkEnd   string
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	PatientID         uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID          uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	AppointmentDate   time.Time       `db:"appointment_date" json:"appointment_date"`
	TimeSlot          string          `db:"time_slot" json:"time_slot"`
	Status            Status          `db:"status" json:"status"`
	QueueNumber       int             `db:"queue_number" json:"queue_number"`
	EstimatedWaitTime int             `db:"estimated_wait_time" json:"estimated_wait_time"`
	ActualStartTime   *time.Time      `db:"actual_start_time" json:"actual_start_time,omitempty"`
	ActualEndTime     *time.Time      `db:"actual_end_time" json:"actual_end_time,omitempty"`
	Notes             *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	Patient           *PatientSummary `db:"-" json:"patient,omitempty"`
	Doctor            *DoctorSummary  `db:"-" json:"doctor,omitempty"`
}

// ApplyStatus moves the appointment to status under the terminal guard and
// stamps the consultation start or end the first time it is reached.
func (a *Appointment) ApplyStatus(to Status, now time.Time) error {
	if err := CheckTransition(a.Status, to); err != nil {
		return err
	}
	switch to {
	case StatusInProgress:
		if a.ActualStartTime == nil {
			t := now
			a.ActualStartTime = &t
		}
	case StatusCompleted:
		if a.ActualEndTime == nil {
			t := now
			a.ActualEndTime = &t
		}
	case StatusWaiting, StatusCancelled:
	}
	a.Status = to
	return nil
}

// ConsultationDuration is end minus start when both are known.
func (a *Appointment) ConsultationDuration() (time.Duration, bool) {
	if a.ActualStartTime == nil || a.ActualEndTime == nil {
		return 0, false
	}
	return a.ActualEndTime.Sub(*a.ActualStartTime), true
}

// QueueEntry is one row of a doctor's live queue.
type QueueEntry struct {
	Position          int             `json:"position"`
	QueueNumber       int             `json:"queue_number"`
	AppointmentID     uuid.UUID       `json:"appointment_id"`
	Status            Status          `json:"status"`
	TimeSlot          string          `json:"time_slot"`
	Priority          int             `json:"priority"`
	EstimatedWaitTime int             `json:"estimated_wait_time"`
	CurrentWaitTime   int             `json:"current_wait_time"`
	Patient           *PatientSummary `json:"patient,omitempty"`
}

// CurrentStatus is a patient's view of today's appointment.
type CurrentStatus struct {
	Appointment       *Appointment `json:"appointment"`
	Position          int          `json:"position"`
	PatientsAhead     int          `json:"patients_ahead"`
	EstimatedWaitTime int          `json:"estimated_wait_time"`
}

// DoctorStats summarises a doctor's appointments over a date range.
type DoctorStats struct {
	DoctorID                   uuid.UUID      `json:"doctor_id"`
	From                       time.Time      `json:"from"`
	To                         time.Time      `json:"to"`
	Total                      int            `json:"total"`
	ByStatus                   map[Status]int `json:"by_status"`
	AverageWaitMinutes         float64        `json:"average_wait_minutes"`
	AverageConsultationMinutes float64        `json:"average_consultation_minutes"`
}

// StatusEvent is emitted after an appointment status change is committed.
type StatusEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Status        Status    `json:"status"`
	QueueNumber   int       `json:"queue_number"`
	OccurredAt    time.Time `json:"occurred_at"`
}
