package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentRepository persists appointments. Dates are calendar days;
// only their year, month and day are significant.
type AppointmentRepository interface {
	// Create stores a and fills ID and timestamps. It returns
	// ErrSlotUnavailable, ErrAlreadyBooked or errQueueTaken when a storage
	// uniqueness rule is violated.
	Create(ctx context.Context, a *Appointment) error
	// GetByID returns ErrAppointmentNotFound when there is no such row.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update writes a only while the stored row is still waiting or
	// in-progress. A stored terminal status yields ErrAlreadyCompleted or
	// ErrAlreadyCancelled and leaves the row untouched.
	Update(ctx context.Context, a *Appointment) error
	// MaxQueueNumber includes cancelled appointments; 0 when none exist.
	MaxQueueNumber(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	// BookedSlots returns the time slots of non-cancelled appointments.
	BookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error)
	// ActiveForPatientOnDate returns the patient's non-cancelled
	// appointment on date, or nil.
	ActiveForPatientOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, status *Status, limit, offset int) ([]*Appointment, int, error)
	// CountAhead counts non-cancelled appointments of doctor+date with a
	// lower queue number, and how many of those are still in the queue.
	CountAhead(ctx context.Context, doctorID uuid.UUID, date time.Time, queueNumber int) (ahead, inQueue int, err error)
	// RecentConsultations returns up to limit durations of the doctor's
	// latest completed appointments that have both timestamps.
	RecentConsultations(ctx context.Context, doctorID uuid.UUID, limit int) ([]time.Duration, error)
	// Stats fills counts per status and the mean consultation length for
	// appointments dated within [from, to].
	Stats(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*DoctorStats, error)
}

type TrackerRepository interface {
	Create(ctx context.Context, t *Tracker) error
	// GetByAppointment returns nil when the appointment has no tracker.
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Tracker, error)
	Update(ctx context.Context, t *Tracker) error
	// ListActive returns active waiting and in-progress rows ordered by
	// queue number.
	ListActive(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Tracker, error)
	// NextWaiting returns the lowest-numbered active waiting row, or nil.
	NextWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Tracker, error)
	// ShiftQueueNumbers decrements active waiting rows numbered above
	// removed and returns how many changed.
	ShiftQueueNumbers(ctx context.Context, doctorID uuid.UUID, date time.Time, removed int) (int64, error)
	// AverageWait is the mean actual_wait_time of completed rows in range.
	AverageWait(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (float64, error)
	// DeactivateBefore closes active rows dated before date.
	DeactivateBefore(ctx context.Context, date time.Time) (int64, error)
}

// TxRunner runs fn inside one storage transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Directory looks up patients and doctors owned by the identity domain.
// Both methods return nil, nil for unknown ids.
type Directory interface {
	Patient(ctx context.Context, id uuid.UUID) (*PatientInfo, error)
	Doctor(ctx context.Context, id uuid.UUID) (*DoctorInfo, error)
}

// Publisher delivers status events to interested clients.
type Publisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent) error
}
