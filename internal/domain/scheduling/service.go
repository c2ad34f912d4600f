package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/apperr"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/lock"
)

// maxAllocationAttempts bounds retries when a queue number is claimed
// concurrently.
const maxAllocationAttempts = 3

// DefaultBookingWindowDays is how far ahead bookings are accepted.
const DefaultBookingWindowDays = 30

// Options tune the service. Zero values fall back to the defaults.
type Options struct {
	Window            ClinicWindow
	Location          *time.Location
	AvgServiceMinutes int
	BookingWindowDays int
	Now               func() time.Time
}

type Service struct {
	appointments AppointmentRepository
	trackers     TrackerRepository
	tx           TxRunner
	locker       lock.Locker
	directory    Directory
	events       Publisher
	logger       zerolog.Logger

	window      ClinicWindow
	loc         *time.Location
	avgMinutes  int
	bookingDays int
	now         func() time.Time
}

func NewService(appts AppointmentRepository, trackers TrackerRepository, tx TxRunner, locker lock.Locker,
	dir Directory, events Publisher, logger zerolog.Logger, opts Options) *Service {
	s := &Service{
		appointments: appts,
		trackers:     trackers,
		tx:           tx,
		locker:       locker,
		directory:    dir,
		events:       events,
		logger:       logger.With().Str("component", "scheduling").Logger(),
		window:       opts.Window,
		loc:          opts.Location,
		avgMinutes:   opts.AvgServiceMinutes,
		bookingDays:  opts.BookingWindowDays,
		now:          opts.Now,
	}
	if s.window.Interval <= 0 {
		s.window = DefaultClinicWindow()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.avgMinutes <= 0 {
		s.avgMinutes = DefaultServiceMinutes
	}
	if s.bookingDays <= 0 {
		s.bookingDays = DefaultBookingWindowDays
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().In(s.loc) }

func (s *Service) today() time.Time { return CivilDate(s.clock(), s.loc) }

// ParseDate reads a YYYY-MM-DD date in the clinic time zone.
func (s *Service) ParseDate(v string) (time.Time, error) {
	return ParseDate(v, s.loc)
}

// Today is the current calendar day in the clinic time zone.
func (s *Service) Today() time.Time { return s.today() }

func (s *Service) windowFor(d *DoctorInfo) ClinicWindow {
	if d.WorkStart == "" || d.WorkEnd == "" {
		return s.window
	}
	w, err := ParseClinicWindow(d.WorkStart, d.WorkEnd, s.window.Interval)
	if err != nil {
		s.logger.Warn().Str("doctor_id", d.ID.String()).Str("start", d.WorkStart).Str("end", d.WorkEnd).
			Msg("invalid working hours, using clinic window")
		return s.window
	}
	return w
}

func (s *Service) activeDoctor(ctx context.Context, id uuid.UUID) (*DoctorInfo, error) {
	d, err := s.directory.Doctor(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if d == nil {
		return nil, ErrDoctorNotFound
	}
	if !d.IsActive {
		return nil, ErrDoctorInactive
	}
	return d, nil
}

// -- Availability --

// GetAvailableSlots returns the doctor's slot grid for date. When booked
// slots cannot be read every slot is reported unavailable.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	doctor, err := s.activeDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	day := CivilDate(date, s.loc)
	slots := GenerateSlots(day, s.clock(), s.windowFor(doctor))

	booked, err := s.appointments.BookedSlots(ctx, doctorID, day)
	if err != nil {
		s.logger.Error().Err(err).Str("doctor_id", doctorID.String()).Str("date", day.Format(dateLayout)).
			Msg("booked slot lookup failed, reporting no availability")
		return Unavailable(slots), nil
	}
	return ResolveAvailability(slots, booked), nil
}

// -- Booking --

type BookingRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	TimeSlot  string
	Notes     *string
}

// BookAppointment validates the request, then allocates a queue number and
// stores the appointment with its tracker while holding the doctor's
// allocation lock for that day.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	today := s.today()
	date := CivilDate(req.Date, s.loc)
	if req.Date.IsZero() || date.Before(today) || date.After(today.AddDate(0, 0, s.bookingDays)) {
		return nil, ErrInvalidDate
	}

	patient, err := s.directory.Patient(ctx, req.PatientID)
	if err != nil {
		return nil, storageErr(err)
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}
	if !patient.IsVerified {
		return nil, ErrPatientNotVerified
	}

	doctor, err := s.activeDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if req.Notes != nil && utf8.RuneCountInString(*req.Notes) > MaxNotesLength {
		return nil, ErrNotesTooLong
	}

	window := s.windowFor(doctor)
	if !window.Contains(req.TimeSlot) {
		return nil, ErrInvalidTimeSlot
	}

	var appt *Appointment
	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		appt, err = s.allocate(ctx, req, date, window)
		if !errors.Is(err, errQueueTaken) {
			break
		}
		s.logger.Warn().Int("attempt", attempt).Str("doctor_id", req.DoctorID.String()).
			Str("date", date.Format(dateLayout)).Msg("queue number collision")
	}
	if errors.Is(err, errQueueTaken) {
		return nil, ErrQueueCollision
	}
	if err != nil {
		return nil, storageErr(err)
	}

	appt.Patient = &patient.PatientSummary
	appt.Doctor = &doctor.DoctorSummary
	s.logger.Info().Str("appointment_id", appt.ID.String()).Str("doctor_id", appt.DoctorID.String()).
		Int("queue_number", appt.QueueNumber).Msg("appointment booked")
	s.publish(ctx, appt)
	return appt, nil
}

func allocationKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("queue:%s:%s", doctorID, date.Format(dateLayout))
}

func (s *Service) allocate(ctx context.Context, req BookingRequest, date time.Time, window ClinicWindow) (*Appointment, error) {
	release, err := s.locker.Acquire(ctx, allocationKey(req.DoctorID, date))
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperr.Wrap(ErrQueueCollision, err)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire allocation lock: %w", err)
	}
	defer release()

	var created *Appointment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.clock()
		booked, err := s.appointments.BookedSlots(ctx, req.DoctorID, date)
		if err != nil {
			return err
		}
		slot, ok := findSlot(ResolveAvailability(GenerateSlots(date, now, window), booked), req.TimeSlot)
		if !ok || !slot.Available {
			return ErrSlotUnavailable
		}

		existing, err := s.appointments.ActiveForPatientOnDate(ctx, req.PatientID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyBooked
		}

		maxQueue, err := s.appointments.MaxQueueNumber(ctx, req.DoctorID, date)
		if err != nil {
			return err
		}
		appt := &Appointment{
			PatientID:         req.PatientID,
			DoctorID:          req.DoctorID,
			AppointmentDate:   date,
			TimeSlot:          req.TimeSlot,
			Status:            StatusWaiting,
			QueueNumber:       maxQueue + 1,
			EstimatedWaitTime: EstimateWait(maxQueue+1, s.avgMinutes),
			Notes:             req.Notes,
		}
		if err := s.appointments.Create(ctx, appt); err != nil {
			return err
		}
		if err := s.trackers.Create(ctx, NewTracker(appt, now)); err != nil {
			return err
		}
		created = appt
		return nil
	})
	return created, err
}

// -- Lifecycle --

// CancelAppointment cancels the patient's own appointment.
func (s *Service) CancelAppointment(ctx context.Context, patientID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, storageErr(err)
	}
	if appt.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	if err := s.transition(ctx, appt, StatusCancelled, nil); err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", appt.ID.String()).Msg("appointment cancelled")
	return appt, nil
}

type StatusUpdate struct {
	AppointmentID uuid.UUID
	Status        string
	Notes         *string
	// DoctorID restricts the update to that doctor's appointments when set.
	DoctorID *uuid.UUID
}

// UpdateStatus applies a doctor-side status change.
func (s *Service) UpdateStatus(ctx context.Context, upd StatusUpdate) (*Appointment, error) {
	to, err := ParseStatus(upd.Status)
	if err != nil {
		return nil, err
	}
	if upd.Notes != nil && utf8.RuneCountInString(*upd.Notes) > MaxNotesLength {
		return nil, ErrNotesTooLong
	}
	appt, err := s.appointments.GetByID(ctx, upd.AppointmentID)
	if err != nil {
		return nil, storageErr(err)
	}
	if upd.DoctorID != nil && appt.DoctorID != *upd.DoctorID {
		return nil, ErrAppointmentNotFound
	}
	if err := s.transition(ctx, appt, to, upd.Notes); err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", appt.ID.String()).Str("status", string(to)).Msg("appointment status updated")
	return appt, nil
}

// transition persists a status change on the appointment and its tracker
// in one transaction, then emits the status event.
func (s *Service) transition(ctx context.Context, appt *Appointment, to Status, notes *string) error {
	now := s.clock()
	if err := appt.ApplyStatus(to, now); err != nil {
		return err
	}
	if notes != nil {
		appt.Notes = notes
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.Update(ctx, appt); err != nil {
			return err
		}
		t, err := s.trackers.GetByAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		t.Apply(to, now)
		return s.trackers.Update(ctx, t)
	})
	if err != nil {
		return storageErr(err)
	}
	s.publish(ctx, appt)
	return nil
}

func (s *Service) publish(ctx context.Context, appt *Appointment) {
	if s.events == nil {
		return
	}
	ev := StatusEvent{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Status:        appt.Status,
		QueueNumber:   appt.QueueNumber,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.events.PublishStatus(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("status event not delivered")
	}
}

// -- Queries --

// GetAppointment returns the appointment when it belongs to patientID.
func (s *Service) GetAppointment(ctx context.Context, patientID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if appt.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	s.attachDoctor(ctx, appt)
	return appt, nil
}

// ListPatientAppointments pages through a patient's appointments, newest
// date first. status may be empty.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Appointment, int, error) {
	var filter *Status
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, 0, err
		}
		filter = &st
	}
	items, total, err := s.appointments.ListByPatient(ctx, patientID, filter, limit, offset)
	if err != nil {
		return nil, 0, storageErr(err)
	}
	for _, a := range items {
		s.attachDoctor(ctx, a)
	}
	return items, total, nil
}

func (s *Service) attachDoctor(ctx context.Context, a *Appointment) {
	d, err := s.directory.Doctor(ctx, a.DoctorID)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", a.DoctorID.String()).Msg("doctor lookup failed")
		return
	}
	if d != nil {
		a.Doctor = &d.DoctorSummary
	}
}

// GetCurrentStatus returns today's non-cancelled appointment for the
// patient with its live position, or nil when there is none.
func (s *Service) GetCurrentStatus(ctx context.Context, patientID uuid.UUID) (*CurrentStatus, error) {
	appt, err := s.appointments.ActiveForPatientOnDate(ctx, patientID, s.today())
	if err != nil {
		return nil, storageErr(err)
	}
	if appt == nil {
		return nil, nil
	}
	ahead, inQueue, err := s.appointments.CountAhead(ctx, appt.DoctorID, appt.AppointmentDate, appt.QueueNumber)
	if err != nil {
		return nil, storageErr(err)
	}
	s.attachDoctor(ctx, appt)

	st := &CurrentStatus{Appointment: appt, Position: ahead + 1, PatientsAhead: inQueue}
	if appt.Status.InQueue() {
		st.EstimatedWaitTime = EstimateWait(inQueue+1, s.observedAverage(ctx, appt.DoctorID))
	}
	return st, nil
}

// observedAverage is the doctor's recent mean consultation length, or the
// configured average when history is missing or unreadable.
func (s *Service) observedAverage(ctx context.Context, doctorID uuid.UUID) int {
	samples, err := s.appointments.RecentConsultations(ctx, doctorID, ObservedSampleSize)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("consultation history unavailable")
		return s.avgMinutes
	}
	return ObservedServiceMinutes(samples, s.avgMinutes)
}

func (s *Service) dayOrToday(date *time.Time) time.Time {
	if date == nil || date.IsZero() {
		return s.today()
	}
	return CivilDate(*date, s.loc)
}

// GetDoctorQueue lists the doctor's active queue for date, today when nil.
func (s *Service) GetDoctorQueue(ctx context.Context, doctorID uuid.UUID, date *time.Time) ([]QueueEntry, error) {
	rows, err := s.trackers.ListActive(ctx, doctorID, s.dayOrToday(date))
	if err != nil {
		return nil, storageErr(err)
	}
	avg := s.observedAverage(ctx, doctorID)
	now := s.clock()
	out := make([]QueueEntry, 0, len(rows))
	for i, t := range rows {
		out = append(out, s.entry(ctx, t, i+1, avg, now))
	}
	return out, nil
}

// GetNextPatient returns the next waiting patient, or nil for an empty
// queue.
func (s *Service) GetNextPatient(ctx context.Context, doctorID uuid.UUID, date *time.Time) (*QueueEntry, error) {
	t, err := s.trackers.NextWaiting(ctx, doctorID, s.dayOrToday(date))
	if err != nil {
		return nil, storageErr(err)
	}
	if t == nil {
		return nil, nil
	}
	e := s.entry(ctx, t, 1, s.avgMinutes, s.clock())
	return &e, nil
}

func (s *Service) entry(ctx context.Context, t *Tracker, position, avg int, now time.Time) QueueEntry {
	e := QueueEntry{
		Position:          position,
		QueueNumber:       t.QueueNumber,
		AppointmentID:     t.AppointmentID,
		Status:            t.Status,
		TimeSlot:          t.TimeSlot,
		Priority:          t.Priority,
		EstimatedWaitTime: EstimateWait(position, avg),
		CurrentWaitTime:   CurrentWaitMinutes(t, now),
	}
	p, err := s.directory.Patient(ctx, t.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", t.PatientID.String()).Msg("patient lookup failed")
	} else if p != nil {
		e.Patient = &p.PatientSummary
	}
	return e
}

// CompactQueue closes the gap left by removedQueueNumber in the tracker
// numbering. Appointment queue numbers are not changed.
func (s *Service) CompactQueue(ctx context.Context, doctorID uuid.UUID, date *time.Time, removedQueueNumber int) (int64, error) {
	if removedQueueNumber < 1 {
		return 0, ErrInvalidQueueNumber
	}
	day := s.dayOrToday(date)
	n, err := s.trackers.ShiftQueueNumbers(ctx, doctorID, day, removedQueueNumber)
	if err != nil {
		return 0, storageErr(err)
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Str("date", day.Format(dateLayout)).
		Int("removed", removedQueueNumber).Int64("shifted", n).Msg("queue compacted")
	return n, nil
}

// GetDoctorStats aggregates appointments dated within [from, to].
func (s *Service) GetDoctorStats(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*DoctorStats, error) {
	from, to = CivilDate(from, s.loc), CivilDate(to, s.loc)
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}
	st, err := s.appointments.Stats(ctx, doctorID, from, to)
	if err != nil {
		return nil, storageErr(err)
	}
	avg, err := s.trackers.AverageWait(ctx, doctorID, from, to)
	if err != nil {
		return nil, storageErr(err)
	}
	st.AverageWaitMinutes = avg
	return st, nil
}

// SweepStaleTrackers deactivates tracker rows left open on earlier days.
func (s *Service) SweepStaleTrackers(ctx context.Context) (int64, error) {
	n, err := s.trackers.DeactivateBefore(ctx, s.today())
	if err != nil {
		return 0, storageErr(err)
	}
	if n > 0 {
		s.logger.Info().Int64("deactivated", n).Msg("stale trackers swept")
	}
	return n, nil
}
