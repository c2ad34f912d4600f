package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/db"
)

// Unique indexes on the appointment table; see migrations/001_init.sql.
const (
	constraintSlotActive = "appointment_slot_active_uq"
	constraintPatientDay = "appointment_patient_day_uq"
	constraintQueue      = "appointment_queue_uq"
)

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, patient_id, doctor_id, appointment_date, time_slot, status,
	queue_number, estimated_wait_time, actual_start_time, actual_end_time, notes,
	created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.TimeSlot, &a.Status,
		&a.QueueNumber, &a.EstimatedWaitTime, &a.ActualStartTime, &a.ActualEndTime, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, appointment_date, time_slot, status,
			queue_number, estimated_wait_time, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentDate, a.TimeSlot, a.Status,
		a.QueueNumber, a.EstimatedWaitTime, a.Notes).Scan(&a.CreatedAt, &a.UpdatedAt)
	if name, ok := db.UniqueViolation(err); ok {
		switch name {
		case constraintSlotActive:
			return ErrSlotUnavailable
		case constraintPatientDay:
			return ErrAlreadyBooked
		case constraintQueue:
			return errQueueTaken
		}
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET status=$2, actual_start_time=$3, actual_end_time=$4, notes=$5,
			updated_at=NOW()
		WHERE id = $1 AND status IN ('waiting', 'in-progress')
		RETURNING updated_at`,
		a.ID, a.Status, a.ActualStartTime, a.ActualEndTime, a.Notes).Scan(&a.UpdatedAt)
	if !db.IsNoRows(err) {
		return err
	}
	// Either the row is gone or a concurrent update closed it first.
	var stored Status
	err = r.conn(ctx).QueryRow(ctx, `SELECT status FROM appointment WHERE id = $1`, a.ID).Scan(&stored)
	if db.IsNoRows(err) {
		return ErrAppointmentNotFound
	}
	if err != nil {
		return err
	}
	return CheckTransition(stored, a.Status)
}

func (r *appointmentRepoPG) MaxQueueNumber(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_number), 0) FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2`, doctorID, date).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) BookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT time_slot FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2 AND status <> 'cancelled'`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *appointmentRepoPG) ActiveForPatientOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE patient_id = $1 AND appointment_date = $2 AND status <> 'cancelled'
		ORDER BY created_at DESC LIMIT 1`, patientID, date))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return a, err
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, status *Status, limit, offset int) ([]*Appointment, int, error) {
	where := `patient_id = $1`
	args := []interface{}{patientID}
	if status != nil {
		where += ` AND status = $2`
		args = append(args, *status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM appointment WHERE %s
		ORDER BY appointment_date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		apptCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) CountAhead(ctx context.Context, doctorID uuid.UUID, date time.Time, queueNumber int) (int, int, error) {
	var ahead, inQueue int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('waiting', 'in-progress'))
		FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2 AND status <> 'cancelled'
			AND queue_number < $3`, doctorID, date, queueNumber).Scan(&ahead, &inQueue)
	return ahead, inQueue, err
}

func (r *appointmentRepoPG) RecentConsultations(ctx context.Context, doctorID uuid.UUID, limit int) ([]time.Duration, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT EXTRACT(EPOCH FROM (actual_end_time - actual_start_time))::float8
		FROM appointment
		WHERE doctor_id = $1 AND status = 'completed'
			AND actual_start_time IS NOT NULL AND actual_end_time IS NOT NULL
		ORDER BY actual_end_time DESC
		LIMIT $2`, doctorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Duration
	for rows.Next() {
		var secs float64
		if err := rows.Scan(&secs); err != nil {
			return nil, err
		}
		out = append(out, time.Duration(secs*float64(time.Second)))
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) Stats(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*DoctorStats, error) {
	st := &DoctorStats{DoctorID: doctorID, From: from, To: to, ByStatus: make(map[Status]int, len(Statuses))}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM appointment
		WHERE doctor_id = $1 AND appointment_date BETWEEN $2 AND $3
		GROUP BY status`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		st.ByStatus[s] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (actual_end_time - actual_start_time)) / 60), 0)::float8
		FROM appointment
		WHERE doctor_id = $1 AND appointment_date BETWEEN $2 AND $3 AND status = 'completed'
			AND actual_start_time IS NOT NULL AND actual_end_time IS NOT NULL`,
		doctorID, from, to).Scan(&st.AverageConsultationMinutes)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// =========== Tracker Repository ===========

type trackerRepoPG struct{ pool *pgxpool.Pool }

func NewTrackerRepoPG(pool *pgxpool.Pool) TrackerRepository {
	return &trackerRepoPG{pool: pool}
}

func (r *trackerRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const trackerCols = `id, appointment_id, doctor_id, patient_id, appointment_date, time_slot,
	queue_number, status, start_time, end_time, actual_wait_time, priority, is_active,
	created_at, updated_at`

func (r *trackerRepoPG) scanTracker(row pgx.Row) (*Tracker, error) {
	var t Tracker
	err := row.Scan(&t.ID, &t.AppointmentID, &t.DoctorID, &t.PatientID, &t.AppointmentDate, &t.TimeSlot,
		&t.QueueNumber, &t.Status, &t.StartTime, &t.EndTime, &t.ActualWaitTime, &t.Priority, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *trackerRepoPG) scanList(rows pgx.Rows) ([]*Tracker, error) {
	defer rows.Close()
	var out []*Tracker
	for rows.Next() {
		t, err := r.scanTracker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *trackerRepoPG) Create(ctx context.Context, t *Tracker) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO live_tracker (id, appointment_id, doctor_id, patient_id, appointment_date,
			time_slot, queue_number, status, start_time, priority, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		t.ID, t.AppointmentID, t.DoctorID, t.PatientID, t.AppointmentDate,
		t.TimeSlot, t.QueueNumber, t.Status, t.StartTime, t.Priority, t.IsActive).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *trackerRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Tracker, error) {
	t, err := r.scanTracker(r.conn(ctx).QueryRow(ctx,
		`SELECT `+trackerCols+` FROM live_tracker WHERE appointment_id = $1`, appointmentID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return t, err
}

func (r *trackerRepoPG) Update(ctx context.Context, t *Tracker) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE live_tracker SET status=$2, queue_number=$3, end_time=$4, actual_wait_time=$5,
			priority=$6, is_active=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Status, t.QueueNumber, t.EndTime, t.ActualWaitTime, t.Priority, t.IsActive).Scan(&t.UpdatedAt)
}

func (r *trackerRepoPG) ListActive(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Tracker, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+trackerCols+` FROM live_tracker
		WHERE doctor_id = $1 AND appointment_date = $2 AND is_active
			AND status IN ('waiting', 'in-progress')
		ORDER BY queue_number ASC`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return r.scanList(rows)
}

func (r *trackerRepoPG) NextWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Tracker, error) {
	t, err := r.scanTracker(r.conn(ctx).QueryRow(ctx, `
		SELECT `+trackerCols+` FROM live_tracker
		WHERE doctor_id = $1 AND appointment_date = $2 AND is_active AND status = 'waiting'
		ORDER BY queue_number ASC LIMIT 1`, doctorID, date))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return t, err
}

func (r *trackerRepoPG) ShiftQueueNumbers(ctx context.Context, doctorID uuid.UUID, date time.Time, removed int) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE live_tracker SET queue_number = queue_number - 1, updated_at = NOW()
		WHERE doctor_id = $1 AND appointment_date = $2 AND is_active AND status = 'waiting'
			AND queue_number > $3`, doctorID, date, removed)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *trackerRepoPG) AverageWait(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (float64, error) {
	var avg float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(AVG(actual_wait_time), 0)::float8 FROM live_tracker
		WHERE doctor_id = $1 AND appointment_date BETWEEN $2 AND $3
			AND status = 'completed' AND actual_wait_time IS NOT NULL`, doctorID, from, to).Scan(&avg)
	return avg, err
}

func (r *trackerRepoPG) DeactivateBefore(ctx context.Context, date time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE live_tracker SET is_active = FALSE, end_time = COALESCE(end_time, NOW()), updated_at = NOW()
		WHERE is_active AND appointment_date < $1`, date)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
