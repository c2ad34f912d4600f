package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/db"
)

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, phone, name, age, gender, is_verified, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Phone, &p.Name, &p.Age, &p.Gender, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, phone, name, age, gender, is_verified)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		p.ID, p.Phone, p.Name, p.Age, p.Gender, p.IsVerified).Scan(&p.CreatedAt, &p.UpdatedAt)
	if _, ok := db.UniqueViolation(err); ok {
		return ErrPhoneTaken
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

func (r *patientRepoPG) GetByPhone(ctx context.Context, phone string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE phone = $1`, phone))
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET name=$2, age=$3, gender=$4, is_verified=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Age, p.Gender, p.IsVerified).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrPatientNotFound
	}
	return err
}

// =========== OTP Repository ===========

type otpRepoPG struct{ pool *pgxpool.Pool }

func NewOTPRepoPG(pool *pgxpool.Pool) OTPRepository {
	return &otpRepoPG{pool: pool}
}

func (r *otpRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *otpRepoPG) Upsert(ctx context.Context, o *OTP) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_otp (id, patient_id, phone, code_hash, attempts, expires_at, consumed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (phone) DO UPDATE SET
			patient_id = EXCLUDED.patient_id, code_hash = EXCLUDED.code_hash,
			attempts = EXCLUDED.attempts, expires_at = EXCLUDED.expires_at,
			consumed_at = EXCLUDED.consumed_at, created_at = EXCLUDED.created_at
		RETURNING id`,
		o.ID, o.PatientID, o.Phone, o.CodeHash, o.Attempts, o.ExpiresAt, o.ConsumedAt, o.CreatedAt).Scan(&o.ID)
}

func (r *otpRepoPG) GetByPhone(ctx context.Context, phone string) (*OTP, error) {
	var o OTP
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, phone, code_hash, attempts, expires_at, consumed_at, created_at
		FROM patient_otp WHERE phone = $1`, phone).
		Scan(&o.ID, &o.PatientID, &o.Phone, &o.CodeHash, &o.Attempts, &o.ExpiresAt, &o.ConsumedAt, &o.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *otpRepoPG) Update(ctx context.Context, o *OTP) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_otp SET attempts=$2, consumed_at=$3 WHERE id = $1`,
		o.ID, o.Attempts, o.ConsumedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOTPNotFound
	}
	return nil
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `id, name, specialization, COALESCE(work_start, ''), COALESCE(work_end, ''),
	is_active, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.Specialization, &d.WorkStart, &d.WorkEnd,
		&d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, name, specialization, work_start, work_end, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Specialization, nullable(d.WorkStart), nullable(d.WorkEnd), d.IsActive).
		Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrDoctorNotFound
	}
	return d, err
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET name=$2, specialization=$3, work_start=$4, work_end=$5, is_active=$6,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Name, d.Specialization, nullable(d.WorkStart), nullable(d.WorkEnd), d.IsActive).
		Scan(&d.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrDoctorNotFound
	}
	return err
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.ActiveOnly {
		where += ` AND is_active`
	}
	if f.Specialization != "" {
		where += fmt.Sprintf(` AND specialization ILIKE $%d`, idx)
		args = append(args, f.Specialization)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + doctorCols + ` FROM doctor` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
