package identity

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	// Create returns ErrPhoneTaken when the phone is already registered.
	Create(ctx context.Context, p *Patient) error
	// GetByID and GetByPhone return ErrPatientNotFound for unknown rows.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPhone(ctx context.Context, phone string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
}

type OTPRepository interface {
	// Upsert replaces any pending code for the phone.
	Upsert(ctx context.Context, o *OTP) error
	// GetByPhone returns ErrOTPNotFound when no code was issued.
	GetByPhone(ctx context.Context, phone string) (*OTP, error)
	Update(ctx context.Context, o *OTP) error
}

type DoctorFilter struct {
	ActiveOnly     bool
	Specialization string
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	// GetByID returns ErrDoctorNotFound for unknown rows.
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error)
}
