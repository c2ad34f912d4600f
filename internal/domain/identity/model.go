package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Genders accepted on a patient profile.
var Genders = []string{"male", "female", "other"}

// Patient maps to the patient table. Name, age and gender stay empty until
// the verified patient completes their profile.
type Patient struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Phone      string    `db:"phone" json:"phone"`
	Name       *string   `db:"name" json:"name,omitempty"`
	Age        *int      `db:"age" json:"age,omitempty"`
	Gender     *string   `db:"gender" json:"gender,omitempty"`
	IsVerified bool      `db:"is_verified" json:"is_verified"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName falls back to the phone number for patients without a name.
func (p *Patient) DisplayName() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	return p.Phone
}

// ProfileComplete reports whether the demographic fields are filled in.
func (p *Patient) ProfileComplete() bool {
	return p.Age != nil && p.Gender != nil
}

// ValidateVerifiedProfile checks the fields a verified patient must carry.
// It is called when a profile is completed, not on every save.
func ValidateVerifiedProfile(p *Patient) error {
	if !p.IsVerified {
		return ErrNotVerified
	}
	if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
		return ErrNameRequired
	}
	if p.Age == nil || *p.Age < 0 || *p.Age > 150 {
		return ErrInvalidAge
	}
	if p.Gender == nil || !validGender(*p.Gender) {
		return ErrInvalidGender
	}
	return nil
}

func validGender(g string) bool {
	for _, v := range Genders {
		if v == g {
			return true
		}
	}
	return false
}

// Doctor maps to the doctor table. WorkStart and WorkEnd are "HH:mm" and
// are either both set or both empty.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Specialization string    `db:"specialization" json:"specialization"`
	WorkStart      string    `db:"work_start" json:"work_start,omitempty"`
	WorkEnd        string    `db:"work_end" json:"work_end,omitempty"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ValidateDoctor checks the required fields and the working-hours pair.
func ValidateDoctor(d *Doctor) error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrDoctorNameRequired
	}
	if (d.WorkStart == "") != (d.WorkEnd == "") {
		return ErrInvalidHours
	}
	if d.WorkStart == "" {
		return nil
	}
	start, ok := parseHours(d.WorkStart)
	if !ok {
		return ErrInvalidHours
	}
	end, ok := parseHours(d.WorkEnd)
	if !ok || !end.After(start) {
		return ErrInvalidHours
	}
	return nil
}

func parseHours(v string) (time.Time, bool) {
	t, err := time.Parse("15:04", v)
	return t, err == nil && t.Format("15:04") == v
}

// OTP is the pending verification code for a phone number. Only the bcrypt
// hash of the code is stored.
type OTP struct {
	ID         uuid.UUID  `db:"id"`
	PatientID  uuid.UUID  `db:"patient_id"`
	Phone      string     `db:"phone"`
	CodeHash   string     `db:"code_hash"`
	Attempts   int        `db:"attempts"`
	ExpiresAt  time.Time  `db:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

func (o *OTP) Expired(now time.Time) bool { return !now.Before(o.ExpiresAt) }
