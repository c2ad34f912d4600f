package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/auth"
)

const (
	DefaultOTPTTL         = 5 * time.Minute
	DefaultMaxAttempts    = 5
	DefaultResendInterval = 30 * time.Second
	otpDigits             = 6
)

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TokenIssuer signs access tokens for verified patients.
type TokenIssuer interface {
	Issue(subject string, roles ...string) (string, time.Time, error)
}

type Options struct {
	OTPTTL         time.Duration
	MaxAttempts    int
	// ResendInterval throttles repeat requests; negative disables it.
	ResendInterval time.Duration
	Now            func() time.Time
	// HashCost is the bcrypt cost for stored codes.
	HashCost int
	// GenerateCode overrides the random code source in tests.
	GenerateCode func() (string, error)
}

type Service struct {
	patients PatientRepository
	otps     OTPRepository
	doctors  DoctorRepository
	sms      SMSSender
	tokens   TokenIssuer
	logger   zerolog.Logger

	ttl         time.Duration
	maxAttempts int
	resend      time.Duration
	now         func() time.Time
	hashCost    int
	genCode     func() (string, error)
}

func NewService(patients PatientRepository, otps OTPRepository, doctors DoctorRepository,
	sms SMSSender, tokens TokenIssuer, logger zerolog.Logger, opts Options) *Service {
	s := &Service{
		patients:    patients,
		otps:        otps,
		doctors:     doctors,
		sms:         sms,
		tokens:      tokens,
		logger:      logger.With().Str("component", "identity").Logger(),
		ttl:         opts.OTPTTL,
		maxAttempts: opts.MaxAttempts,
		resend:      opts.ResendInterval,
		now:         opts.Now,
		hashCost:    opts.HashCost,
		genCode:     opts.GenerateCode,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultOTPTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.resend < 0 {
		s.resend = 0
	} else if s.resend == 0 {
		s.resend = DefaultResendInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.hashCost < bcrypt.MinCost || s.hashCost > bcrypt.MaxCost {
		s.hashCost = bcrypt.DefaultCost
	}
	if s.genCode == nil {
		s.genCode = randomCode
	}
	return s
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// NormalizePhone strips spaces, dashes and parentheses and requires a
// leading "+" followed by 8 to 15 digits.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	phone := b.String()
	if !strings.HasPrefix(phone, "+") || len(phone) < 9 || len(phone) > 16 {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// =========== Patient Registration ===========

// OTPRequest is returned after a code has been sent.
type OTPRequest struct {
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
	NewUser   bool      `json:"new_user"`
}

// RequestOTP sends a fresh verification code to phone, registering an
// unverified patient on first contact.
func (s *Service) RequestOTP(ctx context.Context, rawPhone string) (*OTPRequest, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	now := s.now()

	patient, err := s.patients.GetByPhone(ctx, phone)
	newUser := false
	switch {
	case errors.Is(err, ErrPatientNotFound):
		patient = &Patient{Phone: phone}
		if err := s.patients.Create(ctx, patient); err != nil {
			if !errors.Is(err, ErrPhoneTaken) {
				return nil, storageErr(err)
			}
			// Lost a race with a concurrent first request.
			if patient, err = s.patients.GetByPhone(ctx, phone); err != nil {
				return nil, storageErr(err)
			}
		} else {
			newUser = true
		}
	case err != nil:
		return nil, storageErr(err)
	}

	prev, err := s.otps.GetByPhone(ctx, phone)
	if err != nil && !errors.Is(err, ErrOTPNotFound) {
		return nil, storageErr(err)
	}
	if prev != nil && prev.ConsumedAt == nil && now.Sub(prev.CreatedAt) < s.resend {
		return nil, ErrOTPTooSoon
	}

	code, err := s.genCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}
	otp := &OTP{
		PatientID: patient.ID,
		Phone:     phone,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.otps.Upsert(ctx, otp); err != nil {
		return nil, storageErr(err)
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.sms.SendSMS(ctx, phone, body); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patient.ID.String()).Msg("failed to send verification code")
		return nil, storageErr(err)
	}
	return &OTPRequest{Phone: phone, ExpiresAt: otp.ExpiresAt, NewUser: newUser}, nil
}

// Session is the result of a successful verification.
type Session struct {
	Token           string    `json:"token"`
	ExpiresAt       time.Time `json:"expires_at"`
	Patient         *Patient  `json:"patient"`
	ProfileComplete bool      `json:"profile_complete"`
}

// VerifyOTP checks code against the pending code for phone, marks the
// patient verified and issues a patient token.
func (s *Service) VerifyOTP(ctx context.Context, rawPhone, code string) (*Session, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	now := s.now()

	otp, err := s.otps.GetByPhone(ctx, phone)
	if err != nil {
		return nil, storageErr(err)
	}
	if otp.ConsumedAt != nil {
		return nil, ErrOTPNotFound
	}
	if otp.Expired(now) {
		return nil, ErrOTPExpired
	}
	if otp.Attempts >= s.maxAttempts {
		return nil, ErrOTPAttempts
	}
	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		otp.Attempts++
		if err := s.otps.Update(ctx, otp); err != nil {
			return nil, storageErr(err)
		}
		if otp.Attempts >= s.maxAttempts {
			return nil, ErrOTPAttempts
		}
		return nil, ErrOTPInvalid
	}

	otp.ConsumedAt = &now
	if err := s.otps.Update(ctx, otp); err != nil {
		return nil, storageErr(err)
	}

	patient, err := s.patients.GetByID(ctx, otp.PatientID)
	if err != nil {
		return nil, storageErr(err)
	}
	if !patient.IsVerified {
		patient.IsVerified = true
		if err := s.patients.Update(ctx, patient); err != nil {
			return nil, storageErr(err)
		}
		s.logger.Info().Str("patient_id", patient.ID.String()).Msg("patient verified")
	}

	token, exp, err := s.tokens.Issue(patient.ID.String(), auth.RolePatient)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, Patient: patient, ProfileComplete: patient.ProfileComplete()}, nil
}

// ProfileUpdate carries the demographic fields a patient fills in after
// verification.
type ProfileUpdate struct {
	Name   string
	Age    int
	Gender string
}

func (s *Service) CompleteProfile(ctx context.Context, patientID uuid.UUID, in ProfileUpdate) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, storageErr(err)
	}
	name := strings.TrimSpace(in.Name)
	gender := strings.ToLower(strings.TrimSpace(in.Gender))
	age := in.Age

	candidate := *p
	candidate.Name, candidate.Age, candidate.Gender = &name, &age, &gender
	if err := ValidateVerifiedProfile(&candidate); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, &candidate); err != nil {
		return nil, storageErr(err)
	}
	return &candidate, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return p, nil
}

// =========== Doctors ===========

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Specialization = strings.TrimSpace(d.Specialization)
	if err := ValidateDoctor(d); err != nil {
		return err
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return storageErr(err)
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor created")
	return nil
}

// DoctorUpdate holds optional changes; nil fields are left as they are.
type DoctorUpdate struct {
	Name           *string
	Specialization *string
	WorkStart      *string
	WorkEnd        *string
	IsActive       *bool
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in DoctorUpdate) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if in.Name != nil {
		d.Name = strings.TrimSpace(*in.Name)
	}
	if in.Specialization != nil {
		d.Specialization = strings.TrimSpace(*in.Specialization)
	}
	if in.WorkStart != nil {
		d.WorkStart = *in.WorkStart
	}
	if in.WorkEnd != nil {
		d.WorkEnd = *in.WorkEnd
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if err := ValidateDoctor(d); err != nil {
		return nil, err
	}
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, storageErr(err)
	}
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	items, total, err := s.doctors.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, storageErr(err)
	}
	return items, total, nil
}
