package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	err      error
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, o := range m.patients {
		if o.Phone == p.Phone {
			return ErrPhoneTaken
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByPhone(_ context.Context, phone string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.patients {
		if p.Phone == phone {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return ErrPatientNotFound
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

type mockOTPRepo struct {
	mu   sync.Mutex
	otps map[string]*OTP
}

func newMockOTPRepo() *mockOTPRepo {
	return &mockOTPRepo{otps: make(map[string]*OTP)}
}

func (m *mockOTPRepo) Upsert(_ context.Context, o *OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.otps[o.Phone]; ok {
		o.ID = prev.ID
	} else {
		o.ID = uuid.New()
	}
	cp := *o
	m.otps[o.Phone] = &cp
	return nil
}

func (m *mockOTPRepo) GetByPhone(_ context.Context, phone string) (*OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otps[phone]
	if !ok {
		return nil, ErrOTPNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOTPRepo) Update(_ context.Context, o *OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.otps[o.Phone]; !ok {
		return ErrOTPNotFound
	}
	cp := *o
	m.otps[o.Phone] = &cp
	return nil
}

type mockDoctorRepo struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*Doctor
	listErr error
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[d.ID]; !ok {
		return ErrDoctorNotFound
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) List(_ context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var all []*Doctor
	for _, d := range m.doctors {
		if f.ActiveOnly && !d.IsActive {
			continue
		}
		if f.Specialization != "" && !strings.EqualFold(f.Specialization, d.Specialization) {
			continue
		}
		cp := *d
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// -- Collaborators --

type sentSMS struct{ to, body string }

type recordingSMS struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

func (r *recordingSMS) SendSMS(_ context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentSMS{to, body})
	return nil
}

type stubIssuer struct {
	subject string
	roles   []string
}

func (s *stubIssuer) Issue(subject string, roles ...string) (string, time.Time, error) {
	s.subject, s.roles = subject, roles
	return "token-" + subject, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), nil
}

var errStorage = errors.New("connection refused")

// -- Fixture --

const testCode = "123456"
const testPhone = "+919876543210"

type fixture struct {
	svc      *Service
	patients *mockPatientRepo
	otps     *mockOTPRepo
	doctors  *mockDoctorRepo
	sms      *recordingSMS
	tokens   *stubIssuer
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		patients: newMockPatientRepo(),
		otps:     newMockOTPRepo(),
		doctors:  newMockDoctorRepo(),
		sms:      &recordingSMS{},
		tokens:   &stubIssuer{},
		now:      time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.patients, f.otps, f.doctors, f.sms, f.tokens, zerolog.Nop(), Options{
		ResendInterval: -1,
		HashCost:       bcrypt.MinCost,
		Now:            func() time.Time { return f.now },
		GenerateCode:   func() (string, error) { return testCode, nil },
	})
	return f
}

// verifiedPatient registers phone through the OTP flow.
func (f *fixture) verifiedPatient(phone string) *Patient {
	ctx := context.Background()
	if _, err := f.svc.RequestOTP(ctx, phone); err != nil {
		panic(err)
	}
	sess, err := f.svc.VerifyOTP(ctx, phone, testCode)
	if err != nil {
		panic(err)
	}
	return sess.Patient
}
