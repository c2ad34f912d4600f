package main

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Nishal77/QueueManagement-sub000/internal/domain/identity"
	"github.com/Nishal77/QueueManagement-sub000/internal/domain/scheduling"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/websocket"
)

// EventAppointmentStatus is the websocket event type for status changes.
const EventAppointmentStatus = "appointment.status"

// identityLookup is the part of identity.Service the directory needs.
type identityLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
}

// DirectoryAdapter adapts the identity service to scheduling.Directory,
// keeping the scheduling domain free of identity imports.
type DirectoryAdapter struct {
	identity identityLookup
}

func NewDirectoryAdapter(svc identityLookup) *DirectoryAdapter {
	return &DirectoryAdapter{identity: svc}
}

// Patient implements scheduling.Directory.
func (a *DirectoryAdapter) Patient(ctx context.Context, id uuid.UUID) (*scheduling.PatientInfo, error) {
	p, err := a.identity.GetPatient(ctx, id)
	if errors.Is(err, identity.ErrPatientNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scheduling.PatientInfo{
		PatientSummary: scheduling.PatientSummary{ID: p.ID, Name: p.DisplayName(), Phone: p.Phone},
		IsVerified:     p.IsVerified,
	}, nil
}

// Doctor implements scheduling.Directory.
func (a *DirectoryAdapter) Doctor(ctx context.Context, id uuid.UUID) (*scheduling.DoctorInfo, error) {
	d, err := a.identity.GetDoctor(ctx, id)
	if errors.Is(err, identity.ErrDoctorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scheduling.DoctorInfo{
		DoctorSummary: scheduling.DoctorSummary{ID: d.ID, Name: d.Name, Specialization: d.Specialization},
		IsActive:      d.IsActive,
		WorkStart:     d.WorkStart,
		WorkEnd:       d.WorkEnd,
	}, nil
}

// notifier is satisfied by notification.Dispatcher.
type notifier interface {
	Notify(ctx context.Context, eventType string, payload interface{}, topics ...string) error
}

// StatusPublisher implements scheduling.Publisher by fanning each event out
// to the doctor's and the patient's topics.
type StatusPublisher struct {
	n notifier
}

func NewStatusPublisher(n notifier) *StatusPublisher {
	return &StatusPublisher{n: n}
}

func (p *StatusPublisher) PublishStatus(ctx context.Context, ev scheduling.StatusEvent) error {
	return p.n.Notify(ctx, EventAppointmentStatus, ev,
		websocket.DoctorTopic(ev.DoctorID.String()),
		websocket.PatientTopic(ev.PatientID.String()))
}
