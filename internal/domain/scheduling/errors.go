package scheduling

import (
	"errors"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/apperr"
)

var (
	ErrInvalidDate        = apperr.Validation("invalid booking date")
	ErrInvalidDateRange   = apperr.Validation("invalid date range")
	ErrPatientNotFound    = apperr.NotFound("patient not found")
	ErrPatientNotVerified = apperr.Validation("patient not verified")
	ErrDoctorNotFound     = apperr.NotFound("doctor not found")
	ErrDoctorInactive     = apperr.Validation("doctor is not accepting appointments")
	ErrInvalidTimeSlot    = apperr.Validation("invalid time slot")
	ErrInvalidWindow      = apperr.Validation("invalid clinic window")
	ErrInvalidStatus      = apperr.Validation("invalid status")
	ErrInvalidQueueNumber = apperr.Validation("invalid queue number")
	ErrNotesTooLong       = apperr.Validation("notes must be at most 500 characters")

	ErrAppointmentNotFound = apperr.NotFound("appointment not found")

	ErrSlotUnavailable = apperr.Conflict("time slot is not available")
	ErrAlreadyBooked   = apperr.Conflict("already have an appointment on this date")
	ErrQueueCollision  = apperr.Conflict("queue number collision, please retry")

	ErrAlreadyCompleted = apperr.State("appointment already completed")
	ErrAlreadyCancelled = apperr.State("appointment already cancelled")
)

// errQueueTaken is returned by repositories when another booking claimed
// the same queue number first. The service retries on it.
var errQueueTaken = errors.New("queue number already taken")

// MaxNotesLength bounds the free-text notes on an appointment.
const MaxNotesLength = 500

// storageErr classifies an unexpected repository error as infrastructure,
// leaving already classified errors untouched.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Infrastructure(err)
}
