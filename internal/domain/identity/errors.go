package identity

import "github.com/Nishal77/QueueManagement-sub000/internal/platform/apperr"

var (
	ErrPatientNotFound = apperr.NotFound("patient not found")
	ErrDoctorNotFound  = apperr.NotFound("doctor not found")
	ErrOTPNotFound     = apperr.NotFound("no pending verification code")

	ErrInvalidPhone       = apperr.Validation("invalid phone number")
	ErrNotVerified        = apperr.Validation("patient not verified")
	ErrNameRequired       = apperr.Validation("name is required")
	ErrInvalidAge         = apperr.Validation("age must be between 0 and 150")
	ErrInvalidGender      = apperr.Validation("gender must be one of male, female, other")
	ErrDoctorNameRequired = apperr.Validation("doctor name is required")
	ErrInvalidHours       = apperr.Validation("invalid working hours")
	ErrOTPInvalid         = apperr.Validation("invalid verification code")
	ErrOTPExpired         = apperr.Validation("verification code expired")
	ErrOTPAttempts        = apperr.Validation("too many attempts, request a new code")

	ErrPhoneTaken = apperr.Conflict("phone number already registered")
	ErrOTPTooSoon = apperr.Conflict("verification code recently sent, try again shortly")
)

func storageErr(err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Infrastructure(err)
}
