package appointment

import (
	"errors"
)

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrRoleMismatch = errors.New("role mismatch")
)

// Error is a business rule failure with enough structure to point at the offending field.
type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

var (
	ErrMissingPatient             = newError(ErrValidation, "patient_id", "patient_id is required")
	ErrMissingDoctor              = newError(ErrValidation, "doctor_id", "doctor_id is required")
	ErrMissingTimes               = newError(ErrValidation, "start_time", "start_time and end_time are required")
	ErrInvalidTimeRange           = newError(ErrValidation, "end_time", "end_time must be after start_time")
	ErrEmptyUpdate                = newError(ErrValidation, "", "no fields to update")
	ErrUnknownStatus              = newError(ErrValidation, "status", "status must be one of SCHEDULED, DONE, CANCELLED")
	ErrUnknownPeriod              = newError(ErrValidation, "period", "period must be one of day, week, month")
	ErrDiagnosisTooShort          = newError(ErrValidation, "diagnosis", "diagnosis must contain at least 3 characters")
	ErrAppointmentPatientMismatch = newError(ErrValidation, "appointment_id", "appointment does not belong to this patient")

	ErrPatientNotFound      = newError(ErrNotFound, "patient_id", "patient not found")
	ErrUserNotFound         = newError(ErrNotFound, "", "user not found")
	ErrDoctorNotFound       = newError(ErrNotFound, "doctor_id", "doctor not found")
	ErrAppointmentNotFound  = newError(ErrNotFound, "appointment_id", "appointment not found")
	ErrConsultationNotFound = newError(ErrNotFound, "consultation_id", "consultation not found")

	ErrPatientOutsideClinic      = newError(ErrForbidden, "patient_id", "patient belongs to another clinic")
	ErrDoctorOutsideClinic       = newError(ErrForbidden, "doctor_id", "doctor belongs to another clinic")
	ErrAppointmentOutsideClinic  = newError(ErrForbidden, "", "appointment belongs to another clinic")
	ErrConsultationOutsideClinic = newError(ErrForbidden, "", "consultation belongs to another clinic")
	ErrNotAppointmentDoctor      = newError(ErrForbidden, "appointment_id", "appointment is assigned to another doctor")
	ErrRoleNotAllowed            = newError(ErrForbidden, "", "your role is not allowed to perform this operation")
	ErrNotOwnRecord              = newError(ErrForbidden, "patient_id", "record belongs to another patient")

	ErrNotADoctor = newError(ErrRoleMismatch, "doctor_id", "selected user is not a doctor")

	ErrSlotTaken               = newError(ErrConflict, "start_time", "doctor already has an appointment in this time range")
	ErrDoctorBusy              = newError(ErrConflict, "doctor_id", "doctor schedule is being modified, please retry")
	ErrConsultationExists      = newError(ErrConflict, "appointment_id", "a consultation already exists for this appointment")
	ErrInvalidStatusTransition = newError(ErrConflict, "status", "invalid status transition")
)

// Outcome classifies err for metrics and logs: ok, an error kind, or internal.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRoleMismatch):
		return "role_mismatch"
	default:
		return "internal"
	}
}
