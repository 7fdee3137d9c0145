package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// checkPatient resolves patientID and confirms it belongs to the actor's clinic.
func checkPatient(ctx context.Context, repo Repository, actor Actor, patientID uuid.UUID) (*Patient, error) {
	p, err := repo.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if p.ClinicID != actor.ClinicID {
		return nil, ErrPatientOutsideClinic
	}
	return p, nil
}

// checkDoctor resolves doctorID, confirms the clinic, then the doctor role.
func checkDoctor(ctx context.Context, repo Repository, actor Actor, doctorID uuid.UUID) (*User, error) {
	u, err := repo.GetUserByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !u.BelongsTo(actor.ClinicID) {
		return nil, ErrDoctorOutsideClinic
	}
	if u.Role != RoleDoctor {
		return nil, ErrNotADoctor
	}
	return u, nil
}

// ownPatientRecord finds the patient record of a PATIENT actor, matched by email
// inside the actor's clinic. Returns ErrPatientNotFound when there is none.
func ownPatientRecord(ctx context.Context, repo Repository, actor Actor) (*Patient, error) {
	email := strings.TrimSpace(actor.Email)
	if email == "" {
		return nil, ErrPatientNotFound
	}
	p, err := repo.FindPatientByEmail(ctx, actor.ClinicID, email)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load own patient record: %w", err)
	}
	return p, nil
}

// loadAppointment fetches id and hides appointments of other clinics behind Forbidden.
func loadAppointment(ctx context.Context, repo Repository, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.ClinicID != actor.ClinicID {
		return nil, ErrAppointmentOutsideClinic
	}
	return appt, nil
}
