package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const minDiagnosisLength = 3

// CreateConsultation records a doctor's consultation. When it references an
// appointment, the insert and the SCHEDULED to DONE move commit together.
func (s *Service) CreateConsultation(ctx context.Context, actor Actor, in CreateConsultationInput) (c *Consultation, err error) {
	ctx, done := s.observe(ctx, "create_consultation", actor)
	defer func() { done(err) }()

	if actor.Role != RoleDoctor {
		return nil, ErrRoleNotAllowed
	}
	if in.PatientID == uuid.Nil {
		return nil, ErrMissingPatient
	}
	diagnosis := strings.TrimSpace(in.Diagnosis)
	if utf8.RuneCountInString(diagnosis) < minDiagnosisLength {
		return nil, ErrDiagnosisTooShort
	}

	if _, err := checkPatient(ctx, s.store, actor, in.PatientID); err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx Repository) error {
		var linked *Appointment
		if in.AppointmentID != nil {
			appt, err := tx.GetAppointmentForUpdate(ctx, *in.AppointmentID)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return err
				}
				return fmt.Errorf("lock appointment: %w", err)
			}
			if err := checkLinkable(ctx, tx, actor, in.PatientID, appt); err != nil {
				return err
			}
			linked = appt
		}

		created, err := tx.CreateConsultation(ctx, NewConsultation{
			ClinicID:      actor.ClinicID,
			PatientID:     in.PatientID,
			DoctorID:      actor.UserID,
			AppointmentID: in.AppointmentID,
			Diagnosis:     diagnosis,
			Notes:         normalizeText(in.Notes),
		})
		if err != nil {
			if errors.Is(err, ErrConsultationExists) {
				return err
			}
			return fmt.Errorf("create consultation: %w", err)
		}
		c = created

		if linked != nil && linked.Status == StatusScheduled {
			if _, err := tx.UpdateAppointmentStatus(ctx, linked.ID, StatusScheduled, StatusDone); err != nil {
				return fmt.Errorf("complete appointment: %w", err)
			}
			err := s.recordEvent(ctx, tx, linked.ID, EventAppointmentCompleted, map[string]any{
				"actor_id":        actor.UserID.String(),
				"consultation_id": created.ID.String(),
			})
			if err != nil {
				return err
			}
		}

		if linked == nil {
			return nil
		}
		return s.recordEvent(ctx, tx, linked.ID, EventConsultationCreated, map[string]any{
			"consultation_id": created.ID.String(),
			"patient_id":      created.PatientID.String(),
			"doctor_id":       created.DoctorID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("consultation created",
		"consultation_id", c.ID,
		"appointment_id", c.AppointmentID,
		"doctor_id", c.DoctorID,
	)
	return c, nil
}

// checkLinkable runs the appointment checks in order: clinic, patient, doctor,
// existing consultation, then status.
func checkLinkable(ctx context.Context, repo Repository, actor Actor, patientID uuid.UUID, appt *Appointment) error {
	if appt.ClinicID != actor.ClinicID {
		return ErrAppointmentOutsideClinic
	}
	if appt.PatientID != patientID {
		return ErrAppointmentPatientMismatch
	}
	if appt.DoctorID != actor.UserID {
		return ErrNotAppointmentDoctor
	}

	_, err := repo.GetConsultationByAppointmentID(ctx, appt.ID)
	switch {
	case err == nil:
		return ErrConsultationExists
	case !errors.Is(err, ErrConsultationNotFound):
		return fmt.Errorf("load consultation for appointment: %w", err)
	}

	if appt.Status == StatusCancelled {
		return ErrInvalidStatusTransition
	}
	return nil
}

func (s *Service) GetConsultation(ctx context.Context, actor Actor, id uuid.UUID) (c *Consultation, err error) {
	ctx, done := s.observe(ctx, "get_consultation", actor)
	defer func() { done(err) }()

	c, err = s.store.GetConsultationByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load consultation: %w", err)
	}
	if c.ClinicID != actor.ClinicID {
		return nil, ErrConsultationOutsideClinic
	}
	if actor.Role == RolePatient {
		own, err := ownPatientRecord(ctx, s.store, actor)
		if err != nil && !errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		if own == nil || own.ID != c.PatientID {
			return nil, ErrNotOwnRecord
		}
	}
	return c, nil
}

// ListConsultations returns the clinic's consultations, newest first.
// PATIENT actors only ever see their own.
func (s *Service) ListConsultations(ctx context.Context, actor Actor, in ListConsultationsInput) (out []Consultation, err error) {
	ctx, done := s.observe(ctx, "list_consultations", actor)
	defer func() { done(err) }()

	f := ConsultationFilter{ClinicID: actor.ClinicID, PatientID: in.PatientID}
	if actor.Role == RolePatient {
		own, err := ownPatientRecord(ctx, s.store, actor)
		if err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return []Consultation{}, nil
			}
			return nil, err
		}
		f.PatientID = &own.ID
	}
	f.Limit, f.Offset = clampPage(in.Limit, in.Offset)

	out, err = s.store.ListConsultations(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	return out, nil
}

// ListDoctors returns the doctors of the actor's clinic ordered by name.
func (s *Service) ListDoctors(ctx context.Context, actor Actor) (out []User, err error) {
	ctx, done := s.observe(ctx, "list_doctors", actor)
	defer func() { done(err) }()

	out, err = s.store.ListDoctors(ctx, actor.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return out, nil
}
