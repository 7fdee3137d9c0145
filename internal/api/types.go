package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID string    `json:"patient_id" validate:"required,uuid"`
	DoctorID  string    `json:"doctor_id" validate:"required,uuid"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	Reason    *string   `json:"reason" validate:"omitempty,max=500"`
}

// UpdateAppointmentRequest is a partial update; omitted fields are left unchanged.
type UpdateAppointmentRequest struct {
	PatientID *string    `json:"patient_id" validate:"omitempty,uuid"`
	DoctorID  *string    `json:"doctor_id" validate:"omitempty,uuid"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Status    *string    `json:"status"`
	Reason    *string    `json:"reason" validate:"omitempty,max=500"`
}

type CreateConsultationRequest struct {
	PatientID     string  `json:"patient_id" validate:"required,uuid"`
	AppointmentID *string `json:"appointment_id" validate:"omitempty,uuid"`
	Diagnosis     string  `json:"diagnosis" validate:"max=2000"`
	Notes         *string `json:"notes" validate:"omitempty,max=5000"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	ClinicID    uuid.UUID `json:"clinic_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"`
	Reason      *string   `json:"reason,omitempty"`
	PatientName string    `json:"patient_name,omitempty"`
	DoctorName  string    `json:"doctor_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type ConsultationResponse struct {
	ID            uuid.UUID  `json:"id"`
	ClinicID      uuid.UUID  `json:"clinic_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Diagnosis     string     `json:"diagnosis"`
	Notes         *string    `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ConsultationListResponse struct {
	Consultations []ConsultationResponse `json:"consultations"`
}

type DoctorResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

type DoctorListResponse struct {
	Doctors []DoctorResponse `json:"doctors"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		ClinicID:  a.ClinicID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAppointmentList(list []appointment.AppointmentDetail) AppointmentListResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		resp := toAppointmentResponse(&list[i].Appointment)
		resp.PatientName = list[i].PatientName
		resp.DoctorName = list[i].DoctorName
		out = append(out, resp)
	}
	return AppointmentListResponse{Appointments: out}
}

func toConsultationResponse(c *appointment.Consultation) ConsultationResponse {
	return ConsultationResponse{
		ID:            c.ID,
		ClinicID:      c.ClinicID,
		PatientID:     c.PatientID,
		DoctorID:      c.DoctorID,
		AppointmentID: c.AppointmentID,
		Diagnosis:     c.Diagnosis,
		Notes:         c.Notes,
		CreatedAt:     c.CreatedAt,
	}
}
