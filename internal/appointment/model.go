package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleReceptionist Role = "RECEPTIONIST"
	RoleDoctor       Role = "DOCTOR"
	RolePatient      Role = "PATIENT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReceptionist, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// IsStaff reports whether the role works for the clinic rather than being a patient.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleReceptionist || r == RoleDoctor
}

// Actor is the authenticated caller. Every operation receives it explicitly.
type Actor struct {
	UserID   uuid.UUID
	Role     Role
	ClinicID uuid.UUID
	Email    string
}

type Patient struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Name      string
	Email     *string
	Age       *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is a clinic account. Doctors are users with RoleDoctor.
type User struct {
	ID        uuid.UUID
	ClinicID  *uuid.UUID
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BelongsTo(clinicID uuid.UUID) bool {
	return u.ClinicID != nil && *u.ClinicID == clinicID
}

type Appointment struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	Reason    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentDetail is an appointment with the display names listings need.
type AppointmentDetail struct {
	Appointment
	PatientName string
	DoctorName  string
}

type Consultation struct {
	ID            uuid.UUID
	ClinicID      uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	AppointmentID *uuid.UUID
	Diagnosis     string
	Notes         *string
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type CreateAppointmentInput struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Reason    *string
}

// UpdateAppointmentInput is a partial update; nil fields keep their stored value.
type UpdateAppointmentInput struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	StartTime *time.Time
	EndTime   *time.Time
	Status    *Status
	Reason    *string
}

func (in UpdateAppointmentInput) IsEmpty() bool {
	return in.PatientID == nil && in.DoctorID == nil && in.StartTime == nil &&
		in.EndTime == nil && in.Status == nil && in.Reason == nil
}

func (in UpdateAppointmentInput) changesSchedule() bool {
	return in.StartTime != nil || in.EndTime != nil || in.DoctorID != nil
}

type CreateConsultationInput struct {
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	Diagnosis     string
	Notes         *string
}

type ListAppointmentsInput struct {
	Period    Period
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *Status
	Limit     int
	Offset    int
}

type ListConsultationsInput struct {
	PatientID *uuid.UUID
	Limit     int
	Offset    int
}

// normalizeText trims optional free text and drops it when blank.
func normalizeText(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
