package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type NewAppointment struct {
	ClinicID  uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Reason    *string
}

type NewConsultation struct {
	ClinicID      uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	AppointmentID *uuid.UUID
	Diagnosis     string
	Notes         *string
}

// AppointmentFilter narrows ListAppointments. From is inclusive, To exclusive, both on start_time.
type AppointmentFilter struct {
	ClinicID  uuid.UUID
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *Status
	From      *time.Time
	To        *time.Time
	Ascending bool
	Limit     int
	Offset    int
}

type ConsultationFilter struct {
	ClinicID  uuid.UUID
	PatientID *uuid.UUID
	Limit     int
	Offset    int
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindPatientByEmail(ctx context.Context, clinicID uuid.UUID, email string) (*Patient, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListDoctors(ctx context.Context, clinicID uuid.UUID) ([]User, error)

	// For conflict checks
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
	FindConflictingAppointment(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Reminder worker
	FindUpcomingScheduled(ctx context.Context, from, to time.Time) ([]Appointment, error)

	GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	GetConsultationByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error)
	CreateConsultation(ctx context.Context, in NewConsultation) (*Consultation, error)
	ListConsultations(ctx context.Context, f ConsultationFilter) ([]Consultation, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Store is a Repository that can run a group of calls atomically.
// fn receives a Repository bound to the transaction; returning an error rolls it back.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(tx Repository) error) error
}
