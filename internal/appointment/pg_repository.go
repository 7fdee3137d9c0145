package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of pgx used by the repository. *pgxpool.Pool, pgx.Tx and
// pgxmock pools all satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const (
	sqlStateExclusionViolation = "23P01"
	sqlStateUniqueViolation    = "23505"
	sqlStateCheckViolation     = "23514"

	constraintConsultationPerAppointment = "consultations_appointment_unique"
	constraintAppointmentTimeOrder       = "appointments_time_order"
)

const appointmentColumns = `id, clinic_id, patient_id, doctor_id, start_time, end_time, status, reason, created_at, updated_at`

const consultationColumns = `id, clinic_id, patient_id, doctor_id, appointment_id, diagnosis, notes, created_at`

// InTx runs fn inside a transaction. Any error from fn rolls back.
func (r *PgRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&PgRepository{db: tx}); err != nil {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = tx.Rollback(rbCtx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if mapped := mapPgError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapPgError turns constraint violations into domain errors and returns anything else unchanged.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateExclusionViolation:
		return ErrSlotTaken
	case sqlStateUniqueViolation:
		if pgErr.ConstraintName == constraintConsultationPerAppointment {
			return ErrConsultationExists
		}
	case sqlStateCheckViolation:
		if pgErr.ConstraintName == constraintAppointmentTimeOrder {
			return ErrInvalidTimeRange
		}
	}
	return err
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.Name,
		&p.Email,
		&p.Age,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string

	err := row.Scan(
		&u.ID,
		&u.ClinicID,
		&u.Name,
		&u.Email,
		&role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Role = Role(role)
	return &u, nil
}

func appointmentDest(a *Appointment, status *string) []any {
	return []any{
		&a.ID,
		&a.ClinicID,
		&a.PatientID,
		&a.DoctorID,
		&a.StartTime,
		&a.EndTime,
		status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	if err := row.Scan(appointmentDest(&a, &status)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation

	err := row.Scan(
		&c.ID,
		&c.ClinicID,
		&c.PatientID,
		&c.DoctorID,
		&c.AppointmentID,
		&c.Diagnosis,
		&c.Notes,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, clinic_id, name, email, age, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) FindPatientByEmail(ctx context.Context, clinicID uuid.UUID, email string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, clinic_id, name, email, age, created_at, updated_at
		FROM patients
		WHERE clinic_id = $1
		  AND lower(email) = lower($2)
		ORDER BY created_at
		LIMIT 1
	`, clinicID, email)
	return scanPatient(row)
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, clinic_id, name, email, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context, clinicID uuid.UUID) ([]User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, clinic_id, name, email, role, created_at, updated_at
		FROM users
		WHERE clinic_id = $1
		  AND role = 'DOCTOR'
		ORDER BY name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	return result, rows.Err()
}

// LockDoctor takes a row lock on the doctor so concurrent bookings for the same
// doctor serialise inside Postgres as well.
func (r *PgRepository) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		SELECT id
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, doctorID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDoctorNotFound
		}
		return err
	}
	return nil
}

func (r *PgRepository) FindConflictingAppointment(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'CANCELLED'
		  AND start_time < $3
		  AND end_time > $2
		  AND ($4::uuid IS NULL OR id <> $4)
		ORDER BY start_time
		LIMIT 1
	`, doctorID, start, end, exclude)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	where := []string{"a.clinic_id = $1"}
	args := []any{f.ClinicID}

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("a.doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != nil {
		add("a.status = $%d", string(*f.Status))
	}
	if f.From != nil {
		add("a.start_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("a.start_time < $%d", *f.To)
	}

	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}
	args = append(args, f.Limit, f.Offset)

	query := fmt.Sprintf(`
		SELECT a.id, a.clinic_id, a.patient_id, a.doctor_id, a.start_time, a.end_time,
		       a.status, a.reason, a.created_at, a.updated_at, p.name, d.name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN users d ON d.id = a.doctor_id
		WHERE %s
		ORDER BY a.start_time %s
		LIMIT $%d OFFSET $%d
	`, strings.Join(where, " AND "), order, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		var d AppointmentDetail
		var status string
		dest := append(appointmentDest(&d.Appointment, &status), &d.PatientName, &d.DoctorName)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		d.Status = Status(status)
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, clinic_id, patient_id, doctor_id, start_time, end_time, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'SCHEDULED', $7, now(), now())
		RETURNING `+appointmentColumns,
		id, in.ClinicID, in.PatientID, in.DoctorID, in.StartTime, in.EndTime, in.Reason)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return a, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET patient_id = $2,
		    doctor_id = $3,
		    start_time = $4,
		    end_time = $5,
		    status = $6,
		    reason = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		appt.ID, appt.PatientID, appt.DoctorID, appt.StartTime, appt.EndTime, string(appt.Status), appt.Reason)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return a, nil
}

// UpdateAppointmentStatus moves id from one status to another. It returns
// ErrAppointmentNotFound when the row is no longer in the from status.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(to), string(from))

	return scanAppointment(row)
}

func (r *PgRepository) FindUpcomingScheduled(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'SCHEDULED'
		  AND start_time >= $1
		  AND start_time < $2
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE id = $1
	`, id)
	return scanConsultation(row)
}

func (r *PgRepository) GetConsultationByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE appointment_id = $1
	`, appointmentID)
	return scanConsultation(row)
}

func (r *PgRepository) CreateConsultation(ctx context.Context, in NewConsultation) (*Consultation, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO consultations (id, clinic_id, patient_id, doctor_id, appointment_id, diagnosis, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING `+consultationColumns,
		id, in.ClinicID, in.PatientID, in.DoctorID, in.AppointmentID, in.Diagnosis, in.Notes)

	c, err := scanConsultation(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return c, nil
}

func (r *PgRepository) ListConsultations(ctx context.Context, f ConsultationFilter) ([]Consultation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE clinic_id = $1
		  AND ($2::uuid IS NULL OR patient_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, f.ClinicID, f.PatientID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Consultation{}
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
