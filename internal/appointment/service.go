package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentReminderDue = "APPOINTMENT_REMINDER_DUE"
	EventConsultationCreated    = "CONSULTATION_CREATED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	upcomingLimit    = 5
)

var tracer = otel.Tracer("clinic/scheduling")

type Service struct {
	store   Store
	locker  redisclient.Locker
	marker  redisclient.ReminderMarker
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
	cfg     config.Config
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithReminderMarker(m redisclient.ReminderMarker) Option {
	return func(s *Service) { s.marker = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the scheduling rules to a store. locker may be nil, in which
// case the database transaction and exclusion constraint are the only guards.
func NewService(store Store, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: locker,
		cfg:    cfg,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.ClinicLocation == nil {
		s.cfg.ClinicLocation = time.UTC
	}
	return s
}

// CreateAppointment books [StartTime, EndTime) with a doctor for a patient.
// The conflict check and insert run under the doctor's lock in one transaction.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, in CreateAppointmentInput) (appt *Appointment, err error) {
	ctx, done := s.observe(ctx, "create_appointment", actor)
	defer func() { done(err) }()

	if !actor.Role.Valid() {
		return nil, ErrRoleNotAllowed
	}
	if in.PatientID == uuid.Nil {
		return nil, ErrMissingPatient
	}
	if in.DoctorID == uuid.Nil {
		return nil, ErrMissingDoctor
	}
	if err := validateRange(in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	if _, err := checkPatient(ctx, s.store, actor, in.PatientID); err != nil {
		return nil, err
	}
	if actor.Role == RolePatient {
		own, err := ownPatientRecord(ctx, s.store, actor)
		if err != nil && !errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		if own == nil || own.ID != in.PatientID {
			return nil, ErrNotOwnRecord
		}
	}
	if _, err := checkDoctor(ctx, s.store, actor, in.DoctorID); err != nil {
		return nil, err
	}

	err = s.withDoctorLock(ctx, in.DoctorID, func(lockCtx context.Context) error {
		return s.store.InTx(lockCtx, func(tx Repository) error {
			if err := tx.LockDoctor(lockCtx, in.DoctorID); err != nil {
				return fmt.Errorf("lock doctor row: %w", err)
			}

			conflict, err := HasConflict(lockCtx, tx, in.DoctorID, in.StartTime, in.EndTime, nil)
			if err != nil {
				return err
			}
			if conflict {
				return ErrSlotTaken
			}

			created, err := tx.CreateAppointment(lockCtx, NewAppointment{
				ClinicID:  actor.ClinicID,
				PatientID: in.PatientID,
				DoctorID:  in.DoctorID,
				StartTime: in.StartTime,
				EndTime:   in.EndTime,
				Reason:    normalizeText(in.Reason),
			})
			if err != nil {
				if errors.Is(err, ErrSlotTaken) {
					return err
				}
				return fmt.Errorf("create appointment: %w", err)
			}
			appt = created

			return s.recordEvent(lockCtx, tx, created.ID, EventAppointmentCreated, map[string]any{
				"actor_id":   actor.UserID.String(),
				"patient_id": created.PatientID.String(),
				"doctor_id":  created.DoctorID.String(),
				"start_time": created.StartTime,
				"end_time":   created.EndTime,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"clinic_id", appt.ClinicID,
	)
	return appt, nil
}

// UpdateAppointment applies a partial update. Terminal appointments cannot change,
// and any change of time or doctor re-runs the conflict check excluding id itself.
func (s *Service) UpdateAppointment(ctx context.Context, actor Actor, id uuid.UUID, in UpdateAppointmentInput) (appt *Appointment, err error) {
	ctx, done := s.observe(ctx, "update_appointment", actor)
	defer func() { done(err) }()

	return s.updateAppointment(ctx, actor, id, in)
}

// CancelAppointment moves a scheduled appointment to CANCELLED, freeing its slot.
func (s *Service) CancelAppointment(ctx context.Context, actor Actor, id uuid.UUID) (appt *Appointment, err error) {
	ctx, done := s.observe(ctx, "cancel_appointment", actor)
	defer func() { done(err) }()

	cancelled := StatusCancelled
	return s.updateAppointment(ctx, actor, id, UpdateAppointmentInput{Status: &cancelled})
}

func (s *Service) updateAppointment(ctx context.Context, actor Actor, id uuid.UUID, in UpdateAppointmentInput) (*Appointment, error) {
	if !actor.Role.IsStaff() {
		return nil, ErrRoleNotAllowed
	}
	if in.IsEmpty() {
		return nil, ErrEmptyUpdate
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, ErrUnknownStatus
	}
	if in.PatientID != nil && *in.PatientID == uuid.Nil {
		return nil, ErrMissingPatient
	}
	if in.DoctorID != nil && *in.DoctorID == uuid.Nil {
		return nil, ErrMissingDoctor
	}

	current, err := loadAppointment(ctx, s.store, actor, id)
	if err != nil {
		return nil, err
	}

	// fail fast on the snapshot; the locked row is re-checked below
	next, recheck, err := mergeUpdate(current, in)
	if err != nil {
		return nil, err
	}

	if in.PatientID != nil {
		if _, err := checkPatient(ctx, s.store, actor, *in.PatientID); err != nil {
			return nil, err
		}
	}
	if in.DoctorID != nil {
		if _, err := checkDoctor(ctx, s.store, actor, *in.DoctorID); err != nil {
			return nil, err
		}
	}

	var updated *Appointment
	write := func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx Repository) error {
			if recheck {
				if err := tx.LockDoctor(ctx, next.DoctorID); err != nil {
					return fmt.Errorf("lock doctor row: %w", err)
				}
			}

			locked, err := tx.GetAppointmentForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return err
				}
				return fmt.Errorf("lock appointment: %w", err)
			}

			target, needsCheck, err := mergeUpdate(locked, in)
			if err != nil {
				return err
			}

			if needsCheck {
				conflict, err := HasConflict(ctx, tx, target.DoctorID, target.StartTime, target.EndTime, &target.ID)
				if err != nil {
					return err
				}
				if conflict {
					return ErrSlotTaken
				}
			}

			saved, err := tx.UpdateAppointment(ctx, target)
			if err != nil {
				if errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrAppointmentNotFound) {
					return err
				}
				return fmt.Errorf("update appointment: %w", err)
			}
			updated = saved

			return s.recordEvent(ctx, tx, saved.ID, updateEventType(locked.Status, saved.Status), map[string]any{
				"actor_id":    actor.UserID.String(),
				"from_status": locked.Status,
				"to_status":   saved.Status,
				"doctor_id":   saved.DoctorID.String(),
				"start_time":  saved.StartTime,
				"end_time":    saved.EndTime,
			})
		})
	}

	if recheck {
		err = s.withDoctorLock(ctx, next.DoctorID, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment updated",
		"appointment_id", updated.ID,
		"status", updated.Status,
		"doctor_id", updated.DoctorID,
	)
	return updated, nil
}

// mergeUpdate applies in on top of cur. recheck reports whether the result needs
// a conflict check: the schedule moved and the appointment still occupies time.
func mergeUpdate(cur *Appointment, in UpdateAppointmentInput) (Appointment, bool, error) {
	next := *cur

	target := cur.Status
	if in.Status != nil {
		target = *in.Status
	}
	if !cur.Status.CanTransitionTo(target) {
		return Appointment{}, false, ErrInvalidStatusTransition
	}
	next.Status = target

	if in.PatientID != nil {
		next.PatientID = *in.PatientID
	}
	if in.DoctorID != nil {
		next.DoctorID = *in.DoctorID
	}
	if in.StartTime != nil {
		next.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		next.EndTime = *in.EndTime
	}
	if in.Reason != nil {
		next.Reason = normalizeText(in.Reason)
	}

	if err := validateRange(next.StartTime, next.EndTime); err != nil {
		return Appointment{}, false, err
	}

	return next, in.changesSchedule() && next.Status.BlocksSchedule(), nil
}

func updateEventType(from, to Status) string {
	if from == to {
		return EventAppointmentUpdated
	}
	switch to {
	case StatusCancelled:
		return EventAppointmentCancelled
	case StatusDone:
		return EventAppointmentCompleted
	default:
		return EventAppointmentUpdated
	}
}

// GetAppointment returns one appointment of the actor's clinic. Patients only see their own.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (appt *Appointment, err error) {
	ctx, done := s.observe(ctx, "get_appointment", actor)
	defer func() { done(err) }()

	appt, err = loadAppointment(ctx, s.store, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == RolePatient {
		own, err := ownPatientRecord(ctx, s.store, actor)
		if err != nil && !errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		if own == nil || own.ID != appt.PatientID {
			return nil, ErrNotOwnRecord
		}
	}
	return appt, nil
}

// ListAppointments returns the clinic's appointments, newest first.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, in ListAppointmentsInput) (out []AppointmentDetail, err error) {
	ctx, done := s.observe(ctx, "list_appointments", actor)
	defer func() { done(err) }()

	if in.Status != nil && !in.Status.Valid() {
		return nil, ErrUnknownStatus
	}

	filter := AppointmentFilter{
		ClinicID:  actor.ClinicID,
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		Status:    in.Status,
	}
	filter.Limit, filter.Offset = clampPage(in.Limit, in.Offset)

	if in.Period != "" {
		if _, err := ParsePeriod(string(in.Period)); err != nil {
			return nil, err
		}
		from, to := in.Period.Bounds(s.now(), s.cfg.ClinicLocation)
		filter.From, filter.To = &from, &to
	}

	if actor.Role == RolePatient {
		own, err := ownPatientRecord(ctx, s.store, actor)
		if err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return []AppointmentDetail{}, nil
			}
			return nil, err
		}
		filter.PatientID = &own.ID
	}

	out, err = s.store.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// UpcomingAppointments lists the next scheduled appointments from now until the end
// of tomorrow. Doctors see their own schedule and patients their own bookings.
func (s *Service) UpcomingAppointments(ctx context.Context, actor Actor) (out []AppointmentDetail, err error) {
	ctx, done := s.observe(ctx, "upcoming_appointments", actor)
	defer func() { done(err) }()

	now := s.now()
	y, m, d := now.In(s.cfg.ClinicLocation).Date()
	until := time.Date(y, m, d+2, 0, 0, 0, 0, s.cfg.ClinicLocation)
	scheduled := StatusScheduled

	filter := AppointmentFilter{
		ClinicID:  actor.ClinicID,
		Status:    &scheduled,
		From:      &now,
		To:        &until,
		Ascending: true,
		Limit:     upcomingLimit,
	}

	switch actor.Role {
	case RoleDoctor:
		filter.DoctorID = &actor.UserID
	case RolePatient:
		own, err := ownPatientRecord(ctx, s.store, actor)
		if err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return []AppointmentDetail{}, nil
			}
			return nil, err
		}
		filter.PatientID = &own.ID
	}

	out, err = s.store.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	return out, nil
}

func (s *Service) withDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithDoctorLock(ctx, doctorID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrDoctorBusy
	}
	return err
}

func (s *Service) recordEvent(ctx context.Context, repo Repository, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := repo.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}

// observe opens a span and returns the function that closes it and records metrics.
func (s *Service) observe(ctx context.Context, op string, actor Actor) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "scheduling."+op)
	span.SetAttributes(
		attribute.String("actor.role", string(actor.Role)),
		attribute.String("clinic.id", actor.ClinicID.String()),
	)
	start := time.Now()

	return ctx, func(err error) {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("outcome", outcome))
		if outcome == "internal" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("scheduling operation failed", "operation", op, "error", err)
		}
		span.End()
		s.metrics.ObserveOperation(op, outcome, time.Since(start))
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
