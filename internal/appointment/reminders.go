package appointment

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// QueueReminders is intended to be called by the worker periodically. Every
// SCHEDULED appointment starting within the reminder lead of now gets one
// APPOINTMENT_REMINDER_DUE event; the Redis marker stops repeats across runs.
func (s *Service) QueueReminders(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "scheduling.queue_reminders")
	defer span.End()

	due, err := s.store.FindUpcomingScheduled(ctx, now, now.Add(s.cfg.ReminderLead))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("find upcoming appointments: %w", err)
	}

	queued := 0
	for _, appt := range due {
		if s.marker != nil {
			first, err := s.marker.MarkOnce(ctx, appt.ID)
			if err != nil {
				s.logger.Warn("reminder marker failed", "appointment_id", appt.ID, "error", err)
				continue
			}
			if !first {
				continue
			}
		}

		err := s.recordEvent(ctx, s.store, appt.ID, EventAppointmentReminderDue, map[string]any{
			"patient_id": appt.PatientID.String(),
			"doctor_id":  appt.DoctorID.String(),
			"start_time": appt.StartTime,
		})
		if err != nil {
			s.logger.Error("failed to queue reminder", "appointment_id", appt.ID, "error", err)
			if s.marker != nil {
				if uerr := s.marker.Unmark(context.WithoutCancel(ctx), appt.ID); uerr != nil {
					s.logger.Warn("reminder unmark failed", "appointment_id", appt.ID, "error", uerr)
				}
			}
			continue
		}
		queued++
	}

	span.SetAttributes(
		attribute.Int("reminders.due", len(due)),
		attribute.Int("reminders.queued", queued),
	)
	s.metrics.AddRemindersQueued(queued)
	return queued, nil
}
