package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Overlaps reports whether the half-open ranges [aStart, aEnd) and [bStart, bEnd) intersect.
// Ranges that only touch (a ends exactly when b starts) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// HasConflict reports whether doctorID already has a non-cancelled appointment
// overlapping [start, end). exclude, when set, is left out of the check so an
// appointment never conflicts with itself on update.
func HasConflict(ctx context.Context, repo Repository, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (bool, error) {
	_, err := repo.FindConflictingAppointment(ctx, doctorID, start, end, exclude)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check doctor schedule: %w", err)
	}
	return true, nil
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return ErrMissingTimes
	}
	if !end.After(start) {
		return ErrInvalidTimeRange
	}
	return nil
}
