package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" cancelled ")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, s)

	_, err = ParseStatus("pending")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusScheduled, true},
		{StatusScheduled, StatusDone, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusDone, StatusScheduled, false},
		{StatusDone, StatusCancelled, false},
		{StatusDone, StatusDone, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCancelled, StatusDone, false},
		{StatusScheduled, Status("LATE"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.False(t, StatusScheduled.IsTerminal())
	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusCancelled.BlocksSchedule())
	assert.True(t, StatusDone.BlocksSchedule())
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "validation_error", Outcome(ErrInvalidTimeRange))
	assert.Equal(t, "not_found", Outcome(ErrDoctorNotFound))
	assert.Equal(t, "forbidden", Outcome(ErrPatientOutsideClinic))
	assert.Equal(t, "conflict", Outcome(ErrSlotTaken))
	assert.Equal(t, "role_mismatch", Outcome(ErrNotADoctor))
	assert.Equal(t, "internal", Outcome(assert.AnError))
}
