package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

func TestQueueRemindersMarksEachAppointmentOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, WithReminderMarker(redisclient.NewRedisReminderMarker(client, 48*time.Hour)))
	ctx := context.Background()

	f.book(t, f.doctor.ID, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
	f.book(t, f.otherDoctor.ID, testNow.Add(20*time.Hour), testNow.Add(21*time.Hour))
	f.book(t, f.doctor.ID, testNow.Add(30*time.Hour), testNow.Add(31*time.Hour))
	cancelled := f.book(t, f.otherDoctor.ID, testNow.Add(3*time.Hour), testNow.Add(4*time.Hour))
	_, err := f.svc.CancelAppointment(ctx, f.front, cancelled.ID)
	require.NoError(t, err)

	queued, err := f.svc.QueueReminders(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	queued, err = f.svc.QueueReminders(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, queued)

	// the 30h appointment enters the lead window later
	queued, err = f.svc.QueueReminders(ctx, testNow.Add(8*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	reminders := 0
	for _, ev := range f.store.eventTypes() {
		if ev == EventAppointmentReminderDue {
			reminders++
		}
	}
	assert.Equal(t, 3, reminders)
}

func TestQueueRemindersWithoutMarker(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.doctor.ID, testNow.Add(time.Hour), testNow.Add(2*time.Hour))

	queued, err := f.svc.QueueReminders(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
}

func TestQueueRemindersRetriesAfterEventFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, WithReminderMarker(redisclient.NewRedisReminderMarker(client, 48*time.Hour)))
	ctx := context.Background()
	appt := f.book(t, f.doctor.ID, testNow.Add(time.Hour), testNow.Add(2*time.Hour))

	f.store.failInsertEvent = errors.New("event log unavailable")
	queued, err := f.svc.QueueReminders(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.False(t, mr.Exists("reminder:appointment:"+appt.ID.String()), "failed reminder must not stay marked")

	f.store.failInsertEvent = nil
	queued, err = f.svc.QueueReminders(ctx, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
}
