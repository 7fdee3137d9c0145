package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReminderMarker remembers which appointments already had a reminder queued.
type ReminderMarker interface {
	MarkOnce(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	Unmark(ctx context.Context, appointmentID uuid.UUID) error
}

type redisReminderMarker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReminderMarker(client *redis.Client, ttl time.Duration) ReminderMarker {
	return &redisReminderMarker{client: client, ttl: ttl}
}

// MarkOnce reports true only for the first caller per appointment within the TTL.
func (m *redisReminderMarker) MarkOnce(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	ok, err := m.client.SetNX(ctx, reminderKey(appointmentID), time.Now().UTC().Format(time.RFC3339), m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark reminder: %w", err)
	}
	return ok, nil
}

// Unmark forgets a mark so the next sweep queues the reminder again.
func (m *redisReminderMarker) Unmark(ctx context.Context, appointmentID uuid.UUID) error {
	if err := m.client.Del(ctx, reminderKey(appointmentID)).Err(); err != nil {
		return fmt.Errorf("unmark reminder: %w", err)
	}
	return nil
}

func reminderKey(appointmentID uuid.UUID) string {
	return fmt.Sprintf("reminder:appointment:%s", appointmentID.String())
}
