package queue

import (
	"context"
	"time"

	"Routinely/internal/cache"
	"Routinely/internal/model"
)

// MQJobQueue 生产实现：RabbitMQ 延迟消息 + Redis 入队/取消标记
type MQJobQueue struct{}

func NewMQJobQueue() *MQJobQueue {
	return &MQJobQueue{}
}

func (q *MQJobQueue) EnqueueDeliver(ctx context.Context, reminder *model.Reminder, delay time.Duration) error {
	return EnqueueDeliver(ctx, reminder, delay)
}

func (q *MQJobQueue) EnqueueEscalate(ctx context.Context, reminder *model.Reminder, level int, delay time.Duration) error {
	return EnqueueEscalate(ctx, reminder, level, delay)
}

func (q *MQJobQueue) CancelDeliver(ctx context.Context, reminderID int64) error {
	return CancelDeliver(ctx, reminderID)
}

func (q *MQJobQueue) CancelEscalations(ctx context.Context, reminderID int64) error {
	return CancelEscalations(ctx, reminderID)
}

func (q *MQJobQueue) IsCancelled(ctx context.Context, jobKey string) (bool, error) {
	return cache.IsJobCancelled(ctx, jobKey)
}

func (q *MQJobQueue) PublishEvent(event *model.ReminderEvent) {
	PublishReminderEvent(event)
}
