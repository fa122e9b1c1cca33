package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Routinely/internal/cache"
	"Routinely/internal/model"
	"Routinely/pkg/logger"
	"Routinely/pkg/snowflake"
	"Routinely/storage/mq"
)

// EnqueueDeliver 为提醒排一个延迟投递任务。
// 同一任务键在触发前只会入队一次，重复调用是无副作用的 no-op。
// 延后重入时会先清掉旧的取消墓碑。
func EnqueueDeliver(ctx context.Context, reminder *model.Reminder, delay time.Duration) error {
	jobKey := model.DeliverJobKey(reminder.ID)

	if err := cache.ClearJobCancelled(ctx, jobKey); err != nil {
		return fmt.Errorf("failed to clear cancel tombstone: %w", err)
	}

	ok, err := cache.TryMarkJobEnqueued(ctx, jobKey, enqueueTTL(delay))
	if err != nil {
		return err
	}
	if !ok {
		logger.Logger.Debug("Deliver job already enqueued, skipping",
			zap.String("job_key", jobKey),
		)
		return nil
	}

	msgID, err := snowflake.NextID()
	if err != nil {
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	msg := model.DeliverMessage{
		MessageID:     fmt.Sprintf("deliver_%d", msgID),
		JobKey:        jobKey,
		ReminderID:    reminder.ID,
		UserID:        reminder.UserID,
		PostponeCount: reminder.PostponeCount,
		ScheduledAt:   time.Now().Add(delay).UTC().Format(time.RFC3339),
		DelaySeconds:  int(delay / time.Second),
	}

	if err := mq.PublishDelayedMessage(mq.ExchangeDelayed, mq.RoutingKeyDeliver, delay, msg); err != nil {
		// 入队失败要释放标记，否则这个键永远排不进去
		if unmarkErr := cache.UnmarkJobEnqueued(ctx, jobKey); unmarkErr != nil {
			logger.Logger.Error("Failed to release enqueue mark after publish failure",
				zap.String("job_key", jobKey),
				zap.Error(unmarkErr),
			)
		}
		return fmt.Errorf("failed to publish deliver job: %w", err)
	}

	logger.Logger.Info("Deliver job enqueued",
		zap.String("job_key", jobKey),
		zap.Int64("reminder_id", reminder.ID),
		zap.Duration("delay", delay),
	)
	return nil
}

// EnqueueEscalate 为已投递的提醒排一个升级任务，level ∈ 1..3
func EnqueueEscalate(ctx context.Context, reminder *model.Reminder, level int, delay time.Duration) error {
	if level < 1 || level > 3 {
		return fmt.Errorf("invalid escalation level %d", level)
	}

	jobKey := model.EscalateJobKey(reminder.ID, level)

	if err := cache.ClearJobCancelled(ctx, jobKey); err != nil {
		return fmt.Errorf("failed to clear cancel tombstone: %w", err)
	}

	ok, err := cache.TryMarkJobEnqueued(ctx, jobKey, enqueueTTL(delay))
	if err != nil {
		return err
	}
	if !ok {
		logger.Logger.Debug("Escalate job already enqueued, skipping",
			zap.String("job_key", jobKey),
		)
		return nil
	}

	msgID, err := snowflake.NextID()
	if err != nil {
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	msg := model.EscalateMessage{
		MessageID:     fmt.Sprintf("escalate_%d", msgID),
		JobKey:        jobKey,
		ReminderID:    reminder.ID,
		UserID:        reminder.UserID,
		Level:         level,
		PostponeCount: reminder.PostponeCount,
		ScheduledAt:   time.Now().Add(delay).UTC().Format(time.RFC3339),
		DelaySeconds:  int(delay / time.Second),
	}

	if err := mq.PublishDelayedMessage(mq.ExchangeDelayed, mq.RoutingKeyEscalate, delay, msg); err != nil {
		if unmarkErr := cache.UnmarkJobEnqueued(ctx, jobKey); unmarkErr != nil {
			logger.Logger.Error("Failed to release enqueue mark after publish failure",
				zap.String("job_key", jobKey),
				zap.Error(unmarkErr),
			)
		}
		return fmt.Errorf("failed to publish escalate job: %w", err)
	}

	logger.Logger.Info("Escalate job enqueued",
		zap.String("job_key", jobKey),
		zap.Int64("reminder_id", reminder.ID),
		zap.Int("level", level),
		zap.Duration("delay", delay),
	)
	return nil
}

// CancelDeliver 取消提醒尚未触发的投递任务
func CancelDeliver(ctx context.Context, reminderID int64) error {
	return cache.CancelJob(ctx, model.DeliverJobKey(reminderID))
}

// CancelEscalations 取消提醒的全部升级任务，终态迁移后调用
func CancelEscalations(ctx context.Context, reminderID int64) error {
	for level := 1; level <= 3; level++ {
		if err := cache.CancelJob(ctx, model.EscalateJobKey(reminderID, level)); err != nil {
			return err
		}
	}
	return nil
}

// PublishReminderEvent 向事件总线发布状态迁移事件，供积分/成就服务消费。
// 发布失败只记日志，事件已持久化在流水表里，不阻塞状态迁移。
func PublishReminderEvent(event *model.ReminderEvent) {
	msg := model.EventMessage{
		EventKey:   fmt.Sprintf("reminder:%d:%d", event.ReminderID, event.EventCode),
		EventType:  string(event.Type),
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339),
		Payload: map[string]interface{}{
			"reminder_id": event.ReminderID,
			"routine_id":  event.RoutineID,
			"user_id":     event.UserID,
			"detail":      event.Detail,
		},
	}

	routingKey := "reminder." + string(event.Type)
	if err := mq.PublishMessage(mq.ExchangeEvents, routingKey, msg); err != nil {
		logger.Logger.Warn("Failed to publish reminder event",
			zap.String("event_type", string(event.Type)),
			zap.Int64("reminder_id", event.ReminderID),
			zap.Error(err),
		)
	}
}

// 标记至少要活过任务的触发时刻，再留出消费重试的余量
func enqueueTTL(delay time.Duration) time.Duration {
	return delay + 24*time.Hour
}
