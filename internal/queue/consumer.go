package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Routinely/config"
	"Routinely/internal/cache"
	"Routinely/internal/model"
	"Routinely/pkg/errors"
	"Routinely/pkg/logger"
	"Routinely/storage/mq"
)

// DeliverHandler 投递任务的业务处理，worker 启动时注入
type DeliverHandler interface {
	HandleDeliver(ctx context.Context, msg model.DeliverMessage) error
	HandleEscalate(ctx context.Context, msg model.EscalateMessage) error
}

var deliverHandler DeliverHandler

// SetDeliverHandler 设置任务处理器（在 worker 启动时调用）
func SetDeliverHandler(h DeliverHandler) {
	deliverHandler = h
}

// StartDeliverConsumer 启动投递任务消费者
func StartDeliverConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.DeliverMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed deliver message: %v", err)}
		}

		if skip := checkIdempotency(ctx, msg.MessageID); skip != nil {
			return skip
		}

		// 任务已触发，释放入队标记让同键任务可以重新排队（延后、免打扰顺延）
		if err := cache.UnmarkJobEnqueued(ctx, msg.JobKey); err != nil {
			logger.Logger.Warn("Failed to release enqueue mark",
				zap.String("job_key", msg.JobKey),
				zap.Error(err),
			)
		}

		if err := deliverHandler.HandleDeliver(ctx, msg); err != nil {
			if errors.IsSkipMessageError(err) {
				markProcessed(ctx, msg.MessageID)
				return err
			}
			// 处理失败，取消标记允许 broker 重投后再次处理
			if unmarkErr := cache.UnmarkMessageProcessing(ctx, msg.MessageID); unmarkErr != nil {
				logger.Logger.Warn("Failed to unmark message processing",
					zap.String("message_id", msg.MessageID),
					zap.Error(unmarkErr),
				)
			}
			return fmt.Errorf("failed to handle deliver job: %w", err)
		}

		markProcessed(ctx, msg.MessageID)
		return nil
	}

	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueDeliver,
		ConsumerTag:   "reminder_deliver_consumer",
		PrefetchCount: config.Cfg.DeliverPrefetch,
		Handler:       handler,
	})
}

// StartEscalateConsumer 启动升级任务消费者
func StartEscalateConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.EscalateMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed escalate message: %v", err)}
		}

		if skip := checkIdempotency(ctx, msg.MessageID); skip != nil {
			return skip
		}

		if err := cache.UnmarkJobEnqueued(ctx, msg.JobKey); err != nil {
			logger.Logger.Warn("Failed to release enqueue mark",
				zap.String("job_key", msg.JobKey),
				zap.Error(err),
			)
		}

		if err := deliverHandler.HandleEscalate(ctx, msg); err != nil {
			if errors.IsSkipMessageError(err) {
				markProcessed(ctx, msg.MessageID)
				return err
			}
			if unmarkErr := cache.UnmarkMessageProcessing(ctx, msg.MessageID); unmarkErr != nil {
				logger.Logger.Warn("Failed to unmark message processing",
					zap.String("message_id", msg.MessageID),
					zap.Error(unmarkErr),
				)
			}
			return fmt.Errorf("failed to handle escalate job: %w", err)
		}

		markProcessed(ctx, msg.MessageID)
		return nil
	}

	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueEscalate,
		ConsumerTag:   "reminder_escalate_consumer",
		PrefetchCount: config.Cfg.EscalatePrefetch,
		Handler:       handler,
	})
}

// StartAllConsumers 启动全部消费者，任何一个退出都向 errCh 报告
func StartAllConsumers(ctx context.Context, errCh chan<- error) {
	go func() {
		if err := StartDeliverConsumer(ctx); err != nil {
			errCh <- fmt.Errorf("deliver consumer exited: %w", err)
		}
	}()
	go func() {
		if err := StartEscalateConsumer(ctx); err != nil {
			errCh <- fmt.Errorf("escalate consumer exited: %w", err)
		}
	}()
}

// checkIdempotency 原子标记消息正在处理，重复消息返回 SkipMessageError
func checkIdempotency(ctx context.Context, messageID string) error {
	fresh, err := cache.TryMarkMessageProcessing(ctx, messageID, 24*time.Hour)
	if err != nil {
		logger.Logger.Warn("Failed to check message processed status",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		// 检查失败时继续处理，状态守卫兜底重复
		return nil
	}
	if !fresh {
		return &errors.SkipMessageError{Reason: fmt.Sprintf("message %s already processed", messageID)}
	}
	return nil
}

func markProcessed(ctx context.Context, messageID string) {
	if err := cache.MarkMessageProcessed(ctx, messageID, 48*time.Hour); err != nil {
		logger.Logger.Warn("Failed to mark message as processed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
