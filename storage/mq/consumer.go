package mq

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"Routinely/pkg/errors"
	"Routinely/pkg/logger"
)

type MessageHandler func([]byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费指定队列，直到 ctx 取消或通道关闭。
// 处理失败的消息 Nack 并重新入队（at-least-once）；
// SkipMessageError 表示消息应被丢弃（幂等检查命中、任务已取消），直接 Ack。
func Consume(ctx context.Context, opts ConsumeOptions) error {
	conn := Connection()

	if conn == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack = false
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}

			if err := opts.Handler(msg.Body); err != nil {
				if errors.IsSkipMessageError(err) {
					logger.Logger.Debug("Message skipped",
						zap.String("queue", opts.Queue),
						zap.Error(err),
					)
					msg.Ack(false)
					continue
				}

				logger.Logger.Error("Failed to process message",
					zap.String("queue", opts.Queue),
					zap.String("consumer_tag", opts.ConsumerTag),
					zap.Error(err),
				)

				msg.Nack(false, true) // requeue = true
				continue
			}

			msg.Ack(false)
		}
	}
}
