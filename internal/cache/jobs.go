package cache

import (
	"context"
	"fmt"
	"time"

	"Routinely/storage/redis"
)

// 延迟任务的入队/取消标记。
// RabbitMQ 的延迟消息发布后无法撤回，取消语义由两层实现：
//  1. 入队标记（SETNX）：同一任务键在未触发前只允许入队一次；
//  2. 取消墓碑：cancel(key) 写入墓碑，任务触发时 handler 先查墓碑，命中则丢弃。
// 墓碑是尽力而为，漏掉的取消由提醒行的状态守卫兜底，最坏情况是一次空跑。
const (
	jobEnqueuedPrefix      = "job:enqueued"
	jobCancelledPrefix     = "job:cancelled"
	messageProcessedPrefix = "message:processed"

	enqueuedTTL  = 48 * time.Hour
	cancelledTTL = 48 * time.Hour
	processedTTL = 48 * time.Hour
)

// TryMarkJobEnqueued 原子标记任务键已入队，返回 false 表示已有同键任务在队列中
func TryMarkJobEnqueued(ctx context.Context, jobKey string, ttl time.Duration) (bool, error) {
	key := redis.Key(jobEnqueuedPrefix, jobKey)
	if ttl <= 0 {
		ttl = enqueuedTTL
	}

	result, err := redis.Client().SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark job enqueued: %w", err)
	}
	return result, nil
}

// UnmarkJobEnqueued 清除入队标记（任务已触发或入队失败时调用，允许同键再次入队）
func UnmarkJobEnqueued(ctx context.Context, jobKey string) error {
	key := redis.Key(jobEnqueuedPrefix, jobKey)
	return redis.Client().Del(ctx, key).Err()
}

// CancelJob 写入取消墓碑并清除入队标记。
// 对已触发或不存在的任务键调用是安全的 no-op。
func CancelJob(ctx context.Context, jobKey string) error {
	tombstone := redis.Key(jobCancelledPrefix, jobKey)
	if err := redis.Client().Set(ctx, tombstone, "1", cancelledTTL).Err(); err != nil {
		return fmt.Errorf("failed to write cancel tombstone: %w", err)
	}
	return UnmarkJobEnqueued(ctx, jobKey)
}

// IsJobCancelled 检查任务键是否已被取消
func IsJobCancelled(ctx context.Context, jobKey string) (bool, error) {
	key := redis.Key(jobCancelledPrefix, jobKey)
	result, err := redis.Client().Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cancel tombstone: %w", err)
	}
	return result > 0, nil
}

// ClearJobCancelled 清除取消墓碑（同一任务键重新排队前调用，如延后后的再投递）
func ClearJobCancelled(ctx context.Context, jobKey string) error {
	key := redis.Key(jobCancelledPrefix, jobKey)
	return redis.Client().Del(ctx, key).Err()
}

// TryMarkMessageProcessing 尝试原子性地标记消息正在处理（使用 SETNX）
// 返回 true 表示成功标记（首次处理），false 表示已被标记（重复消息或正在处理）
func TryMarkMessageProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	key := redis.Key(messageProcessedPrefix, messageID)
	if ttl <= 0 {
		ttl = processedTTL
	}

	result, err := redis.Client().SetNX(ctx, key, "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return result, nil
}

// UnmarkMessageProcessing 取消消息处理标记（处理失败时调用，允许重试）
func UnmarkMessageProcessing(ctx context.Context, messageID string) error {
	key := redis.Key(messageProcessedPrefix, messageID)
	return redis.Client().Del(ctx, key).Err()
}

// MarkMessageProcessed 标记消息已处理（处理成功时调用，延长 TTL）
func MarkMessageProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	key := redis.Key(messageProcessedPrefix, messageID)
	if ttl <= 0 {
		ttl = processedTTL
	}
	return redis.Client().Set(ctx, key, "completed", ttl).Err()
}
