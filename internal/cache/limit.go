package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Routinely/config"
	"Routinely/storage/redis"
)

// ========== 每日触达限流 ==========
// 单个用户一天内收到的提醒/升级消息数量上限，防止配置异常时轰炸用户。

const dailyDeliveryPrefix = "deliver:daily"

// GetDailyDeliveryCount 获取用户当日已触达次数
// dayKey 格式: "2006-01-02"
func GetDailyDeliveryCount(ctx context.Context, userID int64, dayKey string) (int, error) {
	key := redis.Key(dailyDeliveryPrefix, fmt.Sprintf("%d", userID), dayKey)
	count, err := redis.Client().Get(ctx, key).Int()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get daily delivery count: %w", err)
	}
	return count, nil
}

// IncrementDailyDeliveryCount 增加用户当日触达计数，过期时间设置到次日零点
func IncrementDailyDeliveryCount(ctx context.Context, userID int64, dayKey string) error {
	key := redis.Key(dailyDeliveryPrefix, fmt.Sprintf("%d", userID), dayKey)

	now := time.Now()
	nextDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	ttl := nextDay.Sub(now)

	pipe := redis.Client().Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment daily delivery count: %w", err)
	}
	return nil
}

// CheckDailyDeliveryCap 检查用户当日触达是否超限
func CheckDailyDeliveryCap(ctx context.Context, userID int64) (bool, int, error) {
	dayKey := time.Now().Format("2006-01-02")
	count, err := GetDailyDeliveryCount(ctx, userID, dayKey)
	if err != nil {
		return true, 0, err // 出错时降级，允许发送
	}
	return count < config.Cfg.DailyReminderCap, count, nil
}
