package cache

import (
	"context"
	"time"

	"Routinely/storage/redis"
)

// 通过 SETNX 实现的分布式锁，防止多个 scheduler 实例同时滚动地平线

const (
	lockPrefix = "rtn:lock"
)

func TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	fullkey := redis.Key(lockPrefix, key)

	result, err := redis.Client().SetNX(ctx, fullkey, 1, ttl).Result()

	if err != nil {
		return false, err
	}

	return result, err
}

func Unlock(ctx context.Context, key string) error {
	fullkey := redis.Key(lockPrefix, key)

	return redis.Client().Del(ctx, fullkey).Err()
}
