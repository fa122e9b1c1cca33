package scheduler

// 滚动生成器：周期性把所有启用日程的未来发生物化成提醒行。
// 多实例部署时用 Redis 锁保证同一时刻只有一个实例在滚动，
// 锁没抢到直接跳过本轮，生成本身是幂等的，漏一轮无害。

import (
	"context"
	"time"

	"go.uber.org/zap"

	"Routinely/config"
	"Routinely/internal/cache"
	"Routinely/internal/service"
	"Routinely/pkg/logger"
)

const (
	rollLockKey = "horizon:roll"
	rollLockTTL = 10 * time.Minute
)

// Run 阻塞运行滚动循环直到 ctx 取消。启动时先跑一轮。
func Run(ctx context.Context) {
	log := logger.Named("horizon")

	interval := config.Cfg.GenerationInterval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	rollOnce(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Horizon scheduler stopped")
			return
		case <-ticker.C:
			rollOnce(ctx, log)
		}
	}
}

func rollOnce(ctx context.Context, log *zap.Logger) {
	acquired, err := cache.TryLock(ctx, rollLockKey, rollLockTTL)
	if err != nil {
		log.Error("Failed to acquire horizon roll lock",
			zap.Error(err),
		)
		return
	}
	if !acquired {
		log.Debug("Another instance is rolling the horizon, skipping")
		return
	}
	defer func() {
		if err := cache.Unlock(ctx, rollLockKey); err != nil {
			log.Warn("Failed to release horizon roll lock",
				zap.Error(err),
			)
		}
	}()

	now := time.Now()
	to := now.AddDate(0, 0, config.Cfg.HorizonDays)

	start := time.Now()
	inserted, err := service.Reminder().GenerateReminders(ctx, now, to)
	if err != nil {
		log.Error("Horizon roll failed",
			zap.Error(err),
		)
		return
	}

	log.Info("Horizon roll completed",
		zap.Int64("inserted", inserted),
		zap.Duration("took", time.Since(start)),
		zap.Time("horizon_end", to),
	)
}
