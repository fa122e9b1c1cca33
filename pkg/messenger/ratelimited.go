package messenger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"Routinely/pkg/logger"
)

// RateLimitedClient 在底层通道外套一层全局令牌桶与在途并发上限，
// 并对瞬态失败做指数退避重试。所有投递路径共享同一个实例。
type RateLimitedClient struct {
	inner      Client
	limiter    *rate.Limiter
	inflight   chan struct{}
	maxRetries int
	retryBase  time.Duration
	timeout    time.Duration
}

type RateLimitedOptions struct {
	RatePerSec  float64
	MaxInFlight int
	MaxRetries  int
	RetryBase   time.Duration
	Timeout     time.Duration
}

func NewRateLimitedClient(inner Client, opts RateLimitedOptions) *RateLimitedClient {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &RateLimitedClient{
		inner:      inner,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		inflight:   make(chan struct{}, opts.MaxInFlight),
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		timeout:    opts.Timeout,
	}
}

// Send 按 令牌 → 并发额度 → 单次超时 的顺序申请资源后投递。
// 瞬态失败最多重试 maxRetries 次，退避 base*2^attempt，
// 对端给出 RetryAfter 时优先遵从。永久失败立即返回。
func (c *RateLimitedClient) Send(ctx context.Context, chatID int64, content string) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBase << (attempt - 1)
			var t *TransientError
			if errors.As(lastErr, &t) && t.RetryAfter > backoff {
				backoff = t.RetryAfter
			}
			if logger.Logger != nil {
				logger.Logger.Warn("Delivery retry scheduled",
					zap.Int64("chat_id", chatID),
					zap.Int("attempt", attempt),
					zap.Duration("backoff", backoff),
					zap.Error(lastErr),
				)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.sendOnce(ctx, chatID, content)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *RateLimitedClient) sendOnce(ctx context.Context, chatID int64, content string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	select {
	case c.inflight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.inflight }()

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.inner.Send(attemptCtx, chatID, content)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		// 单次超时算瞬态失败，交给上层重试
		return &TransientError{Reason: "attempt timeout", Err: err}
	}
	return err
}
