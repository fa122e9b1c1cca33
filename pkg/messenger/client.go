package messenger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client 外部消息通道能力：send(chatID, content) → 投递结果。
// content 对调度器不透明，模板渲染在上游完成。
type Client interface {
	Send(ctx context.Context, chatID int64, content string) error
}

// TransientError 可重试的投递失败（超时、限流、5xx）。
// RetryAfter 非零时表示对端建议的退避时长。
type TransientError struct {
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient delivery failure (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transient delivery failure (%s)", e.Reason)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient 判断错误是否可重试
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// PermanentError 不可重试的投递失败（对端拒收、聊天不存在等）
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent delivery failure (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("permanent delivery failure (%s)", e.Reason)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}
