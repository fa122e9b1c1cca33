package errors

import (
	"errors"
	"fmt"
)

// SkipMessageError 表示该消息应被确认并丢弃，不再重试。
// 典型场景：幂等性检查发现消息已处理、任务已被取消或提醒已进入终态。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return fmt.Sprintf("skip message: %s", e.Reason)
}

// IsSkipMessageError 判断错误链中是否存在 SkipMessageError。
func IsSkipMessageError(err error) bool {
	var skip *SkipMessageError
	return errors.As(err, &skip)
}

// NonRetryableError 表示配置类错误（非法 pattern、缺失模板等），重试不会成功。
type NonRetryableError struct {
	Code    string
	Message string
	Hint    string
}

func (e *NonRetryableError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewNonRetryableError(code, message, hint string) *NonRetryableError {
	return &NonRetryableError{Code: code, Message: message, Hint: hint}
}

// IsNonRetryableError 判断错误链中是否存在 NonRetryableError。
func IsNonRetryableError(err error) bool {
	var nr *NonRetryableError
	return errors.As(err, &nr)
}
