package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"Routinely/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func errorToHTTPStatus(err error) int {
	var nr *errors.NonRetryableError
	if stderrors.As(err, &nr) {
		return http.StatusBadRequest
	}

	def, ok := err.(errors.Definition)
	if !ok {
		return http.StatusInternalServerError
	}

	// 根据错误码映射 HTTP 状态码
	switch def.Code {
	case "TOO_MANY_REQUESTS":
		return http.StatusTooManyRequests // 429
	case "REMINDER_NOT_FOUND", "ROUTINE_NOT_FOUND", "USER_NOT_FOUND":
		return http.StatusNotFound // 404
	case "REMINDER_ALREADY_TERMINAL", "POSTPONE_LIMIT_REACHED":
		return http.StatusConflict // 409，带类型化错误码，调用方据此渲染具体提示
	case "POSTPONE_MINUTES_INVALID", "INVALID_REQUEST", "ROUTINE_INACTIVE",
		"SCHEDULE_PATTERN_INVALID", "SCHEDULE_TIME_INVALID", "QUIET_WINDOW_INVALID":
		return http.StatusBadRequest // 400
	default:
		return http.StatusInternalServerError // 500
	}
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	statusCode := errorToHTTPStatus(err)

	code, message := errorCodeMessage(err)

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func errorCodeMessage(err error) (string, string) {
	if def, ok := err.(errors.Definition); ok {
		return def.Code, def.Message
	}
	var nr *errors.NonRetryableError
	if stderrors.As(err, &nr) {
		return nr.Code, nr.Message
	}
	return "INTERNAL_ERROR", err.Error()
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode := errorToHTTPStatus(err)

	code, message := errorCodeMessage(err)

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
