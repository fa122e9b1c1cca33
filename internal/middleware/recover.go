package middleware

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"Routinely/config"
	"Routinely/pkg/errors"
	"Routinely/pkg/logger"
	"Routinely/pkg/response"
)

// RecoverMiddleware 捕获 handler panic，记录带请求上下文的日志并返回 500。
// 生产环境不向客户端暴露 panic 详情。
func RecoverMiddleware() app.HandlerFunc {
	isProduction := config.Cfg.IsProduction()

	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, isProduction)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, isProduction bool) {
	stack := callerStack()

	logger.Logger.Error("[PANIC RECOVERED]",
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.ByteString("stack", stack),
	)

	errDef := errors.Definition{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "服务器内部错误，请稍后重试",
	}

	if isProduction {
		response.Error(ctx, c, errDef)
		return
	}

	errDef.Message = fmt.Sprintf("Internal error: %v", err)
	response.ErrorWithDetails(ctx, c, errDef, map[string]interface{}{
		"panic":     fmt.Sprintf("%v", err),
		"stack":     string(stack),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// callerStack 当前 goroutine 的调用栈，跳过 recover 自身的帧
func callerStack() []byte {
	var buf bytes.Buffer
	for i := 3; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		buf.WriteString(fmt.Sprintf("  %s:%d\n    %s\n", file, line, fn.Name()))
	}
	return buf.Bytes()
}
