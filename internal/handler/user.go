package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"Routinely/internal/service"
	"Routinely/pkg/response"
)

// RegisterUserRequest 注册请求体
type RegisterUserRequest struct {
	ChatID     int64  `json:"chat_id"`
	Timezone   string `json:"timezone,omitempty"`
	QuietStart string `json:"quiet_start,omitempty"`
	QuietEnd   string `json:"quiet_end,omitempty"`
}

// RegisterUser 注册用户，chat 已存在时幂等返回已有用户
func RegisterUser(ctx context.Context, c *app.RequestContext) {
	var req RegisterUserRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	user, err := service.User().Register(ctx, req.ChatID, req.Timezone, req.QuietStart, req.QuietEnd)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, user)
}

// GetUser 查询用户
func GetUser(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "user_id")
	if !ok {
		return
	}

	user, err := service.User().Get(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, user)
}

// QuietWindowRequest 免打扰窗口更新请求体，两个值都为空表示关闭窗口
type QuietWindowRequest struct {
	QuietStart string `json:"quiet_start"`
	QuietEnd   string `json:"quiet_end"`
}

// UpdateQuietWindow 更新用户免打扰窗口
func UpdateQuietWindow(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "user_id")
	if !ok {
		return
	}

	var req QuietWindowRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	user, err := service.User().UpdateQuietWindow(ctx, id, req.QuietStart, req.QuietEnd)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, user)
}
