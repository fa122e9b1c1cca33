package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"Routinely/internal/model"
	"Routinely/internal/service"
	apperrors "Routinely/pkg/errors"
	"Routinely/pkg/response"
)

// GetReminder 查询提醒详情
func GetReminder(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "reminder_id")
	if !ok {
		return
	}

	reminder, err := service.Reminder().Get(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, reminder)
}

// ListReminders 查询用户的提醒，支持状态过滤与分页
func ListReminders(ctx context.Context, c *app.RequestContext) {
	userID, ok := pathID(ctx, c, "user_id")
	if !ok {
		return
	}

	status := model.ReminderStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	reminders, err := service.Reminder().ListByUser(ctx, userID, status, limit, offset)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, reminders, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
		"count":  len(reminders),
	})
}

// CompleteReminder 用户确认完成
func CompleteReminder(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "reminder_id")
	if !ok {
		return
	}

	reminder, err := service.Reminder().Complete(ctx, id, model.ConfirmSourceUser)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, reminder)
}

// SkipReminder 用户跳过本次提醒
func SkipReminder(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "reminder_id")
	if !ok {
		return
	}

	reminder, err := service.Reminder().Skip(ctx, id, model.ConfirmSourceUser)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, reminder)
}

// PostponeRequest 延后请求体，minutes 为 0 时用日程默认值
type PostponeRequest struct {
	Minutes int `json:"minutes"`
}

// PostponeReminder 延后提醒
func PostponeReminder(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "reminder_id")
	if !ok {
		return
	}

	var req PostponeRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.Minutes < 0 {
		response.Error(ctx, c, apperrors.PostponeMinutesInvalid)
		return
	}

	reminder, err := service.Reminder().Postpone(ctx, id, req.Minutes)
	if err != nil {
		if err == apperrors.PostponeLimitReached {
			response.ErrorWithDetails(ctx, c, err, map[string]interface{}{
				"postpones_remaining": 0,
			})
			return
		}
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, reminder, map[string]interface{}{
		"postpones_remaining": reminder.PostponesRemaining(),
	})
}

// GetReminderEvents 查询提醒的迁移历史
func GetReminderEvents(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "reminder_id")
	if !ok {
		return
	}

	events, err := service.Reminder().Events(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, events)
}

// pathID 解析路径上的数字 ID，非法时直接回 400
func pathID(ctx context.Context, c *app.RequestContext, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Error(ctx, c, apperrors.InvalidRequest)
		return 0, false
	}
	return id, true
}
