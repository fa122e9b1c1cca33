package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"Routinely/internal/model"
	"Routinely/internal/service"
	apperrors "Routinely/pkg/errors"
	"Routinely/pkg/response"
)

// ScheduleRequest 一条重复定义
type ScheduleRequest struct {
	Pattern     string `json:"pattern"`
	TimeOfDay   string `json:"time_of_day"`
	WeekendTime string `json:"weekend_time,omitempty"`
	Weekdays    string `json:"weekdays,omitempty"`
	EndDate     string `json:"end_date,omitempty"` // "2006-01-02"
}

// CreateRoutineRequest 新建日程请求体
type CreateRoutineRequest struct {
	UserID          int64             `json:"user_id"`
	Category        string            `json:"category"`
	Title           string            `json:"title"`
	Icon            string            `json:"icon,omitempty"`
	GraceMinutes    int               `json:"grace_minutes,omitempty"`
	MaxPostpones    int               `json:"max_postpones,omitempty"`
	PostponeMinutes int               `json:"postpone_minutes,omitempty"`
	Schedules       []ScheduleRequest `json:"schedules"`
}

// CreateRoutine 新建日程，立即生成视野内的提醒
func CreateRoutine(ctx context.Context, c *app.RequestContext) {
	var req CreateRoutineRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	input := service.CreateRoutineInput{
		UserPublicID:    req.UserID,
		Category:        model.RoutineCategory(req.Category),
		Title:           req.Title,
		Icon:            req.Icon,
		GraceMinutes:    req.GraceMinutes,
		MaxPostpones:    req.MaxPostpones,
		PostponeMinutes: req.PostponeMinutes,
	}
	for _, s := range req.Schedules {
		in, err := toScheduleInput(s)
		if err != nil {
			response.Error(ctx, c, err)
			return
		}
		input.Schedules = append(input.Schedules, in)
	}

	routine, err := service.Routine().Create(ctx, input)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, routine)
}

// GetRoutine 查询日程及其重复定义
func GetRoutine(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "routine_id")
	if !ok {
		return
	}

	routine, schedules, err := service.Routine().Get(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]interface{}{
		"routine":   routine,
		"schedules": schedules,
	})
}

// ListRoutines 查询用户的日程
func ListRoutines(ctx context.Context, c *app.RequestContext) {
	userID, ok := pathID(ctx, c, "user_id")
	if !ok {
		return
	}

	includeInactive := c.Query("include_inactive") == "true"
	routines, err := service.Routine().ListByUser(ctx, userID, includeInactive)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, routines)
}

// AddSchedule 给日程追加重复定义
func AddSchedule(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "routine_id")
	if !ok {
		return
	}

	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	input, err := toScheduleInput(req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	schedule, err := service.Routine().AddSchedule(ctx, id, input)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, schedule)
}

// GenerateRoutineReminders 手动触发一次视野内的提醒生成，幂等
func GenerateRoutineReminders(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "routine_id")
	if !ok {
		return
	}

	inserted, err := service.Routine().Generate(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]interface{}{
		"inserted": inserted,
	})
}

// DeactivateRoutine 停用日程并级联取消未到终态的提醒，幂等
func DeactivateRoutine(ctx context.Context, c *app.RequestContext) {
	id, ok := pathID(ctx, c, "routine_id")
	if !ok {
		return
	}

	if err := service.Routine().Deactivate(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}

func toScheduleInput(req ScheduleRequest) (service.ScheduleInput, error) {
	input := service.ScheduleInput{
		Pattern:     model.SchedulePattern(req.Pattern),
		TimeOfDay:   req.TimeOfDay,
		WeekendTime: req.WeekendTime,
		Weekdays:    req.Weekdays,
	}
	if req.EndDate != "" {
		endDate, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return input, apperrors.InvalidRequest
		}
		input.EndDate = &endDate
	}
	return input, nil
}
