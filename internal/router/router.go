package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"Routinely/internal/handler"
	"Routinely/internal/middleware"
)

func Register(h *server.Hertz) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.MetricsMiddleware())
	h.Use(middleware.RateLimitMiddleware())

	h.GET("/healthz", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(200, map[string]string{"status": "ok"})
	})

	v1 := h.Group("/v1")

	// 用户相关路由
	users := v1.Group("/users")
	{
		users.POST("", handler.RegisterUser)
		users.GET("/:user_id", handler.GetUser)
		users.PUT("/:user_id/quiet-window", handler.UpdateQuietWindow)
		users.GET("/:user_id/routines", handler.ListRoutines)
		users.GET("/:user_id/reminders", handler.ListReminders)
	}

	// 日程相关路由
	routines := v1.Group("/routines")
	{
		routines.POST("", handler.CreateRoutine)
		routines.GET("/:routine_id", handler.GetRoutine)
		routines.POST("/:routine_id/schedules", handler.AddSchedule)
		routines.POST("/:routine_id/generate", handler.GenerateRoutineReminders)
		routines.POST("/:routine_id/deactivate", handler.DeactivateRoutine)
	}

	// 提醒生命周期路由
	reminders := v1.Group("/reminders")
	{
		reminders.GET("/:reminder_id", handler.GetReminder)
		reminders.GET("/:reminder_id/events", handler.GetReminderEvents)
		reminders.POST("/:reminder_id/complete", handler.CompleteReminder)
		reminders.POST("/:reminder_id/skip", handler.SkipReminder)
		reminders.POST("/:reminder_id/postpone", handler.PostponeReminder)
	}

	// Telegram webhook
	v1.POST("/webhook/telegram", handler.TelegramWebhook)
}
