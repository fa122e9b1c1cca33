package service

import (
	"context"
	"time"

	"Routinely/config"
	"Routinely/internal/model"
)

// 服务层通过这组窄接口访问存储、任务队列和消息通道，
// 测试时可以整体替换，不需要起 Postgres/Redis/RabbitMQ。

type ReminderStore interface {
	BatchUpsert(ctx context.Context, reminders []*model.Reminder) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Reminder, error)
	GetByPublicID(ctx context.Context, publicID int64) (*model.Reminder, error)
	UpdateStatusIf(ctx context.Context, id int64, expected []model.ReminderStatus, updates map[string]interface{}) (bool, error)
	PostponeIf(ctx context.Context, id int64, expectedCount int, newTime time.Time) (bool, error)
	EscalateIf(ctx context.Context, id int64, level int) (bool, error)
	ListActiveByRoutine(ctx context.Context, routineID int64) ([]model.Reminder, error)
	ListByUser(ctx context.Context, userID int64, status model.ReminderStatus, limit, offset int) ([]model.Reminder, error)
	LastOccurrence(ctx context.Context, routineID int64) (*time.Time, error)
}

type RoutineStore interface {
	Create(ctx context.Context, routine *model.Routine, schedules []*model.Schedule) error
	GetByID(ctx context.Context, id int64) (*model.Routine, error)
	GetByPublicID(ctx context.Context, publicID int64) (*model.Routine, error)
	ListActive(ctx context.Context) ([]model.Routine, error)
	ListByUser(ctx context.Context, userID int64, includeInactive bool) ([]model.Routine, error)
	Schedules(ctx context.Context, routineID int64) ([]model.Schedule, error)
	AddSchedule(ctx context.Context, schedule *model.Schedule) error
	Deactivate(ctx context.Context, id int64) (bool, error)
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByPublicID(ctx context.Context, publicID int64) (*model.User, error)
	GetByChatID(ctx context.Context, chatID int64) (*model.User, error)
	UpdateQuietWindow(ctx context.Context, id int64, start, end string) error
}

type EventStore interface {
	Append(ctx context.Context, event *model.ReminderEvent) (bool, error)
	ListByReminder(ctx context.Context, reminderID int64) ([]model.ReminderEvent, error)
}

// JobQueue 延迟任务队列的写端。
// 取消是尽力而为的墓碑语义，漏取消由状态守卫兜底。
type JobQueue interface {
	EnqueueDeliver(ctx context.Context, reminder *model.Reminder, delay time.Duration) error
	EnqueueEscalate(ctx context.Context, reminder *model.Reminder, level int, delay time.Duration) error
	CancelDeliver(ctx context.Context, reminderID int64) error
	CancelEscalations(ctx context.Context, reminderID int64) error
	IsCancelled(ctx context.Context, jobKey string) (bool, error)
	PublishEvent(event *model.ReminderEvent)
}

// Messenger 消息投递通道
type Messenger interface {
	Send(ctx context.Context, chatID int64, content string) error
}

// DeliveryLimiter 单用户每日触达上限，计数失败时放行
type DeliveryLimiter interface {
	CheckDailyCap(ctx context.Context, userID int64) (allowed bool, count int, err error)
	Increment(ctx context.Context, userID int64) error
}

// Options 调度参数快照，从 config 取默认值，测试时直接构造
type Options struct {
	EscalationLevel1 time.Duration // 距投递成功的偏移
	EscalationLevel2 time.Duration
	AutoSkipOffset   time.Duration

	DefaultMaxPostpones    int
	DefaultPostponeMinutes int
	HorizonDays            int
	DailyReminderCap       int

	DefaultQuietStart string
	DefaultQuietEnd   string
}

// OptionsFromConfig 读取全局配置生成调度参数
func OptionsFromConfig() Options {
	return Options{
		EscalationLevel1:       config.Cfg.EscalationLevel1,
		EscalationLevel2:       config.Cfg.EscalationLevel2,
		AutoSkipOffset:         config.Cfg.AutoSkipOffset,
		DefaultMaxPostpones:    config.Cfg.DefaultMaxPostpones,
		DefaultPostponeMinutes: config.Cfg.DefaultPostponeMins,
		HorizonDays:            config.Cfg.HorizonDays,
		DailyReminderCap:       config.Cfg.DailyReminderCap,
		DefaultQuietStart:      config.Cfg.DefaultQuietStart,
		DefaultQuietEnd:        config.Cfg.DefaultQuietEnd,
	}
}
