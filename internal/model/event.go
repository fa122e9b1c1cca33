package model

import "time"

// EventType 提醒事件类型枚举
type EventType string

const (
	EventTypeCompleted   EventType = "completed"
	EventTypeSkipped     EventType = "skipped"
	EventTypeAutoSkipped EventType = "auto_skipped"
	EventTypePostponed   EventType = "postponed"
	EventTypeCancelled   EventType = "cancelled"
)

// ReminderEvent 状态迁移流水，追加写、不可变
// 供下游的积分结算和连续打卡统计消费，调度器只写不读。
type ReminderEvent struct {
	BaseModel
	EventCode  int64     `gorm:"uniqueIndex;not null" json:"event_code"`
	ReminderID int64     `gorm:"not null;index:idx_reminder_events_reminder" json:"reminder_id"`
	RoutineID  int64     `gorm:"not null" json:"routine_id"`
	UserID     int64     `gorm:"not null;index:idx_reminder_events_user" json:"user_id"`
	Type       EventType `gorm:"type:varchar(16);not null" json:"type"`
	OccurredAt time.Time `gorm:"type:timestamptz;not null;default:now()" json:"occurred_at"`
	Detail     JSONB     `gorm:"type:jsonb" json:"detail,omitempty"`
}

// TableName 指定表名
func (ReminderEvent) TableName() string {
	return "reminder_events"
}
