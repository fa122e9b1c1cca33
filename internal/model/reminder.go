package model

import "time"

// ReminderStatus 提醒状态枚举
type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"   // 待投递（含延后重入）
	ReminderStatusSent      ReminderStatus = "sent"      // 已投递，等待用户动作或升级
	ReminderStatusCompleted ReminderStatus = "completed" // 终态
	ReminderStatusSkipped   ReminderStatus = "skipped"   // 终态（含自动跳过）
	ReminderStatusCancelled ReminderStatus = "cancelled" // 终态，日程停用时批量进入
)

// Terminal 判断是否终态：终态后不允许任何迁移，也不应再有排队任务
func (s ReminderStatus) Terminal() bool {
	switch s {
	case ReminderStatusCompleted, ReminderStatusSkipped, ReminderStatusCancelled:
		return true
	}
	return false
}

// ConfirmSource 终态确认来源
type ConfirmSource string

const (
	ConfirmSourceUser   ConfirmSource = "user"   // 用户主动操作（命令/按钮/API）
	ConfirmSourceSystem ConfirmSource = "system" // 自动跳过或日程停用
)

// Reminder 一次具体发生的提醒，调度器的核心实体
// (routine_id, occurrence_at) 唯一索引保证重复生成为无副作用 upsert。
// occurrence_at 是展开时定下的原始发生时刻，永不改写；
// scheduled_for 是当前投递目标，延后会改写它。
// 只通过条件更新变更状态，从不删除。
type Reminder struct {
	BaseModel
	PublicID  int64 `gorm:"uniqueIndex;not null" json:"public_id"`
	RoutineID int64 `gorm:"not null;uniqueIndex:uq_reminders_occurrence" json:"routine_id"`
	UserID    int64 `gorm:"not null;index:idx_reminders_user" json:"user_id"`

	OccurrenceAt time.Time `gorm:"type:timestamptz;not null;uniqueIndex:uq_reminders_occurrence" json:"occurrence_at"`
	ScheduledFor time.Time `gorm:"type:timestamptz;not null;index:idx_reminders_due" json:"scheduled_for"`

	Status          ReminderStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_reminders_due" json:"status"`
	EscalationLevel int            `gorm:"type:smallint;not null;default:0" json:"escalation_level"` // 0..3
	PostponeCount   int            `gorm:"type:smallint;not null;default:0" json:"postpone_count"`
	MaxPostpones    int            `gorm:"type:smallint;not null;default:2" json:"max_postpones"`

	SentAt        *time.Time    `gorm:"type:timestamptz" json:"sent_at,omitempty"`
	CompletedAt   *time.Time    `gorm:"type:timestamptz" json:"completed_at,omitempty"`
	ConfirmSource ConfirmSource `gorm:"type:varchar(16)" json:"confirm_source,omitempty"`
}

// TableName 指定表名
func (Reminder) TableName() string {
	return "reminders"
}

// PostponesRemaining 剩余可延后次数
func (r *Reminder) PostponesRemaining() int {
	left := r.MaxPostpones - r.PostponeCount
	if left < 0 {
		return 0
	}
	return left
}
