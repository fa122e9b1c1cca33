package model

import "time"

// RoutineCategory 日程类别枚举
type RoutineCategory string

const (
	RoutineCategoryHabit      RoutineCategory = "habit"
	RoutineCategoryMedication RoutineCategory = "medication"
	RoutineCategoryTask       RoutineCategory = "task"
)

// Priority 投递排序优先级，用药提醒高于习惯和任务
func (c RoutineCategory) Priority() int {
	if c == RoutineCategoryMedication {
		return 0
	}
	return 1
}

func (c RoutineCategory) Valid() bool {
	switch c {
	case RoutineCategoryHabit, RoutineCategoryMedication, RoutineCategoryTask:
		return true
	}
	return false
}

// Routine 用户的周期性意图（习惯/用药/任务）
// 通过 Active 软删除，历史提醒记录不清除。
type Routine struct {
	BaseModel
	PublicID        int64           `gorm:"uniqueIndex;not null" json:"public_id"`
	UserID          int64           `gorm:"not null;index:idx_routines_user" json:"user_id"`
	Category        RoutineCategory `gorm:"type:varchar(16);not null" json:"category"`
	Title           string          `gorm:"type:varchar(128);not null" json:"title"`
	Icon            string          `gorm:"type:varchar(16)" json:"icon,omitempty"`
	Active          bool            `gorm:"not null;default:true;index:idx_routines_user" json:"active"`
	GraceMinutes    int             `gorm:"not null;default:120" json:"grace_minutes"` // 超过计划时间这么久仍未投递则作废
	MaxPostpones    int             `gorm:"not null;default:2" json:"max_postpones"`
	PostponeMinutes int             `gorm:"not null;default:15" json:"postpone_minutes"`
}

// TableName 指定表名
func (Routine) TableName() string {
	return "routines"
}

// SchedulePattern 重复模式枚举
type SchedulePattern string

const (
	SchedulePatternDaily        SchedulePattern = "daily"         // 每天同一时间
	SchedulePatternWeekdaySplit SchedulePattern = "weekday_split" // 工作日/周末两个时间
	SchedulePatternWeekdaySet   SchedulePattern = "weekday_set"   // 指定星期集合
)

func (p SchedulePattern) Valid() bool {
	switch p {
	case SchedulePatternDaily, SchedulePatternWeekdaySplit, SchedulePatternWeekdaySet:
		return true
	}
	return false
}

// Schedule 挂在 Routine 上的重复定义
// 一旦针对某日期生成过提醒即视为对该日期不可变，修改只影响未来的展开。
type Schedule struct {
	BaseModel
	RoutineID int64           `gorm:"not null;index:idx_schedules_routine" json:"routine_id"`
	Pattern   SchedulePattern `gorm:"type:varchar(16);not null" json:"pattern"`

	// TimeOfDay 主时间值 "HH:MM"：daily 和 weekday_set 使用；weekday_split 作为工作日时间
	TimeOfDay string `gorm:"type:varchar(8);not null" json:"time_of_day"`
	// WeekendTime 仅 weekday_split 使用，周六/周日的时间值
	WeekendTime string `gorm:"type:varchar(8)" json:"weekend_time,omitempty"`
	// Weekdays 仅 weekday_set 使用，逗号分隔的 1..7（1=周一）
	Weekdays string `gorm:"type:varchar(16)" json:"weekdays,omitempty"`

	EndDate *time.Time `gorm:"type:date" json:"end_date,omitempty"`
}

// TableName 指定表名
func (Schedule) TableName() string {
	return "schedules"
}
