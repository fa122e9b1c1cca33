package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Routinely/internal/model"
)

// EventRepo 提醒事件流水访问层，追加写、不可变
type EventRepo struct {
	db *gorm.DB
}

func NewEventRepo(db *gorm.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Append 追加一条事件。event_code 唯一索引保证重复追加无副作用，
// 返回本次是否真的写入了新行。
func (r *EventRepo) Append(ctx context.Context, event *model.ReminderEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_code"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByReminder 按提醒返回事件历史，时间正序
func (r *EventRepo) ListByReminder(ctx context.Context, reminderID int64) ([]model.ReminderEvent, error) {
	var events []model.ReminderEvent
	err := r.db.WithContext(ctx).
		Where("reminder_id = ?", reminderID).
		Order("occurred_at").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
