package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Routinely/internal/model"
	apperrors "Routinely/pkg/errors"
)

// ReminderRepo 提醒表访问层
// 状态只通过条件更新推进，保证并发竞争时有且只有一个赢家。
type ReminderRepo struct {
	db *gorm.DB
}

func NewReminderRepo(db *gorm.DB) *ReminderRepo {
	return &ReminderRepo{db: db}
}

// BatchUpsert 按 (routine_id, occurrence_at) 幂等写入，命中唯一索引的行静默跳过。
// 冲突键取不可变的原始发生时刻，已延后的行不会因 scheduled_for 改变而被重插。
// 返回实际插入的行数。
func (r *ReminderRepo) BatchUpsert(ctx context.Context, reminders []*model.Reminder) (int64, error) {
	if len(reminders) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "routine_id"}, {Name: "occurrence_at"}},
			DoNothing: true,
		}).
		Create(&reminders)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *ReminderRepo) GetByID(ctx context.Context, id int64) (*model.Reminder, error) {
	var reminder model.Reminder
	err := r.db.WithContext(ctx).First(&reminder, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ReminderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

func (r *ReminderRepo) GetByPublicID(ctx context.Context, publicID int64) (*model.Reminder, error) {
	var reminder model.Reminder
	err := r.db.WithContext(ctx).First(&reminder, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ReminderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// UpdateStatusIf 乐观状态迁移：只有当前状态仍是 expected 之一时才应用 updates。
// 返回是否真的更新了行；false 表示竞争对手先完成了迁移，调用方按无操作处理。
func (r *ReminderRepo) UpdateStatusIf(
	ctx context.Context,
	id int64,
	expected []model.ReminderStatus,
	updates map[string]interface{},
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// PostponeIf 带次数守卫的延后迁移：状态仍是 pending/sent 且延后计数未被
// 并发请求抢先递增时才生效。成功后提醒回到 pending，升级级别清零。
func (r *ReminderRepo) PostponeIf(ctx context.Context, id int64, expectedCount int, newTime time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("id = ? AND status IN ? AND postpone_count = ?", id,
			[]model.ReminderStatus{model.ReminderStatusPending, model.ReminderStatusSent},
			expectedCount).
		Updates(map[string]interface{}{
			"status":           model.ReminderStatusPending,
			"escalation_level": 0,
			"postpone_count":   expectedCount + 1,
			"scheduled_for":    newTime,
			"sent_at":          nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// EscalateIf 升级级别只向前推进且提醒必须仍处于 sent 状态
func (r *ReminderRepo) EscalateIf(ctx context.Context, id int64, level int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("id = ? AND status = ? AND escalation_level < ?",
			id, model.ReminderStatusSent, level).
		Update("escalation_level", level)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListActiveByRoutine 返回日程下所有未到终态的提醒，停用级联取消用
func (r *ReminderRepo) ListActiveByRoutine(ctx context.Context, routineID int64) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.db.WithContext(ctx).
		Where("routine_id = ? AND status IN ?", routineID,
			[]model.ReminderStatus{model.ReminderStatusPending, model.ReminderStatusSent}).
		Find(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

// ListByUser 按用户分页返回提醒，时间倒序
func (r *ReminderRepo) ListByUser(ctx context.Context, userID int64, status model.ReminderStatus, limit, offset int) ([]model.Reminder, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var reminders []model.Reminder
	err := query.
		Order("scheduled_for DESC").
		Limit(limit).
		Offset(offset).
		Find(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

// LastOccurrence 返回日程最近一次已生成提醒的原始发生时刻，滚动生成的起点
func (r *ReminderRepo) LastOccurrence(ctx context.Context, routineID int64) (*time.Time, error) {
	var reminder model.Reminder
	err := r.db.WithContext(ctx).
		Where("routine_id = ?", routineID).
		Order("occurrence_at DESC").
		First(&reminder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reminder.OccurrenceAt, nil
}
