package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"Routinely/internal/model"
	apperrors "Routinely/pkg/errors"
)

// RoutineRepo 日程与重复定义访问层
type RoutineRepo struct {
	db *gorm.DB
}

func NewRoutineRepo(db *gorm.DB) *RoutineRepo {
	return &RoutineRepo{db: db}
}

// Create 在同一事务里写入日程及其全部重复定义
func (r *RoutineRepo) Create(ctx context.Context, routine *model.Routine, schedules []*model.Schedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(routine).Error; err != nil {
			return err
		}
		for _, s := range schedules {
			s.RoutineID = routine.ID
		}
		if len(schedules) > 0 {
			if err := tx.Create(&schedules).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *RoutineRepo) GetByID(ctx context.Context, id int64) (*model.Routine, error) {
	var routine model.Routine
	err := r.db.WithContext(ctx).First(&routine, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.RoutineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &routine, nil
}

func (r *RoutineRepo) GetByPublicID(ctx context.Context, publicID int64) (*model.Routine, error) {
	var routine model.Routine
	err := r.db.WithContext(ctx).First(&routine, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.RoutineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &routine, nil
}

// ListActive 返回全部启用中的日程，滚动生成的扫描入口
func (r *RoutineRepo) ListActive(ctx context.Context) ([]model.Routine, error) {
	var routines []model.Routine
	err := r.db.WithContext(ctx).
		Where("active = true").
		Find(&routines).Error
	if err != nil {
		return nil, err
	}
	return routines, nil
}

// ListByUser 返回用户的日程，默认只含启用中的
func (r *RoutineRepo) ListByUser(ctx context.Context, userID int64, includeInactive bool) ([]model.Routine, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeInactive {
		query = query.Where("active = true")
	}

	var routines []model.Routine
	if err := query.Order("id").Find(&routines).Error; err != nil {
		return nil, err
	}
	return routines, nil
}

// Schedules 返回日程的全部重复定义
func (r *RoutineRepo) Schedules(ctx context.Context, routineID int64) ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := r.db.WithContext(ctx).
		Where("routine_id = ?", routineID).
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

// AddSchedule 给已有日程追加一条重复定义
func (r *RoutineRepo) AddSchedule(ctx context.Context, schedule *model.Schedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

// Deactivate 停用日程，幂等：已停用时返回 false
func (r *RoutineRepo) Deactivate(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Routine{}).
		Where("id = ? AND active = true", id).
		Update("active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
