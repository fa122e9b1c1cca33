package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"Routinely/config"
	"Routinely/internal/model"
	"Routinely/internal/repository"
	"Routinely/internal/schedule"
	apperrors "Routinely/pkg/errors"
	"Routinely/pkg/logger"
	"Routinely/pkg/snowflake"
	"Routinely/storage/database"
)

// RoutineService 日程的增删查与停用级联
type RoutineService struct {
	routines  RoutineStore
	users     UserStore
	lifecycle *ReminderService
	now       func() time.Time
}

var (
	routineService *RoutineService
	routineOnce    sync.Once
)

func Routine() *RoutineService {
	routineOnce.Do(func() {
		db := database.DB()
		routineService = NewRoutineService(
			repository.NewRoutineRepo(db),
			repository.NewUserRepo(db),
			Reminder(),
			time.Now,
		)
	})
	return routineService
}

func NewRoutineService(routines RoutineStore, users UserStore, lifecycle *ReminderService, now func() time.Time) *RoutineService {
	return &RoutineService{
		routines:  routines,
		users:     users,
		lifecycle: lifecycle,
		now:       now,
	}
}

// ScheduleInput 一条重复定义
type ScheduleInput struct {
	Pattern     model.SchedulePattern
	TimeOfDay   string
	WeekendTime string
	Weekdays    string
	EndDate     *time.Time
}

// CreateRoutineInput 新建日程
type CreateRoutineInput struct {
	UserPublicID    int64
	Category        model.RoutineCategory
	Title           string
	Icon            string
	GraceMinutes    int
	MaxPostpones    int
	PostponeMinutes int
	Schedules       []ScheduleInput
}

// Create 新建日程并立即物化生成视野内的提醒
func (s *RoutineService) Create(ctx context.Context, input CreateRoutineInput) (*model.Routine, error) {
	if !input.Category.Valid() || input.Title == "" || len(input.Schedules) == 0 {
		return nil, apperrors.InvalidRequest
	}

	user, err := s.users.GetByPublicID(ctx, input.UserPublicID)
	if err != nil {
		return nil, err
	}

	publicID, err := snowflake.NextID()
	if err != nil {
		return nil, err
	}

	routine := &model.Routine{
		PublicID:        publicID,
		UserID:          user.ID,
		Category:        input.Category,
		Title:           input.Title,
		Icon:            input.Icon,
		Active:          true,
		GraceMinutes:    input.GraceMinutes,
		MaxPostpones:    input.MaxPostpones,
		PostponeMinutes: input.PostponeMinutes,
	}
	if routine.GraceMinutes <= 0 {
		routine.GraceMinutes = 120
	}
	if routine.MaxPostpones < 0 {
		routine.MaxPostpones = 0
	}
	if routine.MaxPostpones == 0 {
		routine.MaxPostpones = config.Cfg.DefaultMaxPostpones
	}
	if routine.PostponeMinutes <= 0 {
		routine.PostponeMinutes = config.Cfg.DefaultPostponeMins
	}

	schedules := make([]*model.Schedule, 0, len(input.Schedules))
	for _, in := range input.Schedules {
		sc := &model.Schedule{
			Pattern:     in.Pattern,
			TimeOfDay:   in.TimeOfDay,
			WeekendTime: in.WeekendTime,
			Weekdays:    in.Weekdays,
			EndDate:     in.EndDate,
		}
		if err := validateSchedule(sc); err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}

	if err := s.routines.Create(ctx, routine, schedules); err != nil {
		return nil, err
	}

	// 不等下一轮滚动，视野内的提醒立即生成
	now := s.now()
	horizon := now.AddDate(0, 0, s.lifecycle.opts.HorizonDays)
	if _, err := s.lifecycle.generateForRoutine(ctx, routine, now, horizon, now); err != nil {
		logger.Logger.Warn("Failed to generate initial reminders for new routine",
			zap.Int64("routine_id", routine.ID),
			zap.Error(err),
		)
	}

	logger.Logger.Info("Routine created",
		zap.Int64("routine_id", routine.ID),
		zap.String("category", string(routine.Category)),
		zap.Int("schedules", len(schedules)),
	)
	return routine, nil
}

func (s *RoutineService) Get(ctx context.Context, publicID int64) (*model.Routine, []model.Schedule, error) {
	routine, err := s.routines.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, nil, err
	}
	schedules, err := s.routines.Schedules(ctx, routine.ID)
	if err != nil {
		return nil, nil, err
	}
	return routine, schedules, nil
}

func (s *RoutineService) ListByUser(ctx context.Context, userPublicID int64, includeInactive bool) ([]model.Routine, error) {
	user, err := s.users.GetByPublicID(ctx, userPublicID)
	if err != nil {
		return nil, err
	}
	return s.routines.ListByUser(ctx, user.ID, includeInactive)
}

// AddSchedule 给日程追加重复定义并补生成视野内的提醒
func (s *RoutineService) AddSchedule(ctx context.Context, routinePublicID int64, input ScheduleInput) (*model.Schedule, error) {
	routine, err := s.routines.GetByPublicID(ctx, routinePublicID)
	if err != nil {
		return nil, err
	}
	if !routine.Active {
		return nil, apperrors.RoutineInactive
	}

	sc := &model.Schedule{
		RoutineID:   routine.ID,
		Pattern:     input.Pattern,
		TimeOfDay:   input.TimeOfDay,
		WeekendTime: input.WeekendTime,
		Weekdays:    input.Weekdays,
		EndDate:     input.EndDate,
	}
	if err := validateSchedule(sc); err != nil {
		return nil, err
	}

	if err := s.routines.AddSchedule(ctx, sc); err != nil {
		return nil, err
	}

	now := s.now()
	horizon := now.AddDate(0, 0, s.lifecycle.opts.HorizonDays)
	if _, err := s.lifecycle.generateForRoutine(ctx, routine, now, horizon, now); err != nil {
		logger.Logger.Warn("Failed to generate reminders for new schedule",
			zap.Int64("routine_id", routine.ID),
			zap.Error(err),
		)
	}
	return sc, nil
}

// Generate 手动触发一次视野内的提醒物化，返回新插入的行数。
// 与滚动生成共用同一条 upsert 路径，重复触发无副作用。
func (s *RoutineService) Generate(ctx context.Context, publicID int64) (int64, error) {
	routine, err := s.routines.GetByPublicID(ctx, publicID)
	if err != nil {
		return 0, err
	}
	if !routine.Active {
		return 0, apperrors.RoutineInactive
	}

	now := s.now()
	horizon := now.AddDate(0, 0, s.lifecycle.opts.HorizonDays)
	return s.lifecycle.generateForRoutine(ctx, routine, now, horizon, now)
}

// Deactivate 停用日程并级联取消未到终态的提醒。重复停用是幂等 no-op。
func (s *RoutineService) Deactivate(ctx context.Context, publicID int64) error {
	routine, err := s.routines.GetByPublicID(ctx, publicID)
	if err != nil {
		return err
	}

	ok, err := s.routines.Deactivate(ctx, routine.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	return s.lifecycle.CancelActiveForRoutine(ctx, routine.ID)
}

// validateSchedule 干跑一次展开，把坏配置挡在写库之前
func validateSchedule(sc *model.Schedule) error {
	probe := time.Now().UTC()
	_, err := schedule.Expand(sc, probe, probe.AddDate(0, 0, 7), time.UTC)
	return err
}
