package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"Routinely/internal/model"
	"Routinely/internal/queue"
	"Routinely/internal/repository"
	"Routinely/internal/schedule"
	apperrors "Routinely/pkg/errors"
	"Routinely/pkg/logger"
	"Routinely/pkg/metrics"
	"Routinely/pkg/snowflake"
	"Routinely/storage/database"
)

// ReminderService 提醒生命周期状态机：
// pending → sent → {completed | skipped | cancelled}，postpone 在同一行上重入 pending。
// 所有迁移都走条件更新，并发竞争只有一个赢家，输家按 no-op 处理。
type ReminderService struct {
	reminders ReminderStore
	routines  RoutineStore
	users     UserStore
	events    EventStore
	jobs      JobQueue
	opts      Options
	now       func() time.Time
}

var (
	reminderService *ReminderService
	reminderOnce    sync.Once
)

func Reminder() *ReminderService {
	reminderOnce.Do(func() {
		db := database.DB()
		reminderService = NewReminderService(
			repository.NewReminderRepo(db),
			repository.NewRoutineRepo(db),
			repository.NewUserRepo(db),
			repository.NewEventRepo(db),
			queue.NewMQJobQueue(),
			OptionsFromConfig(),
			time.Now,
		)
	})
	return reminderService
}

// NewReminderService 依赖全部注入，测试用假实现直接构造
func NewReminderService(
	reminders ReminderStore,
	routines RoutineStore,
	users UserStore,
	events EventStore,
	jobs JobQueue,
	opts Options,
	now func() time.Time,
) *ReminderService {
	return &ReminderService{
		reminders: reminders,
		routines:  routines,
		users:     users,
		events:    events,
		jobs:      jobs,
		opts:      opts,
		now:       now,
	}
}

// Get 按对外 ID 查询提醒
func (s *ReminderService) Get(ctx context.Context, publicID int64) (*model.Reminder, error) {
	return s.reminders.GetByPublicID(ctx, publicID)
}

// ListByUser 查询用户的提醒
func (s *ReminderService) ListByUser(ctx context.Context, userPublicID int64, status model.ReminderStatus, limit, offset int) ([]model.Reminder, error) {
	user, err := s.users.GetByPublicID(ctx, userPublicID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.reminders.ListByUser(ctx, user.ID, status, limit, offset)
}

// Complete 用户确认完成。已到终态时返回 ReminderAlreadyTerminal。
func (s *ReminderService) Complete(ctx context.Context, publicID int64, source model.ConfirmSource) (*model.Reminder, error) {
	reminder, err := s.reminders.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if reminder.Status.Terminal() {
		return nil, apperrors.ReminderAlreadyTerminal
	}

	now := s.now()
	ok, err := s.reminders.UpdateStatusIf(ctx, reminder.ID,
		[]model.ReminderStatus{model.ReminderStatusPending, model.ReminderStatusSent},
		map[string]interface{}{
			"status":         model.ReminderStatusCompleted,
			"completed_at":   now,
			"confirm_source": source,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		// 另一个请求先到了终态
		return nil, apperrors.ReminderAlreadyTerminal
	}

	s.cancelOutstandingJobs(ctx, reminder)

	reminder.Status = model.ReminderStatusCompleted
	reminder.CompletedAt = &now
	reminder.ConfirmSource = source

	s.emitEvent(ctx, reminder, model.EventTypeCompleted, model.JSONB{
		"source":           string(source),
		"escalation_level": reminder.EscalationLevel,
	})

	logger.Logger.Info("Reminder completed",
		zap.Int64("reminder_id", reminder.ID),
		zap.String("source", string(source)),
	)
	return reminder, nil
}

// Skip 用户主动跳过本次提醒
func (s *ReminderService) Skip(ctx context.Context, publicID int64, source model.ConfirmSource) (*model.Reminder, error) {
	reminder, err := s.reminders.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if reminder.Status.Terminal() {
		return nil, apperrors.ReminderAlreadyTerminal
	}

	now := s.now()
	ok, err := s.reminders.UpdateStatusIf(ctx, reminder.ID,
		[]model.ReminderStatus{model.ReminderStatusPending, model.ReminderStatusSent},
		map[string]interface{}{
			"status":         model.ReminderStatusSkipped,
			"completed_at":   now,
			"confirm_source": source,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ReminderAlreadyTerminal
	}

	s.cancelOutstandingJobs(ctx, reminder)

	reminder.Status = model.ReminderStatusSkipped
	reminder.CompletedAt = &now
	reminder.ConfirmSource = source

	s.emitEvent(ctx, reminder, model.EventTypeSkipped, model.JSONB{
		"source": string(source),
	})

	logger.Logger.Info("Reminder skipped",
		zap.Int64("reminder_id", reminder.ID),
		zap.String("source", string(source)),
	)
	return reminder, nil
}

// Postpone 把提醒往后推。minutes 为 0 时用日程的默认延后时长。
// 新时间落在免打扰窗口内时顺延到窗口结束。
func (s *ReminderService) Postpone(ctx context.Context, publicID int64, minutes int) (*model.Reminder, error) {
	reminder, err := s.reminders.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if reminder.Status.Terminal() {
		return nil, apperrors.ReminderAlreadyTerminal
	}
	if reminder.PostponeCount >= reminder.MaxPostpones {
		return nil, apperrors.PostponeLimitReached
	}

	routine, err := s.routines.GetByID(ctx, reminder.RoutineID)
	if err != nil {
		return nil, err
	}
	if minutes == 0 {
		minutes = routine.PostponeMinutes
	}
	if minutes <= 0 {
		minutes = s.opts.DefaultPostponeMinutes
	}
	if minutes <= 0 {
		return nil, apperrors.PostponeMinutesInvalid
	}

	user, err := s.users.GetByID(ctx, reminder.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	newTime := now.Add(time.Duration(minutes) * time.Minute)
	newTime, deferred, err := s.applyQuietWindow(user, newTime)
	if err != nil {
		return nil, err
	}

	ok, err := s.reminders.PostponeIf(ctx, reminder.ID, reminder.PostponeCount, newTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 并发迁移抢先：重读后区分是到了终态还是额度被用完
		fresh, ferr := s.reminders.GetByID(ctx, reminder.ID)
		if ferr != nil {
			return nil, ferr
		}
		if fresh.Status.Terminal() {
			return nil, apperrors.ReminderAlreadyTerminal
		}
		return nil, apperrors.PostponeLimitReached
	}

	// 旧的升级链作废，重新排一个投递任务
	s.cancelOutstandingJobs(ctx, reminder)

	reminder.Status = model.ReminderStatusPending
	reminder.EscalationLevel = 0
	reminder.PostponeCount++
	reminder.ScheduledFor = newTime
	reminder.SentAt = nil

	if err := s.jobs.EnqueueDeliver(ctx, reminder, newTime.Sub(now)); err != nil {
		logger.Logger.Error("Failed to enqueue deliver job after postpone",
			zap.Int64("reminder_id", reminder.ID),
			zap.Error(err),
		)
	}

	s.emitEvent(ctx, reminder, model.EventTypePostponed, model.JSONB{
		"postpone_count": reminder.PostponeCount,
		"scheduled_for":  newTime.UTC().Format(time.RFC3339),
		"quiet_deferred": deferred,
	})
	metrics.RecordPostpone(string(routine.Category))

	logger.Logger.Info("Reminder postponed",
		zap.Int64("reminder_id", reminder.ID),
		zap.Int("postpone_count", reminder.PostponeCount),
		zap.Time("scheduled_for", newTime),
		zap.Bool("quiet_deferred", deferred),
	)
	return reminder, nil
}

// GenerateReminders 把所有启用日程在 [from, to] 内的发生物化成提醒行并排投递任务。
// (routine_id, occurrence_at) 唯一索引保证重复调用无副作用，返回本次新插入的行数。
func (s *ReminderService) GenerateReminders(ctx context.Context, from, to time.Time) (int64, error) {
	routines, err := s.routines.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	// 用药提醒优先物化排队，同一触发时刻先出队
	sort.SliceStable(routines, func(i, j int) bool {
		return routines[i].Category.Priority() < routines[j].Category.Priority()
	})

	now := s.now()
	var total int64

	for i := range routines {
		routine := &routines[i]

		inserted, err := s.generateForRoutine(ctx, routine, from, to, now)
		if err != nil {
			// 单个日程的坏配置不阻塞整轮生成
			logger.Logger.Warn("Failed to generate reminders for routine",
				zap.Int64("routine_id", routine.ID),
				zap.Error(err),
			)
			continue
		}
		total += inserted
	}

	if total > 0 {
		metrics.RecordRemindersGenerated(total)
	}
	logger.Logger.Info("Reminder generation finished",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int64("inserted", total),
	)
	return total, nil
}

func (s *ReminderService) generateForRoutine(ctx context.Context, routine *model.Routine, from, to, now time.Time) (int64, error) {
	user, err := s.users.GetByID(ctx, routine.UserID)
	if err != nil {
		return 0, err
	}

	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		logger.Logger.Warn("Invalid user timezone, falling back to UTC",
			zap.Int64("user_id", user.ID),
			zap.String("timezone", user.Timezone),
		)
		loc = time.UTC
	}

	schedules, err := s.routines.Schedules(ctx, routine.ID)
	if err != nil {
		return 0, err
	}

	var rows []*model.Reminder
	for i := range schedules {
		occurrences, err := schedule.Expand(&schedules[i], from, to, loc)
		if err != nil {
			return 0, err
		}

		for _, occ := range occurrences {
			if occ.At.Before(now) {
				continue
			}

			publicID, err := snowflake.NextID()
			if err != nil {
				return 0, err
			}
			rows = append(rows, &model.Reminder{
				PublicID:     publicID,
				RoutineID:    routine.ID,
				UserID:       routine.UserID,
				OccurrenceAt: occ.At,
				ScheduledFor: occ.At,
				Status:       model.ReminderStatusPending,
				MaxPostpones: routine.MaxPostpones,
			})
		}
	}

	inserted, err := s.reminders.BatchUpsert(ctx, rows)
	if err != nil {
		return 0, err
	}

	// 冲突跳过的行 ID 为零值，投递任务已在之前的轮次排过
	for _, row := range rows {
		if row.ID == 0 {
			continue
		}
		if err := s.jobs.EnqueueDeliver(ctx, row, row.ScheduledFor.Sub(now)); err != nil {
			logger.Logger.Error("Failed to enqueue deliver job for generated reminder",
				zap.Int64("reminder_id", row.ID),
				zap.Error(err),
			)
		}
	}
	return inserted, nil
}

// CancelActiveForRoutine 日程停用时级联取消未到终态的提醒
func (s *ReminderService) CancelActiveForRoutine(ctx context.Context, routineID int64) error {
	active, err := s.reminders.ListActiveByRoutine(ctx, routineID)
	if err != nil {
		return err
	}

	now := s.now()
	for i := range active {
		reminder := &active[i]

		ok, err := s.reminders.UpdateStatusIf(ctx, reminder.ID,
			[]model.ReminderStatus{model.ReminderStatusPending, model.ReminderStatusSent},
			map[string]interface{}{
				"status":         model.ReminderStatusCancelled,
				"completed_at":   now,
				"confirm_source": model.ConfirmSourceSystem,
			})
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		s.cancelOutstandingJobs(ctx, reminder)
		reminder.Status = model.ReminderStatusCancelled
		s.emitEvent(ctx, reminder, model.EventTypeCancelled, model.JSONB{
			"reason": "routine_deactivated",
		})
	}

	logger.Logger.Info("Cascade-cancelled reminders for deactivated routine",
		zap.Int64("routine_id", routineID),
		zap.Int("count", len(active)),
	)
	return nil
}

// Events 返回提醒的迁移历史
func (s *ReminderService) Events(ctx context.Context, publicID int64) ([]model.ReminderEvent, error) {
	reminder, err := s.reminders.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	return s.events.ListByReminder(ctx, reminder.ID)
}

// applyQuietWindow 时间点落在用户免打扰窗口内时顺延到窗口结束
func (s *ReminderService) applyQuietWindow(user *model.User, t time.Time) (time.Time, bool, error) {
	if !user.HasQuietWindow() {
		return t, false, nil
	}

	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)

	quiet, err := schedule.IsQuiet(local, user.QuietStart, user.QuietEnd)
	if err != nil {
		return t, false, apperrors.QuietWindowInvalid
	}
	if !quiet {
		return t, false, nil
	}

	eligible, err := schedule.NextEligible(local, user.QuietEnd)
	if err != nil {
		return t, false, apperrors.QuietWindowInvalid
	}
	metrics.RecordQuietDeferral()
	return eligible, true, nil
}

// cancelOutstandingJobs 给提醒的投递与升级任务全部打取消墓碑。
// 失败只记日志：漏掉的取消由状态守卫兜底，最坏是一次空跑。
func (s *ReminderService) cancelOutstandingJobs(ctx context.Context, reminder *model.Reminder) {
	if err := s.jobs.CancelDeliver(ctx, reminder.ID); err != nil {
		logger.Logger.Warn("Failed to cancel deliver job",
			zap.Int64("reminder_id", reminder.ID),
			zap.Error(err),
		)
	}
	if err := s.jobs.CancelEscalations(ctx, reminder.ID); err != nil {
		logger.Logger.Warn("Failed to cancel escalation jobs",
			zap.Int64("reminder_id", reminder.ID),
			zap.Error(err),
		)
	}
}

// emitEvent 写入事件流水并发布到事件总线。
// 流水写入失败不回滚状态迁移，事件以状态行为准补偿。
func (s *ReminderService) emitEvent(ctx context.Context, reminder *model.Reminder, typ model.EventType, detail model.JSONB) {
	code, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to generate event code",
			zap.Int64("reminder_id", reminder.ID),
			zap.Error(err),
		)
		return
	}

	event := &model.ReminderEvent{
		EventCode:  code,
		ReminderID: reminder.ID,
		RoutineID:  reminder.RoutineID,
		UserID:     reminder.UserID,
		Type:       typ,
		OccurredAt: s.now(),
		Detail:     detail,
	}

	inserted, err := s.events.Append(ctx, event)
	if err != nil {
		logger.Logger.Error("Failed to append reminder event",
			zap.Int64("reminder_id", reminder.ID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return
	}
	if inserted {
		s.jobs.PublishEvent(event)
	}
}
