package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"Routinely/internal/cache"
	"Routinely/internal/content"
	"Routinely/internal/model"
	"Routinely/internal/schedule"
	apperrors "Routinely/pkg/errors"
	"Routinely/pkg/logger"
	"Routinely/pkg/messenger"
	"Routinely/pkg/metrics"
)

// DeliveryService 延迟任务触发后的 worker 侧处理：
// 投递首条提醒、发送升级消息、到点自动跳过。
// 每一步处理前先查取消墓碑，再用状态守卫做最终裁决。
type DeliveryService struct {
	svc       *ReminderService
	messenger Messenger
	content   content.Provider
	limiter   DeliveryLimiter
}

var (
	deliveryService *DeliveryService
	deliveryOnce    sync.Once
)

func Delivery() *DeliveryService {
	deliveryOnce.Do(func() {
		deliveryService = NewDeliveryService(
			Reminder(),
			defaultMessenger(),
			content.NewStaticProvider(),
			redisDeliveryLimiter{},
		)
	})
	return deliveryService
}

func NewDeliveryService(svc *ReminderService, m Messenger, provider content.Provider, limiter DeliveryLimiter) *DeliveryService {
	return &DeliveryService{
		svc:       svc,
		messenger: m,
		content:   provider,
		limiter:   limiter,
	}
}

// Notify 直接向聊天发送一条即时消息（webhook 回执等），走同一条限速通道
func (d *DeliveryService) Notify(ctx context.Context, chatID int64, text string) error {
	return d.messenger.Send(ctx, chatID, text)
}

// HandleDeliver 投递任务触发。返回 SkipMessageError 表示消息应被确认丢弃，
// 返回其它错误表示可重试（broker 重新入队）。
func (d *DeliveryService) HandleDeliver(ctx context.Context, msg model.DeliverMessage) error {
	cancelled, err := d.svc.jobs.IsCancelled(ctx, msg.JobKey)
	if err != nil {
		return err
	}
	if cancelled {
		return &apperrors.SkipMessageError{Reason: "job cancelled"}
	}

	reminder, err := d.svc.reminders.GetByID(ctx, msg.ReminderID)
	if err != nil {
		if err == apperrors.ReminderNotFound {
			return &apperrors.SkipMessageError{Reason: "reminder not found"}
		}
		return err
	}
	if reminder.Status != model.ReminderStatusPending {
		return &apperrors.SkipMessageError{Reason: "reminder no longer pending"}
	}
	// broker 里删不掉的旧消息：延后重排过的提醒快照对不上，作废
	if msg.PostponeCount != reminder.PostponeCount {
		return &apperrors.SkipMessageError{Reason: "superseded by postpone"}
	}

	routine, err := d.svc.routines.GetByID(ctx, reminder.RoutineID)
	if err != nil {
		return err
	}
	user, err := d.svc.users.GetByID(ctx, reminder.UserID)
	if err != nil {
		return err
	}

	now := d.svc.now()

	// 日程已停用或用户已禁用：级联取消漏掉的行在这里兜底
	if !routine.Active || user.Status == model.UserStatusDisabled {
		d.cancelStranded(ctx, reminder, routineInactiveReason(routine, user))
		return &apperrors.SkipMessageError{Reason: "target inactive"}
	}

	// 免打扰窗口内不投递，改排到窗口结束。顺延先于宽限期判定：
	// 免打扰压住的提醒不算迟到，投递目标随之改写，宽限期从新目标起算。
	if deferred, err := d.deferIfQuiet(ctx, reminder, user, now); err != nil {
		return err
	} else if deferred {
		return &apperrors.SkipMessageError{Reason: "deferred by quiet hours"}
	}

	// 超过宽限期还没送出去的提醒已经没有意义，按系统跳过处理
	if grace := time.Duration(routine.GraceMinutes) * time.Minute; grace > 0 && now.Sub(reminder.ScheduledFor) > grace {
		d.autoSkip(ctx, reminder, routine, model.JSONB{"reason": "stale"})
		return &apperrors.SkipMessageError{Reason: "reminder stale"}
	}

	// 每日触达上限：延后一小时再试，最终由宽限期兜底
	allowed, count, err := d.limiter.CheckDailyCap(ctx, user.ID)
	if err != nil {
		logger.Logger.Warn("Daily cap check failed, allowing delivery",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
	} else if !allowed {
		logger.Logger.Warn("Daily delivery cap reached, deferring",
			zap.Int64("user_id", user.ID),
			zap.Int("count", count),
		)
		if err := d.svc.jobs.EnqueueDeliver(ctx, reminder, time.Hour); err != nil {
			return err
		}
		return &apperrors.SkipMessageError{Reason: "daily cap reached"}
	}

	text := d.content.Message(routine, reminder.EscalationLevel)
	start := now
	if err := d.messenger.Send(ctx, user.ChatID, text); err != nil {
		var perm *messenger.PermanentError
		if asPermanent(err, &perm) {
			// 对端永久拒收，这条提醒不可能到达用户
			metrics.RecordDelivery(string(routine.Category), "permanent_failure", time.Since(start).Seconds())
			d.cancelStranded(ctx, reminder, model.JSONB{"reason": "delivery_failed", "detail": perm.Reason})
			return &apperrors.SkipMessageError{Reason: "permanent delivery failure"}
		}
		metrics.RecordDelivery(string(routine.Category), "transient_failure", time.Since(start).Seconds())
		return err
	}

	sendTime := d.svc.now()
	ok, err := d.svc.reminders.UpdateStatusIf(ctx, reminder.ID,
		[]model.ReminderStatus{model.ReminderStatusPending},
		map[string]interface{}{
			"status":  model.ReminderStatusSent,
			"sent_at": sendTime,
		})
	if err != nil {
		return err
	}
	if !ok {
		// 用户赶在发送间隙完成了，消息已出门，不再排升级链
		logger.Logger.Debug("Reminder left pending state during delivery",
			zap.Int64("reminder_id", reminder.ID),
		)
		return nil
	}

	if err := d.limiter.Increment(ctx, user.ID); err != nil {
		logger.Logger.Warn("Failed to increment daily delivery count",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
	}
	metrics.RecordDelivery(string(routine.Category), "success", time.Since(start).Seconds())

	reminder.Status = model.ReminderStatusSent
	reminder.SentAt = &sendTime

	// 升级链逐级排队，每级触发时再排下一级
	if err := d.svc.jobs.EnqueueEscalate(ctx, reminder, 1, d.svc.opts.EscalationLevel1); err != nil {
		logger.Logger.Error("Failed to enqueue first escalation",
			zap.Int64("reminder_id", reminder.ID),
			zap.Error(err),
		)
	}

	logger.Logger.Info("Reminder delivered",
		zap.Int64("reminder_id", reminder.ID),
		zap.Int64("chat_id", user.ChatID),
		zap.String("category", string(routine.Category)),
	)
	return nil
}

// HandleEscalate 升级任务触发，level 1/2 发送加重提醒，level 3 自动跳过
func (d *DeliveryService) HandleEscalate(ctx context.Context, msg model.EscalateMessage) error {
	cancelled, err := d.svc.jobs.IsCancelled(ctx, msg.JobKey)
	if err != nil {
		return err
	}
	if cancelled {
		return &apperrors.SkipMessageError{Reason: "job cancelled"}
	}

	reminder, err := d.svc.reminders.GetByID(ctx, msg.ReminderID)
	if err != nil {
		if err == apperrors.ReminderNotFound {
			return &apperrors.SkipMessageError{Reason: "reminder not found"}
		}
		return err
	}

	// 终态、延后回到 pending、或级别已推进过：这条升级作废
	if reminder.Status != model.ReminderStatusSent {
		return &apperrors.SkipMessageError{Reason: "reminder not in sent state"}
	}
	if reminder.EscalationLevel >= msg.Level {
		return &apperrors.SkipMessageError{Reason: "escalation level already advanced"}
	}
	// 延后后重新投递过的提醒会重排整条升级链，旧链的消息作废
	if msg.PostponeCount != reminder.PostponeCount {
		return &apperrors.SkipMessageError{Reason: "superseded by postpone"}
	}

	routine, err := d.svc.routines.GetByID(ctx, reminder.RoutineID)
	if err != nil {
		return err
	}
	user, err := d.svc.users.GetByID(ctx, reminder.UserID)
	if err != nil {
		return err
	}

	now := d.svc.now()

	if msg.Level >= 3 {
		return d.handleAutoSkip(ctx, reminder, routine, user, now)
	}

	// 升级消息同样尊重免打扰窗口，整条链顺延
	if user.HasQuietWindow() {
		quiet, eligible, err := d.quietStatus(user, now)
		if err == nil && quiet {
			if err := d.svc.jobs.EnqueueEscalate(ctx, reminder, msg.Level, eligible.Sub(now)); err != nil {
				return err
			}
			metrics.RecordQuietDeferral()
			return &apperrors.SkipMessageError{Reason: "escalation deferred by quiet hours"}
		}
	}

	text := d.content.Message(routine, msg.Level)
	if err := d.messenger.Send(ctx, user.ChatID, text); err != nil {
		var perm *messenger.PermanentError
		if asPermanent(err, &perm) {
			logger.Logger.Warn("Escalation message permanently rejected",
				zap.Int64("reminder_id", reminder.ID),
				zap.Int("level", msg.Level),
				zap.String("reason", perm.Reason),
			)
			return &apperrors.SkipMessageError{Reason: "permanent delivery failure"}
		}
		return err
	}

	ok, err := d.svc.reminders.EscalateIf(ctx, reminder.ID, msg.Level)
	if err != nil {
		return err
	}
	if !ok {
		// 用户在发送间隙完成了，多出的一条升级消息无伤大雅
		return nil
	}
	metrics.RecordEscalation(msg.Level)

	reminder.EscalationLevel = msg.Level
	next := msg.Level + 1
	if err := d.svc.jobs.EnqueueEscalate(ctx, reminder, next, d.offsetFor(next)-d.offsetFor(msg.Level)); err != nil {
		logger.Logger.Error("Failed to enqueue next escalation",
			zap.Int64("reminder_id", reminder.ID),
			zap.Int("level", next),
			zap.Error(err),
		)
	}

	logger.Logger.Info("Escalation message sent",
		zap.Int64("reminder_id", reminder.ID),
		zap.Int("level", msg.Level),
	)
	return nil
}

// handleAutoSkip 升级窗口耗尽，系统代用户跳过。
// 状态守卫保证竞争下只产生一条 auto_skipped 事件。
func (d *DeliveryService) handleAutoSkip(ctx context.Context, reminder *model.Reminder, routine *model.Routine, user *model.User, now time.Time) error {
	ok, err := d.svc.reminders.UpdateStatusIf(ctx, reminder.ID,
		[]model.ReminderStatus{model.ReminderStatusSent},
		map[string]interface{}{
			"status":           model.ReminderStatusSkipped,
			"escalation_level": 3,
			"completed_at":     now,
			"confirm_source":   model.ConfirmSourceSystem,
		})
	if err != nil {
		return err
	}
	if !ok {
		return &apperrors.SkipMessageError{Reason: "reminder already resolved"}
	}

	reminder.Status = model.ReminderStatusSkipped
	reminder.EscalationLevel = 3
	reminder.ConfirmSource = model.ConfirmSourceSystem

	d.svc.emitEvent(ctx, reminder, model.EventTypeAutoSkipped, model.JSONB{
		"reason": "escalation_window_exhausted",
	})
	metrics.RecordAutoSkip(string(routine.Category))

	// 结果通知是尽力而为，免打扰窗口内干脆不发
	if quiet, _, err := d.quietStatus(user, now); err != nil || !quiet {
		text := d.content.Message(routine, 3)
		if err := d.messenger.Send(ctx, user.ChatID, text); err != nil {
			logger.Logger.Warn("Failed to send auto-skip notice",
				zap.Int64("reminder_id", reminder.ID),
				zap.Error(err),
			)
		}
	}

	logger.Logger.Info("Reminder auto-skipped",
		zap.Int64("reminder_id", reminder.ID),
		zap.String("category", string(routine.Category)),
	)
	return nil
}

// autoSkip 宽限期兜底：过时未投递的提醒直接按系统跳过
func (d *DeliveryService) autoSkip(ctx context.Context, reminder *model.Reminder, routine *model.Routine, detail model.JSONB) {
	ok, err := d.svc.reminders.UpdateStatusIf(ctx, reminder.ID,
		[]model.ReminderStatus{model.ReminderStatusPending},
		map[string]interface{}{
			"status":         model.ReminderStatusSkipped,
			"completed_at":   d.svc.now(),
			"confirm_source": model.ConfirmSourceSystem,
		})
	if err != nil {
		logger.Logger.Error("Failed to auto-skip stale reminder",
			zap.Int64("reminder_id", reminder.ID),
			zap.Error(err),
		)
		return
	}
	if !ok {
		return
	}

	reminder.Status = model.ReminderStatusSkipped
	d.svc.emitEvent(ctx, reminder, model.EventTypeAutoSkipped, detail)
	metrics.RecordAutoSkip(string(routine.Category))
}

// cancelStranded 目标不可达（日程停用、用户禁用、永久拒收）时取消提醒
func (d *DeliveryService) cancelStranded(ctx context.Context, reminder *model.Reminder, detail model.JSONB) {
	ok, err := d.svc.reminders.UpdateStatusIf(ctx, reminder.ID,
		[]model.ReminderStatus{model.ReminderStatusPending, model.ReminderStatusSent},
		map[string]interface{}{
			"status":         model.ReminderStatusCancelled,
			"completed_at":   d.svc.now(),
			"confirm_source": model.ConfirmSourceSystem,
		})
	if err != nil {
		logger.Logger.Error("Failed to cancel stranded reminder",
			zap.Int64("reminder_id", reminder.ID),
			zap.Error(err),
		)
		return
	}
	if !ok {
		return
	}

	d.svc.cancelOutstandingJobs(ctx, reminder)
	reminder.Status = model.ReminderStatusCancelled
	d.svc.emitEvent(ctx, reminder, model.EventTypeCancelled, detail)
}

// deferIfQuiet 投递时刻落在免打扰窗口内时改排到窗口结束，
// 并把投递目标改写到窗口结束时刻，宽限期随之顺延
func (d *DeliveryService) deferIfQuiet(ctx context.Context, reminder *model.Reminder, user *model.User, now time.Time) (bool, error) {
	if !user.HasQuietWindow() {
		return false, nil
	}

	quiet, eligible, err := d.quietStatus(user, now)
	if err != nil {
		logger.Logger.Warn("Invalid quiet window, ignoring",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		return false, nil
	}
	if !quiet {
		return false, nil
	}

	ok, err := d.svc.reminders.UpdateStatusIf(ctx, reminder.ID,
		[]model.ReminderStatus{model.ReminderStatusPending},
		map[string]interface{}{"scheduled_for": eligible})
	if err != nil {
		return false, err
	}
	if !ok {
		// 并发迁移抢先离开 pending，这次投递已无事可做
		return true, nil
	}
	reminder.ScheduledFor = eligible

	if err := d.svc.jobs.EnqueueDeliver(ctx, reminder, eligible.Sub(now)); err != nil {
		return false, err
	}
	metrics.RecordQuietDeferral()

	logger.Logger.Info("Delivery deferred by quiet hours",
		zap.Int64("reminder_id", reminder.ID),
		zap.Time("next_eligible", eligible),
	)
	return true, nil
}

// quietStatus 返回用户本地时间的免打扰判定与下一个可投递时刻
func (d *DeliveryService) quietStatus(user *model.User, now time.Time) (bool, time.Time, error) {
	if !user.HasQuietWindow() {
		return false, now, nil
	}

	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	quiet, err := schedule.IsQuiet(local, user.QuietStart, user.QuietEnd)
	if err != nil {
		return false, now, err
	}
	if !quiet {
		return false, now, nil
	}

	eligible, err := schedule.NextEligible(local, user.QuietEnd)
	if err != nil {
		return false, now, err
	}
	return true, eligible, nil
}

func (d *DeliveryService) offsetFor(level int) time.Duration {
	switch level {
	case 1:
		return d.svc.opts.EscalationLevel1
	case 2:
		return d.svc.opts.EscalationLevel2
	default:
		return d.svc.opts.AutoSkipOffset
	}
}

func routineInactiveReason(routine *model.Routine, user *model.User) model.JSONB {
	if !routine.Active {
		return model.JSONB{"reason": "routine_deactivated"}
	}
	if user.Status == model.UserStatusDisabled {
		return model.JSONB{"reason": "user_disabled"}
	}
	return model.JSONB{"reason": "target_inactive"}
}

// redisDeliveryLimiter 生产实现，挂在 Redis 每日计数上
type redisDeliveryLimiter struct{}

func (redisDeliveryLimiter) CheckDailyCap(ctx context.Context, userID int64) (bool, int, error) {
	return cache.CheckDailyDeliveryCap(ctx, userID)
}

func (redisDeliveryLimiter) Increment(ctx context.Context, userID int64) error {
	return cache.IncrementDailyDeliveryCount(ctx, userID, time.Now().Format("2006-01-02"))
}
