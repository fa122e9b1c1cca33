package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Routinely/internal/model"
	apperrors "Routinely/pkg/errors"
)

var baseTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type lifecycleFixture struct {
	store    *fakeStore
	jobs     *fakeJobQueue
	clock    *testClock
	svc      *ReminderService
	user     *model.User
	routine  *model.Routine
	reminder *model.Reminder
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	store := newFakeStore()
	jobs := newFakeJobQueue()
	clock := newTestClock(baseTime)

	user := store.addUser(&model.User{
		PublicID: 101,
		ChatID:   9001,
		Timezone: "UTC",
		Status:   model.UserStatusActive,
	})
	routine := store.addRoutine(&model.Routine{
		PublicID:        201,
		UserID:          user.ID,
		Category:        model.RoutineCategoryMedication,
		Title:           "早晨用药",
		Active:          true,
		GraceMinutes:    120,
		MaxPostpones:    2,
		PostponeMinutes: 15,
	})
	reminder := store.addReminder(&model.Reminder{
		PublicID:     301,
		RoutineID:    routine.ID,
		UserID:       user.ID,
		ScheduledFor: baseTime,
		Status:       model.ReminderStatusSent,
		MaxPostpones: 2,
	})

	return &lifecycleFixture{
		store:    store,
		jobs:     jobs,
		clock:    clock,
		svc:      newTestReminderService(store, jobs, clock),
		user:     user,
		routine:  routine,
		reminder: reminder,
	}
}

func TestCompleteMovesToTerminalAndCancelsJobs(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	got, err := f.svc.Complete(ctx, f.reminder.PublicID, model.ConfirmSourceUser)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderStatusCompleted, got.Status)
	assert.Equal(t, model.ConfirmSourceUser, got.ConfirmSource)
	require.NotNil(t, got.CompletedAt)

	// 投递与升级任务全部打上取消墓碑
	for _, key := range []string{
		model.DeliverJobKey(f.reminder.ID),
		model.EscalateJobKey(f.reminder.ID, 1),
		model.EscalateJobKey(f.reminder.ID, 2),
		model.EscalateJobKey(f.reminder.ID, 3),
	} {
		cancelled, err := f.jobs.IsCancelled(ctx, key)
		require.NoError(t, err)
		assert.True(t, cancelled, "job %s should be cancelled", key)
	}

	events := f.store.eventsOfType(model.EventTypeCompleted)
	require.Len(t, events, 1)
	assert.Equal(t, f.reminder.ID, events[0].ReminderID)
}

func TestCompleteTwiceReturnsAlreadyTerminal(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, f.reminder.PublicID, model.ConfirmSourceUser)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.reminder.PublicID, model.ConfirmSourceUser)
	assert.ErrorIs(t, err, apperrors.ReminderAlreadyTerminal)
}

func TestSkipRecordsSource(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	got, err := f.svc.Skip(ctx, f.reminder.PublicID, model.ConfirmSourceUser)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderStatusSkipped, got.Status)

	events := f.store.eventsOfType(model.EventTypeSkipped)
	require.Len(t, events, 1)
	assert.Equal(t, "user", events[0].Detail["source"])
}

func TestConcurrentCompleteSkipSingleWinner(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.Complete(ctx, f.reminder.PublicID, model.ConfirmSourceUser)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.Skip(ctx, f.reminder.PublicID, model.ConfirmSourceUser)
	}()
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else if err == apperrors.ReminderAlreadyTerminal {
			lost++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	// 只产生一条终态事件
	total := len(f.store.eventsOfType(model.EventTypeCompleted)) +
		len(f.store.eventsOfType(model.EventTypeSkipped))
	assert.Equal(t, 1, total)
}

func TestPostponeReentersPendingAndReschedules(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	got, err := f.svc.Postpone(ctx, f.reminder.PublicID, 30)
	require.NoError(t, err)

	assert.Equal(t, model.ReminderStatusPending, got.Status)
	assert.Equal(t, 0, got.EscalationLevel)
	assert.Equal(t, 1, got.PostponeCount)
	assert.Nil(t, got.SentAt)
	assert.Equal(t, baseTime.Add(30*time.Minute), got.ScheduledFor)

	delivers := f.jobs.jobs("deliver")
	require.Len(t, delivers, 1)
	assert.Equal(t, 30*time.Minute, delivers[0].Delay)
}

func TestPostponeUsesRoutineDefaultMinutes(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	got, err := f.svc.Postpone(ctx, f.reminder.PublicID, 0)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(15*time.Minute), got.ScheduledFor)
}

func TestPostponeLimit(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Postpone(ctx, f.reminder.PublicID, 10)
	require.NoError(t, err)
	_, err = f.svc.Postpone(ctx, f.reminder.PublicID, 10)
	require.NoError(t, err)

	_, err = f.svc.Postpone(ctx, f.reminder.PublicID, 10)
	assert.ErrorIs(t, err, apperrors.PostponeLimitReached)

	// 额度用尽不影响已排好的投递
	got := f.store.reminder(f.reminder.ID)
	assert.Equal(t, 2, got.PostponeCount)
	assert.Equal(t, model.ReminderStatusPending, got.Status)
}

func TestPostponeTerminalReminder(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, f.reminder.PublicID, model.ConfirmSourceUser)
	require.NoError(t, err)

	_, err = f.svc.Postpone(ctx, f.reminder.PublicID, 10)
	assert.ErrorIs(t, err, apperrors.ReminderAlreadyTerminal)
}

func TestPostponeDefersIntoQuietWindow(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	// 22:50 + 30min = 23:20 落在 23:00-08:00 窗口内，顺延到次日 08:00
	f.clock.now = time.Date(2026, 3, 2, 22, 50, 0, 0, time.UTC)
	f.store.mu.Lock()
	f.store.users[f.user.ID].QuietStart = "23:00"
	f.store.users[f.user.ID].QuietEnd = "08:00"
	f.store.mu.Unlock()

	got, err := f.svc.Postpone(ctx, f.reminder.PublicID, 30)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), got.ScheduledFor)

	events := f.store.eventsOfType(model.EventTypePostponed)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].Detail["quiet_deferred"])
}

func TestGenerateRemindersIdempotent(t *testing.T) {
	store := newFakeStore()
	jobs := newFakeJobQueue()
	clock := newTestClock(baseTime)
	svc := newTestReminderService(store, jobs, clock)
	ctx := context.Background()

	user := store.addUser(&model.User{PublicID: 101, ChatID: 9001, Timezone: "UTC", Status: model.UserStatusActive})
	store.addRoutine(&model.Routine{
		PublicID:     201,
		UserID:       user.ID,
		Category:     model.RoutineCategoryHabit,
		Title:        "晨跑",
		Active:       true,
		MaxPostpones: 2,
	}, model.Schedule{Pattern: model.SchedulePatternDaily, TimeOfDay: "18:00"})

	from := baseTime
	to := baseTime.AddDate(0, 0, 6)

	inserted, err := svc.GenerateReminders(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(7), inserted)
	assert.Len(t, jobs.jobs("deliver"), 7)

	// 再跑一轮：全部冲突跳过，不重复排任务
	inserted, err = svc.GenerateReminders(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)
	assert.Len(t, jobs.jobs("deliver"), 7)
}

func TestGenerateAfterPostponeDoesNotReinsert(t *testing.T) {
	store := newFakeStore()
	jobs := newFakeJobQueue()
	clock := newTestClock(baseTime)
	svc := newTestReminderService(store, jobs, clock)
	ctx := context.Background()

	user := store.addUser(&model.User{PublicID: 101, ChatID: 9001, Timezone: "UTC", Status: model.UserStatusActive})
	store.addRoutine(&model.Routine{
		PublicID:     201,
		UserID:       user.ID,
		Category:     model.RoutineCategoryHabit,
		Title:        "晨跑",
		Active:       true,
		MaxPostpones: 2,
	}, model.Schedule{Pattern: model.SchedulePatternDaily, TimeOfDay: "18:00"})

	from := baseTime
	to := baseTime.AddDate(0, 0, 6)

	inserted, err := svc.GenerateReminders(ctx, from, to)
	require.NoError(t, err)
	require.Equal(t, int64(7), inserted)

	// 延后其中一条：投递目标改了，原始发生时刻不动
	store.mu.Lock()
	var target model.Reminder
	for _, r := range store.reminders {
		if target.ID == 0 || r.OccurrenceAt.Before(target.OccurrenceAt) {
			target = *r
		}
	}
	store.mu.Unlock()

	_, err = svc.Postpone(ctx, target.PublicID, 30)
	require.NoError(t, err)

	got := store.reminder(target.ID)
	assert.True(t, got.OccurrenceAt.Equal(target.OccurrenceAt))
	assert.False(t, got.ScheduledFor.Equal(target.ScheduledFor))

	// 滚动生成再来一轮：延后过的发生不会被当成新行重插
	inserted, err = svc.GenerateReminders(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)

	store.mu.Lock()
	assert.Len(t, store.reminders, 7)
	store.mu.Unlock()
}

func TestGenerateRemindersSkipsPastOccurrences(t *testing.T) {
	store := newFakeStore()
	jobs := newFakeJobQueue()
	clock := newTestClock(baseTime) // 12:00
	svc := newTestReminderService(store, jobs, clock)
	ctx := context.Background()

	user := store.addUser(&model.User{PublicID: 101, ChatID: 9001, Timezone: "UTC", Status: model.UserStatusActive})
	store.addRoutine(&model.Routine{
		PublicID: 201, UserID: user.ID,
		Category: model.RoutineCategoryTask, Title: "交报告",
		Active: true, MaxPostpones: 2,
	}, model.Schedule{Pattern: model.SchedulePatternDaily, TimeOfDay: "09:00"})

	// 当天 09:00 已过，只有后两天的发生被物化
	inserted, err := svc.GenerateReminders(ctx, baseTime, baseTime.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)
}

func TestGenerateRemindersBadScheduleDoesNotBlockOthers(t *testing.T) {
	store := newFakeStore()
	jobs := newFakeJobQueue()
	clock := newTestClock(baseTime)
	svc := newTestReminderService(store, jobs, clock)
	ctx := context.Background()

	user := store.addUser(&model.User{PublicID: 101, ChatID: 9001, Timezone: "UTC", Status: model.UserStatusActive})
	store.addRoutine(&model.Routine{
		PublicID: 201, UserID: user.ID,
		Category: model.RoutineCategoryHabit, Title: "坏配置",
		Active: true, MaxPostpones: 2,
	}, model.Schedule{Pattern: model.SchedulePatternDaily, TimeOfDay: "99:99"})
	store.addRoutine(&model.Routine{
		PublicID: 202, UserID: user.ID,
		Category: model.RoutineCategoryHabit, Title: "好配置",
		Active: true, MaxPostpones: 2,
	}, model.Schedule{Pattern: model.SchedulePatternDaily, TimeOfDay: "18:00"})

	inserted, err := svc.GenerateReminders(ctx, baseTime, baseTime.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)
}

func TestCancelActiveForRoutine(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	pending := f.store.addReminder(&model.Reminder{
		PublicID:     302,
		RoutineID:    f.routine.ID,
		UserID:       f.user.ID,
		ScheduledFor: baseTime.Add(24 * time.Hour),
		Status:       model.ReminderStatusPending,
		MaxPostpones: 2,
	})
	done := f.store.addReminder(&model.Reminder{
		PublicID:     303,
		RoutineID:    f.routine.ID,
		UserID:       f.user.ID,
		ScheduledFor: baseTime.Add(-24 * time.Hour),
		Status:       model.ReminderStatusCompleted,
		MaxPostpones: 2,
	})

	require.NoError(t, f.svc.CancelActiveForRoutine(ctx, f.routine.ID))

	assert.Equal(t, model.ReminderStatusCancelled, f.store.reminder(f.reminder.ID).Status)
	assert.Equal(t, model.ReminderStatusCancelled, f.store.reminder(pending.ID).Status)
	// 已完成的历史记录不动
	assert.Equal(t, model.ReminderStatusCompleted, f.store.reminder(done.ID).Status)

	events := f.store.eventsOfType(model.EventTypeCancelled)
	assert.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "routine_deactivated", e.Detail["reason"])
	}
}

func TestEventsReturnsHistory(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Postpone(ctx, f.reminder.PublicID, 10)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, f.reminder.PublicID, model.ConfirmSourceUser)
	require.NoError(t, err)

	events, err := f.svc.Events(ctx, f.reminder.PublicID)
	require.NoError(t, err)
	require.Len(t, events, 2)
}
