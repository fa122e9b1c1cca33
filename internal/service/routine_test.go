package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Routinely/internal/model"
	apperrors "Routinely/pkg/errors"
)

type routineFixture struct {
	store *fakeStore
	jobs  *fakeJobQueue
	svc   *RoutineService
	user  *model.User
}

func newRoutineFixture(t *testing.T) *routineFixture {
	t.Helper()

	store := newFakeStore()
	jobs := newFakeJobQueue()
	clock := newTestClock(baseTime)
	lifecycle := newTestReminderService(store, jobs, clock)

	user := store.addUser(&model.User{
		PublicID: 101,
		ChatID:   9001,
		Timezone: "UTC",
		Status:   model.UserStatusActive,
	})

	return &routineFixture{
		store: store,
		jobs:  jobs,
		svc:   NewRoutineService(fakeRoutineStore{store}, fakeUserStore{store}, lifecycle, clock.Now),
		user:  user,
	}
}

func dailyInput(userPublicID int64) CreateRoutineInput {
	return CreateRoutineInput{
		UserPublicID: userPublicID,
		Category:     model.RoutineCategoryHabit,
		Title:        "晨跑",
		Schedules: []ScheduleInput{
			{Pattern: model.SchedulePatternDaily, TimeOfDay: "18:00"},
		},
	}
}

func TestCreateRoutineGeneratesInitialReminders(t *testing.T) {
	f := newRoutineFixture(t)
	ctx := context.Background()

	routine, err := f.svc.Create(ctx, dailyInput(f.user.PublicID))
	require.NoError(t, err)
	assert.True(t, routine.Active)
	assert.NotZero(t, routine.PublicID)

	// 测试参数视野 30 天，daily 模式应物化 30 条上下
	delivers := f.jobs.jobs("deliver")
	assert.GreaterOrEqual(t, len(delivers), 29)
}

func TestCreateRoutineAppliesDefaults(t *testing.T) {
	f := newRoutineFixture(t)
	ctx := context.Background()

	routine, err := f.svc.Create(ctx, dailyInput(f.user.PublicID))
	require.NoError(t, err)

	assert.Equal(t, 120, routine.GraceMinutes)
	assert.Greater(t, routine.MaxPostpones, 0)
	assert.Greater(t, routine.PostponeMinutes, 0)
}

func TestCreateRoutineRejectsBadInput(t *testing.T) {
	f := newRoutineFixture(t)
	ctx := context.Background()

	bad := dailyInput(f.user.PublicID)
	bad.Category = "chore"
	_, err := f.svc.Create(ctx, bad)
	assert.ErrorIs(t, err, apperrors.InvalidRequest)

	bad = dailyInput(f.user.PublicID)
	bad.Title = ""
	_, err = f.svc.Create(ctx, bad)
	assert.ErrorIs(t, err, apperrors.InvalidRequest)

	bad = dailyInput(f.user.PublicID)
	bad.Schedules = nil
	_, err = f.svc.Create(ctx, bad)
	assert.ErrorIs(t, err, apperrors.InvalidRequest)
}

func TestCreateRoutineRejectsBadSchedule(t *testing.T) {
	f := newRoutineFixture(t)
	ctx := context.Background()

	bad := dailyInput(f.user.PublicID)
	bad.Schedules[0].TimeOfDay = "25:00"
	_, err := f.svc.Create(ctx, bad)
	require.Error(t, err)
	assert.True(t, apperrors.IsNonRetryableError(err))

	// 坏配置挡在写库之前
	routines, lerr := f.svc.ListByUser(ctx, f.user.PublicID, true)
	require.NoError(t, lerr)
	assert.Empty(t, routines)
}

func TestCreateRoutineUnknownUser(t *testing.T) {
	f := newRoutineFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, dailyInput(999))
	assert.ErrorIs(t, err, apperrors.UserNotFound)
}

func TestAddScheduleToInactiveRoutine(t *testing.T) {
	f := newRoutineFixture(t)
	ctx := context.Background()

	routine, err := f.svc.Create(ctx, dailyInput(f.user.PublicID))
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, routine.PublicID))

	_, err = f.svc.AddSchedule(ctx, routine.PublicID, ScheduleInput{
		Pattern:   model.SchedulePatternDaily,
		TimeOfDay: "08:00",
	})
	assert.ErrorIs(t, err, apperrors.RoutineInactive)
}

func TestGenerateIsIdempotentAndGuardsInactive(t *testing.T) {
	f := newRoutineFixture(t)
	ctx := context.Background()

	routine, err := f.svc.Create(ctx, dailyInput(f.user.PublicID))
	require.NoError(t, err)

	// Create 已物化过视野，手动触发全部冲突跳过
	inserted, err := f.svc.Generate(ctx, routine.PublicID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)

	require.NoError(t, f.svc.Deactivate(ctx, routine.PublicID))
	_, err = f.svc.Generate(ctx, routine.PublicID)
	assert.ErrorIs(t, err, apperrors.RoutineInactive)
}

func TestDeactivateCascadesAndIsIdempotent(t *testing.T) {
	f := newRoutineFixture(t)
	ctx := context.Background()

	routine, err := f.svc.Create(ctx, dailyInput(f.user.PublicID))
	require.NoError(t, err)

	active, err := f.store.ListActiveByRoutine(ctx, routine.ID)
	require.NoError(t, err)
	require.NotEmpty(t, active)

	require.NoError(t, f.svc.Deactivate(ctx, routine.PublicID))

	remaining, err := f.store.ListActiveByRoutine(ctx, routine.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	cancelled := f.store.eventsOfType(model.EventTypeCancelled)
	assert.Len(t, cancelled, len(active))

	// 重复停用是 no-op，不产生新事件
	require.NoError(t, f.svc.Deactivate(ctx, routine.PublicID))
	assert.Len(t, f.store.eventsOfType(model.EventTypeCancelled), len(active))
}

func TestUserRegisterIdempotentByChatID(t *testing.T) {
	store := newFakeStore()
	svc := NewUserService(fakeUserStore{store}, testOptions())
	ctx := context.Background()

	first, err := svc.Register(ctx, 9001, "Asia/Shanghai", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", first.Timezone)
	// 未显式给出窗口时使用全局默认
	assert.Equal(t, "23:00", first.QuietStart)
	assert.Equal(t, "08:00", first.QuietEnd)

	second, err := svc.Register(ctx, 9001, "UTC", "22:00", "07:00")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Asia/Shanghai", second.Timezone)
}

func TestUserRegisterValidation(t *testing.T) {
	store := newFakeStore()
	svc := NewUserService(fakeUserStore{store}, testOptions())
	ctx := context.Background()

	_, err := svc.Register(ctx, 1, "Mars/Olympus", "", "")
	assert.ErrorIs(t, err, apperrors.InvalidRequest)

	_, err = svc.Register(ctx, 2, "UTC", "23:00", "")
	assert.ErrorIs(t, err, apperrors.QuietWindowInvalid)

	_, err = svc.Register(ctx, 3, "UTC", "25:00", "08:00")
	assert.ErrorIs(t, err, apperrors.QuietWindowInvalid)
}

func TestUpdateQuietWindow(t *testing.T) {
	store := newFakeStore()
	svc := NewUserService(fakeUserStore{store}, testOptions())
	ctx := context.Background()

	user, err := svc.Register(ctx, 9001, "UTC", "", "")
	require.NoError(t, err)

	updated, err := svc.UpdateQuietWindow(ctx, user.PublicID, "22:30", "07:30")
	require.NoError(t, err)
	assert.Equal(t, "22:30", updated.QuietStart)
	assert.Equal(t, "07:30", updated.QuietEnd)

	// 空对表示关闭窗口
	updated, err = svc.UpdateQuietWindow(ctx, user.PublicID, "", "")
	require.NoError(t, err)
	assert.False(t, updated.HasQuietWindow())

	_, err = svc.UpdateQuietWindow(ctx, user.PublicID, "22:00", "")
	assert.ErrorIs(t, err, apperrors.QuietWindowInvalid)

	// 持久化生效
	stored, err := svc.Get(ctx, user.PublicID)
	require.NoError(t, err)
	assert.False(t, stored.HasQuietWindow())
}
