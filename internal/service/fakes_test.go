package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"Routinely/internal/model"
	apperrors "Routinely/pkg/errors"
	"Routinely/pkg/logger"
	"Routinely/pkg/snowflake"
)

func TestMain(m *testing.M) {
	logger.Init()
	_ = snowflake.Init(1, 1)
	m.Run()
}

// fakeStore 内存版存储，条件更新逻辑与 SQL 守卫保持一致
type fakeStore struct {
	mu        sync.Mutex
	reminders map[int64]*model.Reminder
	routines  map[int64]*model.Routine
	schedules map[int64][]model.Schedule
	users     map[int64]*model.User
	events    []model.ReminderEvent
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reminders: make(map[int64]*model.Reminder),
		routines:  make(map[int64]*model.Routine),
		schedules: make(map[int64][]model.Schedule),
		users:     make(map[int64]*model.User),
		nextID:    1,
	}
}

func (f *fakeStore) allocID() int64 {
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakeStore) addUser(u *model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == 0 {
		u.ID = f.allocID()
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) addRoutine(r *model.Routine, schedules ...model.Schedule) *model.Routine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		r.ID = f.allocID()
	}
	f.routines[r.ID] = r
	f.schedules[r.ID] = schedules
	return r
}

func (f *fakeStore) addReminder(r *model.Reminder) *model.Reminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		r.ID = f.allocID()
	}
	if r.PublicID == 0 {
		r.PublicID = r.ID * 1000
	}
	if r.OccurrenceAt.IsZero() {
		r.OccurrenceAt = r.ScheduledFor
	}
	f.reminders[r.ID] = r
	return r
}

func (f *fakeStore) reminder(id int64) model.Reminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.reminders[id]
}

func (f *fakeStore) eventsOfType(typ model.EventType) []model.ReminderEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ReminderEvent
	for _, e := range f.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// --- ReminderStore ---

func (f *fakeStore) BatchUpsert(ctx context.Context, reminders []*model.Reminder) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var inserted int64
	for _, r := range reminders {
		conflict := false
		for _, existing := range f.reminders {
			if existing.RoutineID == r.RoutineID && existing.OccurrenceAt.Equal(r.OccurrenceAt) {
				conflict = true
				break
			}
		}
		if conflict {
			r.ID = 0
			continue
		}
		r.ID = f.allocID()
		f.reminders[r.ID] = r
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id int64) (*model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return nil, apperrors.ReminderNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) GetByPublicID(ctx context.Context, publicID int64) (*model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reminders {
		if r.PublicID == publicID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperrors.ReminderNotFound
}

func (f *fakeStore) UpdateStatusIf(ctx context.Context, id int64, expected []model.ReminderStatus, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reminders[id]
	if !ok {
		return false, nil
	}

	match := false
	for _, st := range expected {
		if r.Status == st {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}

	for k, v := range updates {
		switch k {
		case "status":
			r.Status = v.(model.ReminderStatus)
		case "completed_at":
			t := v.(time.Time)
			r.CompletedAt = &t
		case "sent_at":
			t := v.(time.Time)
			r.SentAt = &t
		case "confirm_source":
			r.ConfirmSource = v.(model.ConfirmSource)
		case "escalation_level":
			r.EscalationLevel = v.(int)
		case "scheduled_for":
			r.ScheduledFor = v.(time.Time)
		default:
			return false, fmt.Errorf("unexpected update column %q", k)
		}
	}
	return true, nil
}

func (f *fakeStore) PostponeIf(ctx context.Context, id int64, expectedCount int, newTime time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reminders[id]
	if !ok {
		return false, nil
	}
	if r.Status != model.ReminderStatusPending && r.Status != model.ReminderStatusSent {
		return false, nil
	}
	if r.PostponeCount != expectedCount || r.PostponeCount >= r.MaxPostpones {
		return false, nil
	}

	r.Status = model.ReminderStatusPending
	r.EscalationLevel = 0
	r.PostponeCount++
	r.ScheduledFor = newTime
	r.SentAt = nil
	return true, nil
}

func (f *fakeStore) EscalateIf(ctx context.Context, id int64, level int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reminders[id]
	if !ok {
		return false, nil
	}
	if r.Status != model.ReminderStatusSent || r.EscalationLevel >= level {
		return false, nil
	}
	r.EscalationLevel = level
	return true, nil
}

func (f *fakeStore) ListActiveByRoutine(ctx context.Context, routineID int64) ([]model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reminder
	for _, r := range f.reminders {
		if r.RoutineID == routineID && !r.Status.Terminal() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByUser(ctx context.Context, userID int64, status model.ReminderStatus, limit, offset int) ([]model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reminder
	for _, r := range f.reminders {
		if r.UserID != userID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) LastOccurrence(ctx context.Context, routineID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *time.Time
	for _, r := range f.reminders {
		if r.RoutineID != routineID {
			continue
		}
		t := r.OccurrenceAt
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return last, nil
}

// --- RoutineStore ---

func (f *fakeStore) Create(ctx context.Context, routine *model.Routine, schedules []*model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	routine.ID = f.allocID()
	f.routines[routine.ID] = routine
	var ss []model.Schedule
	for _, s := range schedules {
		s.ID = f.allocID()
		s.RoutineID = routine.ID
		ss = append(ss, *s)
	}
	f.schedules[routine.ID] = ss
	return nil
}

func (f *fakeStore) GetRoutineByID(ctx context.Context, id int64) (*model.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routines[id]
	if !ok {
		return nil, apperrors.RoutineNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) GetRoutineByPublicID(ctx context.Context, publicID int64) (*model.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.routines {
		if r.PublicID == publicID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperrors.RoutineNotFound
}

func (f *fakeStore) ListActive(ctx context.Context) ([]model.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Routine
	for _, r := range f.routines {
		if r.Active {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRoutinesByUser(ctx context.Context, userID int64, includeInactive bool) ([]model.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Routine
	for _, r := range f.routines {
		if r.UserID != userID {
			continue
		}
		if !includeInactive && !r.Active {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) Schedules(ctx context.Context, routineID int64) ([]model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules[routineID], nil
}

func (f *fakeStore) AddSchedule(ctx context.Context, schedule *model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	schedule.ID = f.allocID()
	f.schedules[schedule.RoutineID] = append(f.schedules[schedule.RoutineID], *schedule)
	return nil
}

func (f *fakeStore) Deactivate(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routines[id]
	if !ok || !r.Active {
		return false, nil
	}
	r.Active = false
	return true, nil
}

// --- UserStore ---

func (f *fakeStore) CreateUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = f.allocID()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.UserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByPublicID(ctx context.Context, publicID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.PublicID == publicID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.UserNotFound
}

func (f *fakeStore) GetByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ChatID == chatID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.UserNotFound
}

func (f *fakeStore) UpdateQuietWindow(ctx context.Context, id int64, start, end string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperrors.UserNotFound
	}
	u.QuietStart = start
	u.QuietEnd = end
	return nil
}

// --- EventStore ---

func (f *fakeStore) Append(ctx context.Context, event *model.ReminderEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.EventCode == event.EventCode {
			return false, nil
		}
	}
	f.events = append(f.events, *event)
	return true, nil
}

func (f *fakeStore) ListByReminder(ctx context.Context, reminderID int64) ([]model.ReminderEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ReminderEvent
	for _, e := range f.events {
		if e.ReminderID == reminderID {
			out = append(out, e)
		}
	}
	return out, nil
}

// 适配器：让一个 fakeStore 同时充当四个 store 接口，
// 方法名冲突的部分通过窄包装类型绕开。

type fakeRoutineStore struct{ *fakeStore }

func (s fakeRoutineStore) GetByID(ctx context.Context, id int64) (*model.Routine, error) {
	return s.fakeStore.GetRoutineByID(ctx, id)
}

func (s fakeRoutineStore) GetByPublicID(ctx context.Context, publicID int64) (*model.Routine, error) {
	return s.fakeStore.GetRoutineByPublicID(ctx, publicID)
}

func (s fakeRoutineStore) ListByUser(ctx context.Context, userID int64, includeInactive bool) ([]model.Routine, error) {
	return s.fakeStore.ListRoutinesByUser(ctx, userID, includeInactive)
}

type fakeUserStore struct{ *fakeStore }

func (s fakeUserStore) Create(ctx context.Context, user *model.User) error {
	return s.fakeStore.CreateUser(ctx, user)
}

func (s fakeUserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.fakeStore.GetUserByID(ctx, id)
}

func (s fakeUserStore) GetByPublicID(ctx context.Context, publicID int64) (*model.User, error) {
	return s.fakeStore.GetUserByPublicID(ctx, publicID)
}

// enqueuedJob 记录一次入队调用
type enqueuedJob struct {
	Kind       string // deliver / escalate
	ReminderID int64
	Level      int
	Delay      time.Duration
}

// fakeJobQueue 记录入队与取消墓碑，IsCancelled 按墓碑作答
type fakeJobQueue struct {
	mu        sync.Mutex
	enqueued  []enqueuedJob
	cancelled map[string]bool
	published []model.ReminderEvent
}

func newFakeJobQueue() *fakeJobQueue {
	return &fakeJobQueue{cancelled: make(map[string]bool)}
}

func (q *fakeJobQueue) EnqueueDeliver(ctx context.Context, reminder *model.Reminder, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.cancelled, model.DeliverJobKey(reminder.ID))
	q.enqueued = append(q.enqueued, enqueuedJob{Kind: "deliver", ReminderID: reminder.ID, Delay: delay})
	return nil
}

func (q *fakeJobQueue) EnqueueEscalate(ctx context.Context, reminder *model.Reminder, level int, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.cancelled, model.EscalateJobKey(reminder.ID, level))
	q.enqueued = append(q.enqueued, enqueuedJob{Kind: "escalate", ReminderID: reminder.ID, Level: level, Delay: delay})
	return nil
}

func (q *fakeJobQueue) CancelDeliver(ctx context.Context, reminderID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[model.DeliverJobKey(reminderID)] = true
	return nil
}

func (q *fakeJobQueue) CancelEscalations(ctx context.Context, reminderID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for level := 1; level <= 3; level++ {
		q.cancelled[model.EscalateJobKey(reminderID, level)] = true
	}
	return nil
}

func (q *fakeJobQueue) IsCancelled(ctx context.Context, jobKey string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[jobKey], nil
}

func (q *fakeJobQueue) PublishEvent(event *model.ReminderEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, *event)
}

func (q *fakeJobQueue) jobs(kind string) []enqueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []enqueuedJob
	for _, j := range q.enqueued {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

// fakeMessenger 记录发出的消息，可预置失败
type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	failures []error
}

type sentMessage struct {
	ChatID  int64
	Content string
}

func (m *fakeMessenger) Send(ctx context.Context, chatID int64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Content: content})
	return nil
}

func (m *fakeMessenger) failNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

func (m *fakeMessenger) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// fakeLimiter 可配置的每日上限
type fakeLimiter struct {
	mu      sync.Mutex
	cap     int
	counts  map[int64]int
	failure error
}

func newFakeLimiter(cap int) *fakeLimiter {
	return &fakeLimiter{cap: cap, counts: make(map[int64]int)}
}

func (l *fakeLimiter) CheckDailyCap(ctx context.Context, userID int64) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failure != nil {
		return false, 0, l.failure
	}
	count := l.counts[userID]
	return count < l.cap, count, nil
}

func (l *fakeLimiter) Increment(ctx context.Context, userID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[userID]++
	return nil
}

// testClock 可推进的固定时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testOptions() Options {
	return Options{
		EscalationLevel1:       15 * time.Minute,
		EscalationLevel2:       45 * time.Minute,
		AutoSkipOffset:         60 * time.Minute,
		DefaultMaxPostpones:    2,
		DefaultPostponeMinutes: 15,
		HorizonDays:            30,
		DailyReminderCap:       60,
		DefaultQuietStart:      "23:00",
		DefaultQuietEnd:        "08:00",
	}
}

// newTestReminderService 组装一套基于内存假实现的服务
func newTestReminderService(store *fakeStore, jobs *fakeJobQueue, clock *testClock) *ReminderService {
	return NewReminderService(
		store,
		fakeRoutineStore{store},
		fakeUserStore{store},
		store,
		jobs,
		testOptions(),
		clock.Now,
	)
}
