package content

import (
	"fmt"

	"Routinely/internal/model"
)

// Provider 根据日程类别与升级级别产出消息文案。
// 调度器不关心文案怎么来，换成模板引擎或 LLM 只需替换实现。
type Provider interface {
	Message(routine *model.Routine, level int) string
}

// StaticProvider 内置文案表
type StaticProvider struct{}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// 级别 0 是首次提醒，1/2 依次加重语气，3 为自动跳过前的最后通知
var templates = map[model.RoutineCategory][4]string{
	model.RoutineCategoryMedication: {
		"💊 Time for your medication: %s",
		"💊 Reminder: you haven't confirmed %s yet",
		"⚠️ Important: %s is still waiting on you",
		"⏭ %s was skipped automatically. Stay safe and don't double-dose.",
	},
	model.RoutineCategoryHabit: {
		"✨ Time for %s",
		"✨ Still up for %s today?",
		"⏰ Last call for %s",
		"⏭ %s was skipped for today. Tomorrow is a new day!",
	},
	model.RoutineCategoryTask: {
		"📋 Scheduled now: %s",
		"📋 %s is still open",
		"⏰ %s is overdue",
		"⏭ %s was skipped automatically.",
	},
}

func (p *StaticProvider) Message(routine *model.Routine, level int) string {
	if level < 0 {
		level = 0
	}
	if level > 3 {
		level = 3
	}

	set, ok := templates[routine.Category]
	if !ok {
		set = templates[model.RoutineCategoryTask]
	}

	title := routine.Title
	if routine.Icon != "" {
		title = routine.Icon + " " + title
	}
	return fmt.Sprintf(set[level], title)
}
