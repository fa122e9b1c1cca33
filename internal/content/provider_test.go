package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"Routinely/internal/model"
)

func TestMessageEscalatesTone(t *testing.T) {
	p := NewStaticProvider()
	routine := &model.Routine{Category: model.RoutineCategoryMedication, Title: "维生素"}

	seen := make(map[string]bool)
	for level := 0; level <= 3; level++ {
		msg := p.Message(routine, level)
		assert.Contains(t, msg, "维生素")
		assert.False(t, seen[msg], "levels must produce distinct messages")
		seen[msg] = true
	}
}

func TestMessageClampsLevel(t *testing.T) {
	p := NewStaticProvider()
	routine := &model.Routine{Category: model.RoutineCategoryHabit, Title: "晨跑"}

	assert.Equal(t, p.Message(routine, 0), p.Message(routine, -1))
	assert.Equal(t, p.Message(routine, 3), p.Message(routine, 7))
}

func TestMessageIncludesIcon(t *testing.T) {
	p := NewStaticProvider()
	routine := &model.Routine{Category: model.RoutineCategoryTask, Title: "交报告", Icon: "📝"}

	msg := p.Message(routine, 0)
	assert.True(t, strings.Contains(msg, "📝 交报告"))
}

func TestMessageUnknownCategoryFallsBack(t *testing.T) {
	p := NewStaticProvider()
	routine := &model.Routine{Category: "chore", Title: "倒垃圾"}

	assert.Contains(t, p.Message(routine, 0), "倒垃圾")
}
