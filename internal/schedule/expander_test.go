package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Routinely/internal/model"
	"Routinely/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExpandDaily(t *testing.T) {
	s := &model.Schedule{
		Pattern:   model.SchedulePatternDaily,
		TimeOfDay: "08:30",
	}

	// 2026-03-02 是周一
	occs, err := Expand(s, date(2026, 3, 2), date(2026, 3, 8), time.UTC)
	require.NoError(t, err)
	require.Len(t, occs, 7)

	for i, occ := range occs {
		assert.Equal(t, 8, occ.At.Hour())
		assert.Equal(t, 30, occ.At.Minute())
		assert.Equal(t, 2+i, occ.At.Day())
	}
}

func TestExpandWeekdaySplit(t *testing.T) {
	s := &model.Schedule{
		Pattern:     model.SchedulePatternWeekdaySplit,
		TimeOfDay:   "07:00",
		WeekendTime: "09:00",
	}

	occs, err := Expand(s, date(2026, 3, 2), date(2026, 3, 8), time.UTC)
	require.NoError(t, err)
	require.Len(t, occs, 7)

	var weekday, weekend int
	for _, occ := range occs {
		switch occ.At.Hour() {
		case 7:
			weekday++
		case 9:
			weekend++
		default:
			t.Fatalf("unexpected hour %d", occ.At.Hour())
		}
	}
	assert.Equal(t, 5, weekday)
	assert.Equal(t, 2, weekend)

	// 周六 (3/7) 和周日 (3/8) 应使用周末时间
	assert.Equal(t, 9, occs[5].At.Hour())
	assert.Equal(t, 9, occs[6].At.Hour())
}

func TestExpandWeekdaySet(t *testing.T) {
	s := &model.Schedule{
		Pattern:   model.SchedulePatternWeekdaySet,
		TimeOfDay: "20:00",
		Weekdays:  "1,3,5", // 周一、周三、周五
	}

	occs, err := Expand(s, date(2026, 3, 2), date(2026, 3, 8), time.UTC)
	require.NoError(t, err)
	require.Len(t, occs, 3)

	assert.Equal(t, 2, occs[0].At.Day())
	assert.Equal(t, 4, occs[1].At.Day())
	assert.Equal(t, 6, occs[2].At.Day())
}

func TestExpandRespectsEndDate(t *testing.T) {
	end := date(2026, 3, 4)
	s := &model.Schedule{
		Pattern:   model.SchedulePatternDaily,
		TimeOfDay: "10:00",
		EndDate:   &end,
	}

	occs, err := Expand(s, date(2026, 3, 2), date(2026, 3, 8), time.UTC)
	require.NoError(t, err)
	require.Len(t, occs, 3)
	assert.Equal(t, 4, occs[len(occs)-1].At.Day())
}

func TestExpandUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	s := &model.Schedule{
		Pattern:   model.SchedulePatternDaily,
		TimeOfDay: "08:00",
	}

	occs, err := Expand(s, date(2026, 3, 2), date(2026, 3, 2), loc)
	require.NoError(t, err)
	require.Len(t, occs, 1)

	// 上海 08:00 等于 UTC 00:00
	assert.Equal(t, 0, occs[0].At.UTC().Hour())
}

func TestExpandInvalidPattern(t *testing.T) {
	s := &model.Schedule{
		Pattern:   "yearly",
		TimeOfDay: "08:00",
	}

	_, err := Expand(s, date(2026, 3, 2), date(2026, 3, 8), time.UTC)
	require.Error(t, err)

	var nre *errors.NonRetryableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, errors.SchedulePatternInvalid.Code, nre.Code)
}

func TestExpandInvalidTime(t *testing.T) {
	s := &model.Schedule{
		Pattern:   model.SchedulePatternDaily,
		TimeOfDay: "25:99",
	}

	_, err := Expand(s, date(2026, 3, 2), date(2026, 3, 8), time.UTC)
	require.Error(t, err)

	var nre *errors.NonRetryableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, errors.ScheduleTimeInvalid.Code, nre.Code)
}

func TestExpandInvalidWeekdaySet(t *testing.T) {
	for _, raw := range []string{"", "0,1", "8", "abc"} {
		s := &model.Schedule{
			Pattern:   model.SchedulePatternWeekdaySet,
			TimeOfDay: "08:00",
			Weekdays:  raw,
		}
		_, err := Expand(s, date(2026, 3, 2), date(2026, 3, 8), time.UTC)
		assert.Error(t, err, "weekdays=%q", raw)
	}
}
