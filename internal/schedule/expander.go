package schedule

// 日程展开器：把重复定义在给定日期范围内展开成具体的 (日期, 时刻) 序列。
// 纯函数，不触库；由 service 层驱动时对每个产出做 upsert。

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"Routinely/internal/model"
	"Routinely/pkg/errors"
	"Routinely/utils"
)

// Occurrence 一次具体的提醒发生
type Occurrence struct {
	Date time.Time // 日期（当地零点）
	At   time.Time // 合成后的投递时间点
}

// Expand 按模式展开 [from, to] 闭区间内的所有发生，结果按时间升序。
// 超过 Schedule 结束日期的日期被跳过。
// 非法的 pattern 或时刻值属于配置错误，返回 NonRetryableError，不应重试。
func Expand(s *model.Schedule, from, to time.Time, loc *time.Location) ([]Occurrence, error) {
	if !s.Pattern.Valid() {
		return nil, errors.NewNonRetryableError(
			errors.SchedulePatternInvalid.Code,
			errors.SchedulePatternInvalid.Message,
			string(s.Pattern),
		)
	}

	if _, err := utils.ParseClock(s.TimeOfDay); err != nil {
		return nil, errors.NewNonRetryableError(
			errors.ScheduleTimeInvalid.Code,
			errors.ScheduleTimeInvalid.Message,
			s.TimeOfDay,
		)
	}

	var weekdaySet map[int]bool
	switch s.Pattern {
	case model.SchedulePatternWeekdaySplit:
		if _, err := utils.ParseClock(s.WeekendTime); err != nil {
			return nil, errors.NewNonRetryableError(
				errors.ScheduleTimeInvalid.Code,
				errors.ScheduleTimeInvalid.Message,
				s.WeekendTime,
			)
		}
	case model.SchedulePatternWeekdaySet:
		var err error
		weekdaySet, err = parseWeekdaySet(s.Weekdays)
		if err != nil {
			return nil, err
		}
	}

	if loc == nil {
		loc = time.UTC
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)

	var out []Occurrence
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if s.EndDate != nil {
			endDate := time.Date(s.EndDate.Year(), s.EndDate.Month(), s.EndDate.Day(), 0, 0, 0, 0, loc)
			if day.After(endDate) {
				break
			}
		}

		clock, include := clockFor(s, day, weekdaySet)
		if !include {
			continue
		}

		at, err := utils.ParseTime(clock, day)
		if err != nil {
			return nil, errors.NewNonRetryableError(
				errors.ScheduleTimeInvalid.Code,
				errors.ScheduleTimeInvalid.Message,
				clock,
			)
		}

		out = append(out, Occurrence{Date: day, At: at})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// clockFor 返回该日期应使用的时刻值以及该日期是否产出
func clockFor(s *model.Schedule, day time.Time, weekdaySet map[int]bool) (string, bool) {
	switch s.Pattern {
	case model.SchedulePatternDaily:
		return s.TimeOfDay, true

	case model.SchedulePatternWeekdaySplit:
		wd := utils.ISOWeekday(day)
		if wd >= 6 { // 周六、周日
			return s.WeekendTime, true
		}
		return s.TimeOfDay, true

	case model.SchedulePatternWeekdaySet:
		if weekdaySet[utils.ISOWeekday(day)] {
			return s.TimeOfDay, true
		}
		return "", false
	}

	return "", false
}

// parseWeekdaySet 解析逗号分隔的 1..7 集合（1=周一）
func parseWeekdaySet(raw string) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 7 {
			return nil, errors.NewNonRetryableError(
				errors.SchedulePatternInvalid.Code,
				"weekday set entries must be 1..7",
				raw,
			)
		}
		set[n] = true
	}

	if len(set) == 0 {
		return nil, errors.NewNonRetryableError(
			errors.SchedulePatternInvalid.Code,
			"weekday set is empty",
			raw,
		)
	}

	return set, nil
}
