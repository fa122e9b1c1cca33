package utils

import (
	"fmt"
	"time"
)

// ParseClock 解析 "HH:MM" 或 "HH:MM:SS" 格式的时刻字符串
func ParseClock(clock string) (time.Time, error) {
	if t, err := time.Parse("15:04", clock); err == nil {
		return t, nil
	}
	t, err := time.Parse("15:04:05", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock value %q: %w", clock, err)
	}
	return t, nil
}

// ParseTime 解析时刻字符串并应用到指定日期
func ParseTime(timeStr string, date time.Time) (time.Time, error) {
	if timeStr == "" {
		return date, nil
	}

	parsedTime, err := ParseClock(timeStr)
	if err != nil {
		return date, err
	}

	return time.Date(
		date.Year(),
		date.Month(),
		date.Day(),
		parsedTime.Hour(),
		parsedTime.Minute(),
		parsedTime.Second(),
		0,
		date.Location(),
	), nil
}

// MinutesOfDay 返回时刻在一天内的分钟数
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ISOWeekday 返回 ISO 星期编号，1=周一 .. 7=周日
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
