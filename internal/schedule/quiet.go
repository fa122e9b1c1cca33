package schedule

// 免打扰窗口守卫：判断某个本地时间是否落在用户的免打扰窗口内，
// 以及窗口结束后的下一个可投递时间。投递任务在窗口内触发时不发送，
// 改到 NextEligible 重新排队，状态保持 pending。

import (
	"time"

	"Routinely/pkg/errors"
	"Routinely/utils"
)

// IsQuiet 判断本地时间 t 是否处于 [start, end] 免打扰窗口内。
// 窗口跨午夜（start > end，如 23:00–08:00）时：t ≥ start 或 t ≤ end 为安静；
// 否则 start ≤ t ≤ end 为安静。边界含端点。
func IsQuiet(t time.Time, startClock, endClock string) (bool, error) {
	start, err := utils.ParseClock(startClock)
	if err != nil {
		return false, errors.NewNonRetryableError(
			errors.QuietWindowInvalid.Code, errors.QuietWindowInvalid.Message, startClock)
	}
	end, err := utils.ParseClock(endClock)
	if err != nil {
		return false, errors.NewNonRetryableError(
			errors.QuietWindowInvalid.Code, errors.QuietWindowInvalid.Message, endClock)
	}

	cur := utils.MinutesOfDay(t)
	s := utils.MinutesOfDay(start)
	e := utils.MinutesOfDay(end)

	if s > e {
		// 跨午夜窗口覆盖两个日历日
		return cur >= s || cur <= e, nil
	}
	return cur >= s && cur <= e, nil
}

// NextEligible 返回 now 之后（含当下）最近的窗口结束时间。
// 今天的 endClock 已过则滚到明天。
func NextEligible(now time.Time, endClock string) (time.Time, error) {
	end, err := utils.ParseClock(endClock)
	if err != nil {
		return time.Time{}, errors.NewNonRetryableError(
			errors.QuietWindowInvalid.Code, errors.QuietWindowInvalid.Message, endClock)
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(),
		end.Hour(), end.Minute(), 0, 0, now.Location())

	if candidate.Before(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	return candidate, nil
}
