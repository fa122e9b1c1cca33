package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 提醒生命周期错误。
var (
	ReminderNotFound        = Definition{Code: "REMINDER_NOT_FOUND", Message: "Reminder not found"}
	ReminderAlreadyTerminal = Definition{Code: "REMINDER_ALREADY_TERMINAL", Message: "Reminder already completed, skipped or cancelled"}
	PostponeLimitReached    = Definition{Code: "POSTPONE_LIMIT_REACHED", Message: "Postpone limit reached"}
	PostponeMinutesInvalid  = Definition{Code: "POSTPONE_MINUTES_INVALID", Message: "Postpone minutes must be positive"}
)

// 日程与生成错误。
var (
	RoutineNotFound        = Definition{Code: "ROUTINE_NOT_FOUND", Message: "Routine not found"}
	RoutineInactive        = Definition{Code: "ROUTINE_INACTIVE", Message: "Routine is deactivated"}
	SchedulePatternInvalid = Definition{Code: "SCHEDULE_PATTERN_INVALID", Message: "Schedule pattern invalid"}
	ScheduleTimeInvalid    = Definition{Code: "SCHEDULE_TIME_INVALID", Message: "Schedule time-of-day invalid"}
	QuietWindowInvalid     = Definition{Code: "QUIET_WINDOW_INVALID", Message: "Quiet-hours window invalid"}
)

// 通用错误。
var (
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	UserNotFound    = Definition{Code: "USER_NOT_FOUND", Message: "User not found"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	ReminderNotFound.Code:        ReminderNotFound,
	ReminderAlreadyTerminal.Code: ReminderAlreadyTerminal,
	PostponeLimitReached.Code:    PostponeLimitReached,
	PostponeMinutesInvalid.Code:  PostponeMinutesInvalid,
	RoutineNotFound.Code:         RoutineNotFound,
	RoutineInactive.Code:         RoutineInactive,
	SchedulePatternInvalid.Code:  SchedulePatternInvalid,
	ScheduleTimeInvalid.Code:     ScheduleTimeInvalid,
	QuietWindowInvalid.Code:      QuietWindowInvalid,
	TooManyRequests.Code:         TooManyRequests,
	InvalidRequest.Code:          InvalidRequest,
	UserNotFound.Code:            UserNotFound,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
