package model

import "fmt"

// 任务键是确定性的：同一逻辑目的只会有一个键，取消与幂等入队都靠它。

// DeliverJobKey 投递任务键 deliver:{reminderId}
func DeliverJobKey(reminderID int64) string {
	return fmt.Sprintf("deliver:%d", reminderID)
}

// EscalateJobKey 升级任务键 escalate:{reminderId}:{level}，level ∈ 1..3
func EscalateJobKey(reminderID int64, level int) string {
	return fmt.Sprintf("escalate:%d:%d", reminderID, level)
}

// DeliverMessage 投递任务消息（延迟消息）。
// PostponeCount 是入队时提醒的延后计数快照：broker 里的旧消息删不掉，
// 延后重排后旧消息触发时快照对不上，消费侧直接作废。
type DeliverMessage struct {
	MessageID     string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	JobKey        string `json:"job_key"`
	ReminderID    int64  `json:"reminder_id"`
	UserID        int64  `json:"user_id"`
	PostponeCount int    `json:"postpone_count"`
	ScheduledAt   string `json:"scheduled_at"` // 投递计划时间，RFC3339
	DelaySeconds  int    `json:"delay_seconds"`
}

// EscalateMessage 升级任务消息（延迟消息），level 3 表示自动跳过
type EscalateMessage struct {
	MessageID     string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	JobKey        string `json:"job_key"`
	ReminderID    int64  `json:"reminder_id"`
	UserID        int64  `json:"user_id"`
	Level         int    `json:"level"` // 1,2,3
	PostponeCount int    `json:"postpone_count"`
	ScheduledAt   string `json:"scheduled_at"`
	DelaySeconds  int    `json:"delay_seconds"`
}

// EventMessage 事件消息（用于事件总线，外部积分/成就服务消费）
type EventMessage struct {
	Payload    map[string]interface{} `json:"payload"`
	EventKey   string                 `json:"event_key"`
	EventType  string                 `json:"event_type"`
	OccurredAt string                 `json:"occurred_at"`
}
