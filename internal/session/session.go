package session

// 聊天会话状态：webhook 多步交互的上下文（比如等用户回复延后分钟数）。
// 存 Redis，短 TTL，丢了就当会话过期，用户重新发起即可。

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Routinely/storage/redis"
)

const (
	sessionPrefix = "chat:session"
	sessionTTL    = 10 * time.Minute
)

// AwaitKind 会话在等待的用户输入类型
type AwaitKind string

const (
	AwaitNone            AwaitKind = ""
	AwaitPostponeMinutes AwaitKind = "postpone_minutes"
	AwaitQuietWindow     AwaitKind = "quiet_window"
)

// ChatSession 单个聊天的交互状态
type ChatSession struct {
	ChatID     int64     `json:"chat_id"`
	Await      AwaitKind `json:"await"`
	ReminderID int64     `json:"reminder_id,omitempty"` // Await 涉及的提醒
	UpdatedAt  time.Time `json:"updated_at"`
}

func key(chatID int64) string {
	return redis.Key(sessionPrefix, fmt.Sprintf("%d", chatID))
}

// Save 写入会话状态并刷新 TTL
func Save(ctx context.Context, s *ChatSession) error {
	s.UpdatedAt = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal chat session: %w", err)
	}
	return redis.Client().Set(ctx, key(s.ChatID), data, sessionTTL).Err()
}

// Load 读取会话状态，不存在时返回 nil
func Load(ctx context.Context, chatID int64) (*ChatSession, error) {
	data, err := redis.Client().Get(ctx, key(chatID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}

	var s ChatSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat session: %w", err)
	}
	return &s, nil
}

// Clear 清除会话状态
func Clear(ctx context.Context, chatID int64) error {
	return redis.Client().Del(ctx, key(chatID)).Err()
}
