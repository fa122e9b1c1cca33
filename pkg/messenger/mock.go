package messenger

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"Routinely/pkg/logger"
)

// SentRecord 记录一次 mock 投递
type SentRecord struct {
	ChatID  int64
	Content string
}

// MockClient 本地开发与测试用的假通道：记录消息并可按序注入失败。
// MESSENGER_MOCK=true 时 worker 会用它替换 Telegram 通道。
type MockClient struct {
	mu       sync.Mutex
	sent     []SentRecord
	failures []error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Send(ctx context.Context, chatID int64, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}

	m.sent = append(m.sent, SentRecord{ChatID: chatID, Content: content})
	if logger.Logger != nil {
		logger.Logger.Info("[MOCK] message delivered",
			zap.Int64("chat_id", chatID),
			zap.String("content", content),
		)
	}
	return nil
}

// FailNext 注入下一次（或接下来几次）Send 的返回错误
func (m *MockClient) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Sent 返回已记录消息的副本
func (m *MockClient) Sent() []SentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentRecord, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.failures = nil
}
