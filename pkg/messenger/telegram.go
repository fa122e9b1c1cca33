package messenger

import (
	"context"
	"errors"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramClient 基于 telebot 的 Telegram 投递通道。
// 只负责单条文本消息的发送与错误分类，限流重试由外层处理。
type TelegramClient struct {
	bot *tele.Bot
}

func NewTelegramClient(token string) (*TelegramClient, error) {
	b, err := tele.NewBot(tele.Settings{
		Token: token,
		// 纯发送通道，不拉取更新
		Offline: false,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramClient{bot: b}, nil
}

func (c *TelegramClient) Send(ctx context.Context, chatID int64, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.bot.Send(&tele.Chat{ID: chatID}, content, &tele.SendOptions{
		ParseMode: tele.ModeDefault,
	})
	if err == nil {
		return nil
	}
	return classifyTelegramError(err)
}

// classifyTelegramError 把 Bot API 错误翻译成瞬态/永久两类：
// 429 带 retry_after，5xx 与网络错误可重试，其余 4xx 视为永久失败。
func classifyTelegramError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &TransientError{
			Reason:     "telegram rate limited",
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return &TransientError{Reason: "telegram server error", Err: err}
		}
		return &PermanentError{Reason: "telegram rejected message", Err: err}
	}

	// 连接层错误（DNS、超时等）按瞬态处理
	return &TransientError{Reason: "telegram transport error", Err: err}
}
