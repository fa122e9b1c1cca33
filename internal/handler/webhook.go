package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"Routinely/internal/model"
	"Routinely/internal/service"
	"Routinely/internal/session"
	apperrors "Routinely/pkg/errors"
	"Routinely/pkg/logger"
)

// Telegram webhook：用户对提醒消息的按钮回调与文本回复。
// 按钮数据格式 "{action}:{reminder_id}"，action ∈ complete|skip|postpone。
// webhook 必须快速返回 200，处理失败只记日志，Telegram 会重试。

type telegramChat struct {
	ID int64 `json:"id"`
}

type telegramMessage struct {
	Chat telegramChat `json:"chat"`
	Text string       `json:"text"`
}

type telegramCallback struct {
	Message *telegramMessage `json:"message"`
	Data    string           `json:"data"`
}

// TelegramUpdate Bot API 更新体，只解出需要的字段
type TelegramUpdate struct {
	UpdateID      int64             `json:"update_id"`
	Message       *telegramMessage  `json:"message"`
	CallbackQuery *telegramCallback `json:"callback_query"`
}

// TelegramWebhook 接收 Bot API 更新
func TelegramWebhook(ctx context.Context, c *app.RequestContext) {
	var update TelegramUpdate
	if err := c.Bind(&update); err != nil {
		// 解不开的更新直接 200，避免 Telegram 无限重投
		logger.Logger.Warn("Malformed telegram update", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		handleChatText(ctx, update.Message)
	}

	c.Status(http.StatusOK)
}

func handleCallback(ctx context.Context, cb *telegramCallback) {
	chatID := cb.Message.Chat.ID

	action, reminderID, ok := parseCallbackData(cb.Data)
	if !ok {
		logger.Logger.Warn("Unrecognized callback data",
			zap.Int64("chat_id", chatID),
			zap.String("data", cb.Data),
		)
		return
	}

	switch action {
	case "complete":
		reminder, err := service.Reminder().Complete(ctx, reminderID, model.ConfirmSourceUser)
		replyOutcome(ctx, chatID, reminder, err, "✅ Done! Nice work.")
	case "skip":
		reminder, err := service.Reminder().Skip(ctx, reminderID, model.ConfirmSourceUser)
		replyOutcome(ctx, chatID, reminder, err, "⏭ Skipped for this time.")
	case "postpone":
		reminder, err := service.Reminder().Postpone(ctx, reminderID, 0)
		if err == nil {
			replyText(ctx, chatID, fmt.Sprintf("⏰ Postponed to %s (%d left).",
				reminder.ScheduledFor.Format("15:04"), reminder.PostponesRemaining()))
			return
		}
		replyOutcome(ctx, chatID, nil, err, "")
	case "postpone_custom":
		// 等用户回复分钟数
		if err := session.Save(ctx, &session.ChatSession{
			ChatID:     chatID,
			Await:      session.AwaitPostponeMinutes,
			ReminderID: reminderID,
		}); err != nil {
			logger.Logger.Warn("Failed to save chat session", zap.Error(err))
			return
		}
		replyText(ctx, chatID, "How many minutes should I wait? Reply with a number.")
	}
}

func handleChatText(ctx context.Context, msg *telegramMessage) {
	chatID := msg.Chat.ID

	sess, err := session.Load(ctx, chatID)
	if err != nil {
		logger.Logger.Warn("Failed to load chat session",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
		return
	}
	if sess == nil || sess.Await != session.AwaitPostponeMinutes {
		return
	}

	minutes, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || minutes <= 0 {
		replyText(ctx, chatID, "That doesn't look like a number of minutes. Try again, e.g. 20.")
		return
	}

	if err := session.Clear(ctx, chatID); err != nil {
		logger.Logger.Warn("Failed to clear chat session", zap.Error(err))
	}

	reminder, err := service.Reminder().Postpone(ctx, sess.ReminderID, minutes)
	if err != nil {
		replyOutcome(ctx, chatID, nil, err, "")
		return
	}
	replyText(ctx, chatID, fmt.Sprintf("⏰ Postponed to %s (%d left).",
		reminder.ScheduledFor.Format("15:04"), reminder.PostponesRemaining()))
}

func replyOutcome(ctx context.Context, chatID int64, reminder *model.Reminder, err error, successText string) {
	switch err {
	case nil:
		if successText != "" {
			replyText(ctx, chatID, successText)
		}
	case apperrors.ReminderAlreadyTerminal:
		replyText(ctx, chatID, "This reminder was already resolved.")
	case apperrors.PostponeLimitReached:
		replyText(ctx, chatID, "No postpones left for this reminder.")
	case apperrors.ReminderNotFound:
		replyText(ctx, chatID, "I can't find that reminder anymore.")
	default:
		logger.Logger.Error("Webhook action failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func replyText(ctx context.Context, chatID int64, text string) {
	if err := service.Delivery().Notify(ctx, chatID, text); err != nil {
		logger.Logger.Warn("Failed to send webhook reply",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func parseCallbackData(data string) (string, int64, bool) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return parts[0], id, true
}
