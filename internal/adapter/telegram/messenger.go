package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

// Messenger sends replies, reactions and operator alerts.
type Messenger struct {
	api        API
	operatorID int64
	maxElapsed time.Duration
	initial    time.Duration
}

var (
	_ domain.Messenger = (*Messenger)(nil)
	_ domain.Notifier  = (*Messenger)(nil)
)

// NewMessenger returns a Messenger. operatorID 0 disables operator alerts.
func NewMessenger(api API, operatorID int64, maxElapsed, initial time.Duration) *Messenger {
	return &Messenger{api: api, operatorID: operatorID, maxElapsed: maxElapsed, initial: initial}
}

func (m *Messenger) call(ctx context.Context, method string, params tgbotapi.Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.api.MakeRequest(method, params)
	observability.TelegramCall(method, err)
	if err != nil {
		return fmt.Errorf("op=telegram.%s: %w", method, err)
	}
	return nil
}

// SendText posts Markdown and retries as plain text when Telegram rejects
// the markup.
func (m *Messenger) SendText(ctx context.Context, chatID, threadID int64, replyTo int, text string) error {
	params := tgbotapi.Params{"text": text, "parse_mode": tgbotapi.ModeMarkdown}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("message_thread_id", threadID)
	params.AddNonZero("reply_to_message_id", replyTo)
	params.AddBool("allow_sending_without_reply", true)
	params.AddBool("disable_web_page_preview", true)

	err := m.call(ctx, "sendMessage", params)
	var apiErr *tgbotapi.Error
	if err != nil && errors.As(err, &apiErr) && apiErr.Code == 400 {
		observability.LoggerFromContext(ctx).Warn("markdown rejected, resending as plain text",
			slog.String("error", apiErr.Message))
		delete(params, "parse_mode")
		err = m.call(ctx, "sendMessage", params)
	}
	return err
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// SendReaction sets a single emoji reaction on a message.
func (m *Messenger) SendReaction(ctx context.Context, chatID int64, messageID int, emoji string) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", messageID)
	if err := params.AddInterface("reaction", []reactionType{{Type: "emoji", Emoji: emoji}}); err != nil {
		return fmt.Errorf("op=telegram.setMessageReaction: %w", err)
	}
	return m.call(ctx, "setMessageReaction", params)
}

// SendTyping shows the typing indicator for about five seconds.
func (m *Messenger) SendTyping(ctx context.Context, chatID, threadID int64) error {
	params := tgbotapi.Params{"action": tgbotapi.ChatTyping}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("message_thread_id", threadID)
	return m.call(ctx, "sendChatAction", params)
}

// LeaveChat makes the bot leave a group.
func (m *Messenger) LeaveChat(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.api.Request(tgbotapi.LeaveChatConfig{ChatID: chatID})
	observability.TelegramCall("leaveChat", err)
	if err != nil {
		return fmt.Errorf("op=telegram.leaveChat: %w", err)
	}
	return nil
}

// NotifyOperator delivers a plain-text alert to the operator's private chat,
// retrying with exponential backoff.
func (m *Messenger) NotifyOperator(ctx context.Context, text string) error {
	if m.operatorID == 0 {
		return nil
	}
	params := tgbotapi.Params{"text": text}
	params.AddNonZero64("chat_id", m.operatorID)
	params.AddBool("disable_web_page_preview", true)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = m.initial
	eb.MaxElapsedTime = m.maxElapsed
	op := func() error {
		err := m.call(ctx, "sendMessage", params)
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 400 {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(eb, ctx)); err != nil {
		observability.LoggerFromContext(ctx).Error("operator notification failed", slog.Any("error", err))
		return err
	}
	return nil
}
