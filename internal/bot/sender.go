package bot

import (
	"context"
	"errors"
	"sync/atomic"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/fakto/crmbot/core/logger"
	"github.com/fakto/crmbot/core/telegram/keyboard"
	tgsender "github.com/fakto/crmbot/core/telegram/sender"
	"github.com/fakto/crmbot/internal/conversation"
)

// ErrNotBound is returned when a send is attempted before the bot
// instance exists.
var ErrNotBound = errors.New("bot: sender not bound")

// TelegramSender delivers conversation effects through the async
// dispatcher. A chat that blocked the bot is a silent drop, not a
// failure: retrying cannot help and the conversation must go on.
type TelegramSender struct {
	bot        atomic.Pointer[tele.Bot]
	dispatcher *tgsender.Dispatcher
}

// NewTelegramSender creates a sender that enqueues through the given
// dispatcher. Bind must be called before the first send.
func NewTelegramSender(d *tgsender.Dispatcher) *TelegramSender {
	return &TelegramSender{dispatcher: d}
}

// Bind attaches the running bot instance.
func (s *TelegramSender) Bind(b *tele.Bot) {
	s.bot.Store(b)
}

// Send implements conversation.Sender.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, msg conversation.Message) error {
	b := s.bot.Load()
	if b == nil {
		return ErrNotBound
	}

	opts := &tele.SendOptions{}
	if msg.Markdown {
		opts.ParseMode = tele.ModeMarkdown
	}
	switch {
	case len(msg.Inline) > 0:
		opts.ReplyMarkup = inlineMarkup(msg.Inline)
	case len(msg.Keyboard) > 0:
		opts.ReplyMarkup = keyboard.ReplyButtons(msg.Keyboard...)
	case msg.RemoveKeyboard:
		opts.ReplyMarkup = keyboard.RemoveKeyboard()
	}

	recipient := &tele.Chat{ID: chatID}
	run := func() error {
		_, err := b.Send(recipient, msg.Text, opts)
		if errors.Is(err, tele.ErrBlockedByUser) {
			logger.Info(ctx, "tg.sender", "send.blocked",
				slog.Int64("chat_id", chatID),
			)
			return nil
		}
		return err
	}

	if s.dispatcher == nil {
		return run()
	}
	if err := s.dispatcher.Enqueue(ctx, "conversation.send", "sendMessage", run); err != nil {
		switch {
		case errors.Is(err, tgsender.ErrQueueFull):
			// An inline send could overtake messages already queued, so
			// wait for a slot instead.
			logger.Warn(ctx, "tg.sender", "queue.wait",
				slog.Int64("chat_id", chatID),
			)
			return s.dispatcher.EnqueueWait(ctx, "conversation.send", "sendMessage", run)
		case errors.Is(err, tgsender.ErrQueueClosed):
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.Int64("chat_id", chatID),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

func inlineMarkup(rows [][]conversation.InlineButton) *tele.ReplyMarkup {
	out := make([][]keyboard.InlineBtn, len(rows))
	for i, row := range rows {
		r := make([]keyboard.InlineBtn, len(row))
		for j, btn := range row {
			r[j] = keyboard.InlineBtn{Text: btn.Text, Unique: btn.Key, Data: btn.Payload}
		}
		out[i] = r
	}
	return keyboard.InlineButtonsRows(out...)
}
