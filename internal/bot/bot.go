package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Bot is the Telegram front end: every chat command maps to one engine call.
type Bot struct {
	Instance *telego.Bot
	Service  Service
	Logger   *slog.Logger
}

func NewBot(token string, svc Service, logger *slog.Logger) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bot{
		Instance: tgBot,
		Service:  svc,
		Logger:   logger,
	}, nil
}

func menu() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🤝 Send help").WithCallbackData("sendhelp"),
			tu.InlineKeyboardButton("👤 Status").WithCallbackData("status"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🔓 Unblock").WithCallbackData("unblock"),
		),
	)
}

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}
	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create update handler: %w", err)
	}

	// Commands
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if message.From == nil {
			return nil
		}
		u := User{ID: message.From.ID, FirstName: message.From.FirstName}
		reply := Reply(ctx.Context(), b.Service, u, message.Text)
		b.Logger.Debug("chat command handled", "telegram_id", u.ID, "text", message.Text)

		msg := tu.Message(tu.ID(message.Chat.ID), reply)
		if cmd, _ := splitCommand(message.Text); cmd == "start" {
			msg = msg.WithReplyMarkup(menu())
		}
		if _, err := ctx.Bot().SendMessage(ctx.Context(), msg); err != nil {
			b.Logger.Error("failed to send reply", "telegram_id", u.ID, "error", err)
		}
		return nil
	}, th.AnyCommand())

	// Menu buttons run the command of the same name.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		u := User{ID: callback.From.ID, FirstName: callback.From.FirstName}
		reply := Reply(ctx.Context(), b.Service, u, "/"+callback.Data)

		if _, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(u.ID), reply)); err != nil {
			b.Logger.Error("failed to send reply", "telegram_id", u.ID, "error", err)
		}
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.Or(th.CallbackDataEqual("sendhelp"), th.CallbackDataEqual("status"), th.CallbackDataEqual("unblock")))

	b.Logger.Info("telegram bot started")
	handler.Start()
	return nil
}
