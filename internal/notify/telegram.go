package notify

import (
	"context"
	"fmt"

	"hostplane/internal/approvals"

	"github.com/go-telegram/bot"
)

type NewTelegramNotifierOpts struct {
	// ApiToken is the token issued by BotFather
	ApiToken string

	// ChatId is the chat that receives all messages
	ChatId int64
}

func NewTelegramNotifier(opts NewTelegramNotifierOpts) (*TelegramNotifier, error) {
	if opts.ApiToken == "" {
		return nil, fmt.Errorf("failed to receive an api token")
	}
	if opts.ChatId == 0 {
		return nil, fmt.Errorf("failed to receive a chat id")
	}
	client, err := bot.New(opts.ApiToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{
		chatId: opts.ChatId,
		client: client,
	}, nil
}

type TelegramNotifier struct {
	chatId int64
	client *bot.Bot
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, message string) error {
	if _, err := t.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatId,
		Text:      bot.EscapeMarkdown(message),
		ParseMode: "MarkdownV2",
	}); err != nil {
		return fmt.Errorf("failed to send message to chat[%v]: %s", t.chatId, err)
	}
	return nil
}

func (t *TelegramNotifier) NotifySubmitted(ctx context.Context, request *approvals.Request) error {
	return t.sendMessage(ctx, "📥 New approval request\n"+summaryOf(request))
}

func (t *TelegramNotifier) NotifyResolved(ctx context.Context, request *approvals.Request) error {
	return t.sendMessage(ctx, "📤 Approval request resolved\n"+summaryOf(request))
}
