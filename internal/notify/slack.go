package notify

import (
	"context"
	"fmt"

	"hostplane/internal/approvals"

	"github.com/slack-go/slack"
)

type NewSlackNotifierOpts struct {
	// BotToken is the `xoxb-` prefixed bot token
	BotToken string

	// ChannelId is the channel that receives all messages
	ChannelId string
}

func NewSlackNotifier(opts NewSlackNotifierOpts) (*SlackNotifier, error) {
	if opts.BotToken == "" {
		return nil, fmt.Errorf("failed to receive a bot token")
	}
	if opts.ChannelId == "" {
		return nil, fmt.Errorf("failed to receive a channel id")
	}
	return &SlackNotifier{
		channelId: opts.ChannelId,
		client:    slack.New(opts.BotToken),
	}, nil
}

type SlackNotifier struct {
	channelId string
	client    *slack.Client
}

func (s *SlackNotifier) NotifySubmitted(ctx context.Context, request *approvals.Request) error {
	blocks := slack.Blocks{
		BlockSet: []slack.Block{
			slack.NewHeaderBlock(
				slack.NewTextBlockObject("plain_text", "📥 New Approval Request", false, false),
			),
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Operation: `%s`", request.OperationType), false, false)),
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Requester: `%s`", request.RequesterId), false, false)),
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Risk: `%s`", request.RiskLevel), false, false)),
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Approvals needed: `%d`", request.RequiredApprovals), false, false)),
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Request ID: `%s`", request.Id), false, false)),
		},
	}
	if _, _, err := s.client.PostMessageContext(
		ctx,
		s.channelId,
		slack.MsgOptionBlocks(blocks.BlockSet...),
	); err != nil {
		return fmt.Errorf("failed to send slack message to channel[%s]: %w", s.channelId, err)
	}
	return nil
}

func (s *SlackNotifier) NotifyResolved(ctx context.Context, request *approvals.Request) error {
	if _, _, err := s.client.PostMessageContext(
		ctx,
		s.channelId,
		slack.MsgOptionText(summaryOf(request), false),
	); err != nil {
		return fmt.Errorf("failed to send slack message to channel[%s]: %w", s.channelId, err)
	}
	return nil
}
