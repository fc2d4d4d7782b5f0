// Package sink delivers notifications to external chat platforms.
// Sinks are best-effort: the mailbox logs failures and moves on.
package sink

import (
	"context"
	"fmt"

	"github.com/nidhogg/vigil/internal/notify"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackSink posts notifications to a Slack channel.
type SlackSink struct {
	client    *slack.Client
	channelID string
	logger    *zap.Logger
}

// NewSlackSink creates a sink posting to channelID with a bot token.
func NewSlackSink(botToken, channelID string, logger *zap.Logger) *SlackSink {
	return &SlackSink{
		client:    slack.New(botToken),
		channelID: channelID,
		logger:    logger,
	}
}

func (s *SlackSink) Name() string { return "slack" }

// Deliver posts the notification as a single channel message.
func (s *SlackSink) Deliver(ctx context.Context, n notify.Notification) error {
	text := fmt.Sprintf("[%s/%s] %s", n.Type, n.Priority, n.Message)
	_, _, err := s.client.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	s.logger.Debug("notification posted to slack",
		zap.String("channel", s.channelID),
		zap.String("type", n.Type))
	return nil
}
