package sink

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/nidhogg/vigil/internal/notify"
	"go.uber.org/zap"
)

// DiscordSink sends notifications to a Discord channel.
type DiscordSink struct {
	session   *discordgo.Session
	channelID string
	logger    *zap.Logger
}

// NewDiscordSink opens a Discord session for the bot token. The
// session is REST-only; no gateway intents are needed to send.
func NewDiscordSink(botToken, channelID string, logger *zap.Logger) (*DiscordSink, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordSink{
		session:   session,
		channelID: channelID,
		logger:    logger,
	}, nil
}

func (d *DiscordSink) Name() string { return "discord" }

// Deliver sends the notification as a channel message.
func (d *DiscordSink) Deliver(_ context.Context, n notify.Notification) error {
	text := fmt.Sprintf("**[%s/%s]** %s", n.Type, n.Priority, n.Message)
	if _, err := d.session.ChannelMessageSend(d.channelID, text); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	d.logger.Debug("notification sent to discord",
		zap.String("channel", d.channelID),
		zap.String("type", n.Type))
	return nil
}

// Close releases the Discord session.
func (d *DiscordSink) Close() error {
	return d.session.Close()
}
