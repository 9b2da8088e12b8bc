package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// discordMessageLimit is Discord's maximum message content length.
const discordMessageLimit = 2000

// channelSender is the part of *discordgo.Session the notifier uses.
type channelSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts messages to a channel through a bot account.
type Discord struct {
	sender    channelSender
	channelID string
}

// NewDiscord creates a [Discord] notifier for a bot token and channel.
//
// Only the REST API is used; no gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("notify: discord bot token is required")
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("discord: %w", ErrNoRecipients)
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{sender: dg, channelID: channelID}, nil
}

// Notify posts the subject in bold followed by the body.
func (d *Discord) Notify(ctx context.Context, msg Message) error {
	content := formatDiscord(msg)

	_, err := d.sender.ChannelMessageSendComplex(d.channelID, &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func formatDiscord(msg Message) string {
	var b strings.Builder
	if msg.Subject != "" {
		b.WriteString("**")
		b.WriteString(msg.Subject)
		b.WriteString("**")
	}
	if msg.Body != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(msg.Body)
	}

	content := b.String()
	if len(content) > discordMessageLimit {
		cut := discordMessageLimit - 3
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + "..."
	}
	return content
}
