package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo methods we use, enabling test mocks.
// Embeds go over the REST API; no gateway connection is opened.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// DiscordAdapter posts plan outcomes to a Discord channel as embeds.
type DiscordAdapter struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a DiscordAdapter.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscord creates a Discord adapter.
func NewDiscord(opts DiscordOpts) (*DiscordAdapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}
	a := &DiscordAdapter{channelID: opts.ChannelID}
	if opts.Session != nil {
		a.sess = opts.Session
	} else {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: create discord session: %w", err)
		}
		a.sess = dg
	}
	return a, nil
}

// Send posts the event as an embed.
func (a *DiscordAdapter) Send(ctx context.Context, ev Event) error {
	embed := &discordgo.MessageEmbed{
		Title: ev.Headline(),
		Color: severityColorInt(ev.Severity),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Project", Value: ev.ProjectID, Inline: true},
			{Name: "Join code", Value: ev.JoinCode, Inline: true},
			{Name: "Status", Value: ev.Status, Inline: true},
			{Name: "Trace", Value: ev.TraceID, Inline: true},
		},
	}
	if ev.ErrorCode != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Error", Value: ev.ErrorCode, Inline: true,
		})
	}

	_, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}

// Close releases the session.
func (a *DiscordAdapter) Close() error {
	return a.sess.Close()
}

func severityColorInt(severity string) int {
	switch severity {
	case SeveritySuccess:
		return 0x36a64f
	case SeverityError:
		return 0xd00000
	case SeverityWarning:
		return 0xe8a317
	default:
		return 0x95a5a6
	}
}
