// Package collector re-posts emoji-reacted messages into curated
// collection channels. Only the first qualifying reaction on a message
// triggers a citation.
package collector

import (
	"fmt"

	"github.com/diamondburned/arikawa/v3/discord"
	"go.uber.org/zap"

	"github.com/harukimoto/kosodate/internal/platform"
)

// citationColor is the embed accent used for collected messages.
const citationColor = 0xF1C40F

// Collector routes reactions to destination channels by emoji name.
// The route table is static; channel names are resolved once after the
// gateway connection is established.
type Collector struct {
	history   platform.History
	messenger platform.Messenger
	logger    *zap.Logger

	guildID discord.GuildID
	routes  map[string]discord.ChannelID
	names   map[discord.ChannelID]string
}

// New wires a collector with a fixed emoji -> destination mapping.
func New(
	history platform.History,
	messenger platform.Messenger,
	guildID discord.GuildID,
	routes map[string]discord.ChannelID,
	logger *zap.Logger,
) *Collector {
	return &Collector{
		history:   history,
		messenger: messenger,
		guildID:   guildID,
		routes:    routes,
		names:     make(map[discord.ChannelID]string),
		logger:    logger,
	}
}

// SetChannels caches channel names for citation headers.
func (c *Collector) SetChannels(channels []discord.Channel) {
	names := make(map[discord.ChannelID]string, len(channels))
	for _, ch := range channels {
		names[ch.ID] = ch.Name
	}
	c.names = names
}

// HandleReaction processes one reaction-added event. Unknown emoji are
// ignored; a message whose matching reaction count exceeds one has
// already been collected by an earlier reactor and is skipped.
func (c *Collector) HandleReaction(channelID discord.ChannelID, messageID discord.MessageID, emoji discord.Emoji, reactor *discord.Member) {
	dest, ok := c.routes[emoji.Name]
	if !ok {
		return
	}

	msg, err := c.history.Message(channelID, messageID)
	if err != nil {
		if platform.IsNotFound(err) {
			c.logger.Warn("reacted-to message vanished before collection",
				zap.String("channel_id", channelID.String()),
				zap.String("message_id", messageID.String()))
			return
		}
		c.logger.Error("failed to fetch reacted-to message", zap.Error(err))
		return
	}

	if countReactions(msg, emoji) > 1 {
		c.logger.Debug("message already collected, skipping",
			zap.String("message_id", messageID.String()),
			zap.String("emoji", emoji.Name))
		return
	}

	embed := c.buildCitation(msg, reactor)
	mention := fmt.Sprintf("%s %s", emoji.Name, msg.Author.ID.Mention())
	if err := c.messenger.SendEmbed(dest, mention, embed); err != nil {
		c.logger.Error("failed to send citation",
			zap.String("destination", dest.String()),
			zap.Error(err))
		return
	}

	c.logger.Info("collected message",
		zap.String("message_id", messageID.String()),
		zap.String("emoji", emoji.Name),
		zap.String("destination", dest.String()))
}

// countReactions returns the current count of the given emoji on msg.
func countReactions(msg *discord.Message, emoji discord.Emoji) int {
	for _, r := range msg.Reactions {
		if r.Emoji.Name == emoji.Name && r.Emoji.ID == emoji.ID {
			return r.Count
		}
	}
	return 0
}

// buildCitation renders the original message as a rich embed: origin
// channel, permalink, author identity, first attachment, and the
// collecting member as attribution.
func (c *Collector) buildCitation(msg *discord.Message, reactor *discord.Member) discord.Embed {
	embed := discord.Embed{
		Title: "#" + c.channelName(msg.ChannelID),
		URL: fmt.Sprintf("https://discord.com/channels/%s/%s/%s",
			c.guildID, msg.ChannelID, msg.ID),
		// Content may legitimately be empty, e.g. an attachment-only post.
		Description: msg.Content,
		Color:       citationColor,
		Timestamp:   msg.Timestamp,
		Author: &discord.EmbedAuthor{
			Name: authorName(msg),
			Icon: msg.Author.AvatarURL(),
		},
	}

	if len(msg.Attachments) > 0 {
		embed.Image = &discord.EmbedImage{URL: msg.Attachments[0].URL}
	}

	if reactor != nil {
		embed.Footer = &discord.EmbedFooter{
			Text: fmt.Sprintf("collected by %s", memberName(reactor)),
		}
	}

	return embed
}

func (c *Collector) channelName(id discord.ChannelID) string {
	if name, ok := c.names[id]; ok {
		return name
	}
	return id.String()
}

func authorName(msg *discord.Message) string {
	if msg.Author.DisplayName != "" {
		return msg.Author.DisplayName
	}
	return msg.Author.Username
}

func memberName(m *discord.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.DisplayName != "" {
		return m.User.DisplayName
	}
	return m.User.Username
}
