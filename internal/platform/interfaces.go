// Package platform defines the narrow surface of the Discord API that the
// bot's components touch, plus the arikawa-backed implementation. Components
// depend on these interfaces so tests can substitute fakes.
package platform

import (
	"github.com/diamondburned/arikawa/v3/discord"
)

// Messenger sends messages on behalf of the bot.
type Messenger interface {
	// Send posts content to a channel. Content longer than the platform
	// limit is split into ordered chunks.
	Send(channelID discord.ChannelID, content string) error

	// SendEmbed posts an embed with optional plain content alongside it.
	SendEmbed(channelID discord.ChannelID, content string, embed discord.Embed) error

	// Reply posts content referencing an existing message. If the
	// referenced message is gone the content is sent freestanding,
	// prefixed with the speaker's name.
	Reply(channelID discord.ChannelID, ref discord.MessageID, speaker, content string) error

	// Typing triggers the typing indicator in a channel.
	Typing(channelID discord.ChannelID) error
}

// History reads channel message history.
type History interface {
	// MessagesBefore returns up to limit messages older than before,
	// newest first. A zero before means "start from the newest".
	MessagesBefore(channelID discord.ChannelID, before discord.MessageID, limit uint) ([]discord.Message, error)

	// Message fetches a single message.
	Message(channelID discord.ChannelID, messageID discord.MessageID) (*discord.Message, error)
}

// Roles looks up and mutates guild role membership.
type Roles interface {
	// Roles lists all roles in the guild.
	Roles(guildID discord.GuildID) ([]discord.Role, error)

	// AddRole grants a role to a member.
	AddRole(guildID discord.GuildID, userID discord.UserID, roleID discord.RoleID, reason string) error

	// RemoveRole revokes a role from a member. Revoking a role the member
	// does not hold is a no-op on the platform side.
	RemoveRole(guildID discord.GuildID, userID discord.UserID, roleID discord.RoleID, reason string) error
}

// Deleter removes messages.
type Deleter interface {
	// DeleteMessage removes one message.
	DeleteMessage(channelID discord.ChannelID, messageID discord.MessageID) error

	// DeleteMessages removes up to 100 recent messages in one call. Only
	// messages younger than the bulk-delete window are eligible.
	DeleteMessages(channelID discord.ChannelID, messageIDs []discord.MessageID) error
}

// Permissions resolves effective channel permissions.
type Permissions interface {
	Permissions(channelID discord.ChannelID, userID discord.UserID) (discord.Permissions, error)
}

// GuildState reads guild-level structure.
type GuildState interface {
	Channels(guildID discord.GuildID) ([]discord.Channel, error)
	ModifyChannelOverwrites(channelID discord.ChannelID, overwrites []discord.Overwrite) error
}
