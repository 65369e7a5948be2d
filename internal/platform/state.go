package platform

import (
	"fmt"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/state"
	"go.uber.org/zap"
)

// Adapter implements the platform interfaces on top of an arikawa state.
type Adapter struct {
	state  *state.State
	logger *zap.Logger
}

// Compile-time interface checks.
var (
	_ Messenger   = (*Adapter)(nil)
	_ History     = (*Adapter)(nil)
	_ Roles       = (*Adapter)(nil)
	_ Deleter     = (*Adapter)(nil)
	_ Permissions = (*Adapter)(nil)
	_ GuildState  = (*Adapter)(nil)
)

// NewAdapter wraps an opened arikawa state.
func NewAdapter(s *state.State, logger *zap.Logger) *Adapter {
	return &Adapter{state: s, logger: logger}
}

// Send posts content, splitting it into ordered chunks when it exceeds
// the platform message limit.
func (a *Adapter) Send(channelID discord.ChannelID, content string) error {
	for _, chunk := range SplitMessage(content) {
		if _, err := a.state.SendMessage(channelID, chunk); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// SendEmbed posts an embed with optional plain content.
func (a *Adapter) SendEmbed(channelID discord.ChannelID, content string, embed discord.Embed) error {
	if _, err := a.state.SendMessage(channelID, content, embed); err != nil {
		return fmt.Errorf("send embed: %w", err)
	}
	return nil
}

// Reply posts content referencing ref. A vanished reference degrades to a
// freestanding message prefixed with the speaker's name; losing the reply
// framing must never lose the content.
func (a *Adapter) Reply(channelID discord.ChannelID, ref discord.MessageID, speaker, content string) error {
	chunks := SplitMessage(content)

	_, err := a.state.SendMessageComplex(channelID, api.SendMessageData{
		Content:   chunks[0],
		Reference: &discord.MessageReference{MessageID: ref},
	})
	if err != nil {
		if !IsNotFound(err) {
			return fmt.Errorf("send reply: %w", err)
		}
		a.logger.Warn("reply target vanished, sending freestanding",
			zap.String("channel_id", channelID.String()),
			zap.String("message_id", ref.String()))
		if sendErr := a.Send(channelID, fmt.Sprintf("%s: %s", speaker, content)); sendErr != nil {
			return sendErr
		}
		return nil
	}

	for _, chunk := range chunks[1:] {
		if _, err := a.state.SendMessage(channelID, chunk); err != nil {
			return fmt.Errorf("send reply continuation: %w", err)
		}
	}
	return nil
}

// Typing triggers the typing indicator.
func (a *Adapter) Typing(channelID discord.ChannelID) error {
	if err := a.state.Typing(channelID); err != nil {
		return fmt.Errorf("typing: %w", err)
	}
	return nil
}

// MessagesBefore pages backward through channel history.
func (a *Adapter) MessagesBefore(channelID discord.ChannelID, before discord.MessageID, limit uint) ([]discord.Message, error) {
	msgs, err := a.state.MessagesBefore(channelID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return msgs, nil
}

// Message fetches a single message, mapping a 404 to ErrNotFound.
func (a *Adapter) Message(channelID discord.ChannelID, messageID discord.MessageID) (*discord.Message, error) {
	msg, err := a.state.Message(channelID, messageID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	return msg, nil
}

// Roles lists the guild's roles.
func (a *Adapter) Roles(guildID discord.GuildID) ([]discord.Role, error) {
	roles, err := a.state.Roles(guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch roles: %w", err)
	}
	return roles, nil
}

// AddRole grants a role.
func (a *Adapter) AddRole(guildID discord.GuildID, userID discord.UserID, roleID discord.RoleID, reason string) error {
	err := a.state.AddRole(guildID, userID, roleID, api.AddRoleData{
		AuditLogReason: api.AuditLogReason(reason),
	})
	if err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	return nil
}

// RemoveRole revokes a role.
func (a *Adapter) RemoveRole(guildID discord.GuildID, userID discord.UserID, roleID discord.RoleID, reason string) error {
	err := a.state.RemoveRole(guildID, userID, roleID, api.AuditLogReason(reason))
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	return nil
}

// DeleteMessage removes one message.
func (a *Adapter) DeleteMessage(channelID discord.ChannelID, messageID discord.MessageID) error {
	if err := a.state.DeleteMessage(channelID, messageID, "bulk purge"); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// DeleteMessages removes a batch of recent messages.
func (a *Adapter) DeleteMessages(channelID discord.ChannelID, messageIDs []discord.MessageID) error {
	if err := a.state.DeleteMessages(channelID, messageIDs, "bulk purge"); err != nil {
		return fmt.Errorf("bulk delete: %w", err)
	}
	return nil
}

// Permissions resolves the effective permissions of a member in a channel.
func (a *Adapter) Permissions(channelID discord.ChannelID, userID discord.UserID) (discord.Permissions, error) {
	perms, err := a.state.Permissions(channelID, userID)
	if err != nil {
		return 0, fmt.Errorf("fetch permissions: %w", err)
	}
	return perms, nil
}

// Channels lists the guild's channels.
func (a *Adapter) Channels(guildID discord.GuildID) ([]discord.Channel, error) {
	chs, err := a.state.Channels(guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	return chs, nil
}

// ModifyChannelOverwrites replaces a channel's permission overwrites.
func (a *Adapter) ModifyChannelOverwrites(channelID discord.ChannelID, overwrites []discord.Overwrite) error {
	err := a.state.ModifyChannel(channelID, api.ModifyChannelData{
		Overwrites: &overwrites,
	})
	if err != nil {
		return fmt.Errorf("modify channel overwrites: %w", err)
	}
	return nil
}
