package membership

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/diamondburned/arikawa/v3/discord"
	"go.uber.org/zap"

	"github.com/harukimoto/kosodate/internal/platform"
)

// Lifecycle role names.
const (
	RoleInfant  = "Infant"
	RoleToddler = "Toddler"
	RoleParent  = "Parent"
)

// mentionPattern strips user mention tokens before judging emptiness.
var mentionPattern = regexp.MustCompile(`<@!?\d+>`)

// StripMentions removes mention tokens and surrounding whitespace.
func StripMentions(content string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(content, ""))
}

// Machine drives the Infant -> Toddler promotion. It resolves the two
// lifecycle roles once after connecting; a missing role is a guild
// configuration error that disables promotion but never crashes message
// handling.
type Machine struct {
	roles      platform.Roles
	messenger  platform.Messenger
	classifier *Classifier
	logger     *zap.Logger

	guildID    discord.GuildID
	logChannel discord.ChannelID

	mu        sync.RWMutex
	infantID  discord.RoleID
	toddlerID discord.RoleID
	resolved  bool
}

// NewMachine wires the promotion machine.
func NewMachine(
	roles platform.Roles,
	messenger platform.Messenger,
	classifier *Classifier,
	guildID discord.GuildID,
	logChannel discord.ChannelID,
	logger *zap.Logger,
) *Machine {
	return &Machine{
		roles:      roles,
		messenger:  messenger,
		classifier: classifier,
		guildID:    guildID,
		logChannel: logChannel,
		logger:     logger,
	}
}

// ResolveRoles looks up the Infant and Toddler role IDs by name.
func (m *Machine) ResolveRoles() error {
	roles, err := m.roles.Roles(m.guildID)
	if err != nil {
		return fmt.Errorf("resolve lifecycle roles: %w", err)
	}

	var infant, toddler discord.RoleID
	for _, r := range roles {
		switch r.Name {
		case RoleInfant:
			infant = r.ID
		case RoleToddler:
			toddler = r.ID
		}
	}

	if !infant.IsValid() {
		return fmt.Errorf("%w: %s", platform.ErrRoleNotFound, RoleInfant)
	}
	if !toddler.IsValid() {
		return fmt.Errorf("%w: %s", platform.ErrRoleNotFound, RoleToddler)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.infantID = infant
	m.toddlerID = toddler
	m.resolved = true
	return nil
}

// HandleJoin grants Infant to the new member and announces the arrival.
func (m *Machine) HandleJoin(member discord.Member) {
	m.logger.Info("member joined",
		zap.String("user_id", member.User.ID.String()),
		zap.String("username", member.User.Username))

	infant, _, ok := m.roleIDs()
	if !ok {
		m.logger.Error("lifecycle roles unresolved, skipping join grant",
			zap.String("user_id", member.User.ID.String()))
		return
	}

	if err := m.roles.AddRole(m.guildID, member.User.ID, infant, "new member onboarding"); err != nil {
		m.logger.Error("failed to grant Infant on join",
			zap.String("user_id", member.User.ID.String()),
			zap.Error(err))
		return
	}

	welcome := fmt.Sprintf("%s joined the server! Hello Baby!", member.User.ID.Mention())
	if err := m.messenger.Send(m.logChannel, welcome); err != nil {
		m.logger.Error("failed to send welcome notification", zap.Error(err))
	}
}

// HandleMessage fires the Infant -> Toddler transition when a qualifying
// first public message arrives. Non-qualifying messages are ignored
// silently; this handler sees every guild message.
func (m *Machine) HandleMessage(msg discord.Message, member *discord.Member) {
	if member == nil || msg.Author.Bot {
		return
	}
	if !m.classifier.IsPublic(msg.ChannelID) {
		return
	}
	if StripMentions(msg.Content) == "" {
		return
	}

	infant, toddler, ok := m.roleIDs()
	if !ok {
		m.logger.Error("lifecycle roles unresolved, skipping promotion check",
			zap.String("user_id", msg.Author.ID.String()))
		return
	}
	if !hasRole(member.RoleIDs, infant) {
		return
	}

	m.logger.Info("first public message, promoting",
		zap.String("user_id", msg.Author.ID.String()),
		zap.String("display_name", displayName(msg.Author, member)))

	if err := m.roles.AddRole(m.guildID, msg.Author.ID, toddler, "first public message"); err != nil {
		m.logger.Error("failed to grant Toddler", zap.Error(err))
		return
	}
	// Revoking an already-absent role is a platform no-op, so a racing
	// double fire cannot error here.
	if err := m.roles.RemoveRole(m.guildID, msg.Author.ID, infant, "promoted to Toddler"); err != nil {
		m.logger.Error("failed to revoke Infant", zap.Error(err))
	}

	note := fmt.Sprintf("%s said their first word! They are Toddler now! %s",
		msg.Author.ID.Mention(), messageLink(m.guildID, msg.ChannelID, msg.ID))
	if err := m.messenger.Send(m.logChannel, note); err != nil {
		m.logger.Error("failed to send promotion notification", zap.Error(err))
	}
}

func (m *Machine) roleIDs() (infant, toddler discord.RoleID, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.infantID, m.toddlerID, m.resolved
}

func hasRole(roleIDs []discord.RoleID, id discord.RoleID) bool {
	for _, r := range roleIDs {
		if r == id {
			return true
		}
	}
	return false
}

func displayName(user discord.User, member *discord.Member) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Username
}

func messageLink(guild discord.GuildID, channel discord.ChannelID, msg discord.MessageID) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, channel, msg)
}
