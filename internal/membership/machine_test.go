package membership

import (
	"fmt"
	"strings"
	"testing"

	"github.com/diamondburned/arikawa/v3/discord"
	"go.uber.org/zap"
)

const (
	testGuild   = discord.GuildID(1030501230797131887)
	testLogCh   = discord.ChannelID(1148894899358404618)
	testPubCh   = discord.ChannelID(200)
	testPrivCh  = discord.ChannelID(201)
	infantRole  = discord.RoleID(11)
	toddlerRole = discord.RoleID(12)
)

type roleChange struct {
	user discord.UserID
	role discord.RoleID
}

type fakeRoles struct {
	roles    []discord.Role
	rolesErr error
	added    []roleChange
	removed  []roleChange
	addErr   error
}

func (f *fakeRoles) Roles(discord.GuildID) ([]discord.Role, error) {
	return f.roles, f.rolesErr
}

func (f *fakeRoles) AddRole(_ discord.GuildID, user discord.UserID, role discord.RoleID, _ string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, roleChange{user, role})
	return nil
}

func (f *fakeRoles) RemoveRole(_ discord.GuildID, user discord.UserID, role discord.RoleID, _ string) error {
	f.removed = append(f.removed, roleChange{user, role})
	return nil
}

type fakeMessenger struct {
	sent    []string
	sendErr error
}

func (f *fakeMessenger) Send(_ discord.ChannelID, content string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeMessenger) SendEmbed(_ discord.ChannelID, content string, _ discord.Embed) error {
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeMessenger) Reply(_ discord.ChannelID, _ discord.MessageID, _, content string) error {
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeMessenger) Typing(discord.ChannelID) error { return nil }

func newTestMachine(t *testing.T) (*Machine, *fakeRoles, *fakeMessenger) {
	t.Helper()

	roles := &fakeRoles{roles: []discord.Role{
		{ID: infantRole, Name: RoleInfant},
		{ID: toddlerRole, Name: RoleToddler},
		{ID: discord.RoleID(13), Name: RoleParent},
	}}
	messenger := &fakeMessenger{}

	classifier := NewClassifier()
	classifier.Classify([]discord.Channel{
		{ID: testPubCh, Type: discord.GuildText},
		{ID: testPrivCh, Type: discord.GuildText, Overwrites: []discord.Overwrite{{}}},
	})

	m := NewMachine(roles, messenger, classifier, testGuild, testLogCh, zap.NewNop())
	if err := m.ResolveRoles(); err != nil {
		t.Fatalf("ResolveRoles() failed: %v", err)
	}
	return m, roles, messenger
}

func member(id discord.UserID, bot bool, roleIDs ...discord.RoleID) (discord.Message, *discord.Member) {
	user := discord.User{ID: id, Username: "taro", Bot: bot}
	msg := discord.Message{
		ID:        discord.MessageID(9000),
		ChannelID: testPubCh,
		GuildID:   testGuild,
		Author:    user,
		Content:   "hello world",
	}
	return msg, &discord.Member{User: user, RoleIDs: roleIDs}
}

func TestHandleJoin(t *testing.T) {
	m, roles, messenger := newTestMachine(t)

	m.HandleJoin(discord.Member{User: discord.User{ID: 42, Username: "taro"}})

	if len(roles.added) != 1 || roles.added[0].role != infantRole {
		t.Fatalf("added = %+v, want single Infant grant", roles.added)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("sent %d notifications, want exactly 1", len(messenger.sent))
	}
	if !strings.Contains(messenger.sent[0], "Hello Baby") {
		t.Errorf("welcome = %q, missing greeting", messenger.sent[0])
	}
}

func TestPromotionOnFirstPublicMessage(t *testing.T) {
	m, roles, messenger := newTestMachine(t)

	msg, mem := member(42, false, infantRole)
	m.HandleMessage(msg, mem)

	if len(roles.added) != 1 || roles.added[0].role != toddlerRole {
		t.Fatalf("added = %+v, want single Toddler grant", roles.added)
	}
	if len(roles.removed) != 1 || roles.removed[0].role != infantRole {
		t.Fatalf("removed = %+v, want single Infant revoke", roles.removed)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("sent %d notifications, want exactly 1", len(messenger.sent))
	}
	if !strings.Contains(messenger.sent[0], "first word") {
		t.Errorf("notification = %q, missing promotion text", messenger.sent[0])
	}
	if !strings.Contains(messenger.sent[0], "https://discord.com/channels/") {
		t.Errorf("notification = %q, missing message link", messenger.sent[0])
	}
}

func TestPromotionIsIdempotentPastFirstTransition(t *testing.T) {
	m, roles, messenger := newTestMachine(t)

	msg, mem := member(42, false, infantRole)
	m.HandleMessage(msg, mem)

	// After promotion the member no longer carries Infant; a second
	// qualifying message must do nothing.
	msg2, mem2 := member(42, false, toddlerRole)
	m.HandleMessage(msg2, mem2)

	if len(roles.added) != 1 {
		t.Errorf("added = %+v, want exactly one grant total", roles.added)
	}
	if len(messenger.sent) != 1 {
		t.Errorf("sent %d notifications, want exactly 1", len(messenger.sent))
	}
}

func TestPromotionSkips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*discord.Message, *discord.Member)
	}{
		{
			name:   "bot author",
			mutate: func(msg *discord.Message, mem *discord.Member) { msg.Author.Bot = true },
		},
		{
			name:   "private channel",
			mutate: func(msg *discord.Message, _ *discord.Member) { msg.ChannelID = testPrivCh },
		},
		{
			name:   "mention-only content",
			mutate: func(msg *discord.Message, _ *discord.Member) { msg.Content = " <@123> <@!456> " },
		},
		{
			name:   "author not Infant",
			mutate: func(_ *discord.Message, mem *discord.Member) { mem.RoleIDs = []discord.RoleID{toddlerRole} },
		},
		{
			name:   "no member payload",
			mutate: func(_ *discord.Message, _ *discord.Member) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, roles, messenger := newTestMachine(t)

			msg, mem := member(42, false, infantRole)
			tt.mutate(&msg, mem)
			if tt.name == "no member payload" {
				mem = nil
			}
			m.HandleMessage(msg, mem)

			if len(roles.added) != 0 {
				t.Errorf("added = %+v, want none", roles.added)
			}
			if len(messenger.sent) != 0 {
				t.Errorf("sent = %+v, want none", messenger.sent)
			}
		})
	}
}

func TestResolveRolesMissingRole(t *testing.T) {
	roles := &fakeRoles{roles: []discord.Role{{ID: infantRole, Name: RoleInfant}}}
	m := NewMachine(roles, &fakeMessenger{}, NewClassifier(), testGuild, testLogCh, zap.NewNop())

	if err := m.ResolveRoles(); err == nil {
		t.Fatal("expected error for missing Toddler role")
	}

	// An unresolved machine must ignore events rather than crash.
	msg, mem := member(42, false, infantRole)
	m.HandleMessage(msg, mem)
	m.HandleJoin(*mem)
	if len(roles.added) != 0 {
		t.Errorf("unresolved machine mutated roles: %+v", roles.added)
	}
}

func TestGrantFailureSuppressesNotification(t *testing.T) {
	m, roles, messenger := newTestMachine(t)
	roles.addErr = fmt.Errorf("forbidden")

	msg, mem := member(42, false, infantRole)
	m.HandleMessage(msg, mem)

	if len(messenger.sent) != 0 {
		t.Errorf("notification sent despite failed grant: %+v", messenger.sent)
	}
	if len(roles.removed) != 0 {
		t.Errorf("Infant revoked despite failed grant: %+v", roles.removed)
	}
}

func TestStripMentions(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<@123> hello", "hello"},
		{"<@!456>", ""},
		{"  plain  ", "plain"},
		{"<@1><@2><@3>", ""},
		{"mid <@9> word", "mid  word"},
	}
	for _, tt := range tests {
		if got := StripMentions(tt.in); got != tt.want {
			t.Errorf("StripMentions(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier()
	c.Classify([]discord.Channel{
		{ID: 1, Type: discord.GuildText},
		{ID: 2, Type: discord.GuildText, Overwrites: []discord.Overwrite{{}}},
		{ID: 3, Type: discord.GuildCategory},
		{ID: 4, Type: discord.GuildVoice},
	})

	if !c.IsPublic(1) {
		t.Error("channel 1 should be public")
	}
	if c.IsPublic(2) {
		t.Error("channel 2 has overwrites, should be private")
	}
	if c.IsPublic(4) {
		t.Error("voice channel should not classify as public text")
	}
	if got := len(c.Public()); got != 1 {
		t.Errorf("Public() has %d channels, want 1", got)
	}
	if got := len(c.Private()); got != 1 {
		t.Errorf("Private() has %d channels, want 1", got)
	}
	if got := len(c.Categories()); got != 1 {
		t.Errorf("Categories() has %d channels, want 1", got)
	}
}
