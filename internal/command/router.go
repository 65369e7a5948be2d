// Package command parses operator prefix commands from message events and
// dispatches them to the bot's components. Every handler boundary catches
// errors broadly: failures are logged and answered with a user-facing
// notice, never propagated to the gateway loop.
package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"go.uber.org/zap"

	"github.com/harukimoto/kosodate/internal/gemini"
	"github.com/harukimoto/kosodate/internal/membership"
	"github.com/harukimoto/kosodate/internal/platform"
	"github.com/harukimoto/kosodate/internal/purge"
	"github.com/harukimoto/kosodate/internal/storage"
)

// Fixed user-facing lines.
const (
	promptForInput = "どしたん？話きこか？"
	resetNotice    = "チャットの履歴をリセットしたお"
	degradedNotice = "ごめんね、今はうまく答えられないみたい。またあとで試してみて。"
	apologyNotice  = "ごめん、コマンドの処理に失敗しちゃった。"
	deniedNotice   = "このコマンドを使う権限がないみたい。"
)

// Embedder produces embedding vectors for saved messages. May be nil.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RecordStore is the slice of the repository the commands need.
type RecordStore interface {
	Create(ctx context.Context, record *storage.MessageRecord) (*storage.MessageRecord, error)
	GetAll(ctx context.Context) ([]storage.MessageRecord, error)
}

// PurgeRunner runs one purge sweep.
type PurgeRunner interface {
	Run(ctx context.Context, opts purge.Options) (*purge.Report, error)
}

// Config wires a router.
type Config struct {
	Prefix        string
	GuildID       discord.GuildID
	LogChannelID  discord.ChannelID
	ModCategoryID discord.ChannelID
	PurgeLimit    int

	Session    *gemini.Session
	Embedder   Embedder
	Messenger  platform.Messenger
	History    platform.History
	Guild      platform.GuildState
	Purger     PurgeRunner
	Gate       *purge.Gate
	Classifier *membership.Classifier
	Records    RecordStore
	Checker    *Checker

	// SyncCommands pushes the slash-command registry to the guild.
	SyncCommands func(ctx context.Context) (int, error)
	// Shutdown stops the process gracefully.
	Shutdown func()

	Logger *zap.Logger
}

// Router owns the operator command surface.
type Router struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.RWMutex
	self      discord.UserID
	roleNames map[discord.RoleID]string
	purger    PurgeRunner

	// dispatch runs a handler off the gateway goroutine; tests make it
	// synchronous.
	dispatch func(func())
}

// NewRouter builds a router from its wiring.
func NewRouter(cfg Config) (*Router, error) {
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}
	if cfg.Session == nil || cfg.Messenger == nil {
		return nil, fmt.Errorf("session and messenger are required")
	}

	return &Router{
		cfg:       cfg,
		logger:    cfg.Logger,
		roleNames: make(map[discord.RoleID]string),
		purger:    cfg.Purger,
		dispatch:  func(f func()) { go f() },
	}, nil
}

// SetPurger installs the purge runner once the bot's own user is known.
func (r *Router) SetPurger(p PurgeRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purger = p
}

func (r *Router) purgeRunner() PurgeRunner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.purger
}

// SetSelf records the bot's own user after the gateway is ready.
func (r *Router) SetSelf(id discord.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = id
}

// SetRoles caches the guild's role names for permission gates.
func (r *Router) SetRoles(roles []discord.Role) {
	names := make(map[discord.RoleID]string, len(roles))
	for _, role := range roles {
		names[role.ID] = role.Name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roleNames = names
}

// HandleMessage consumes one message-created event. Confirmation answers
// are routed to the purge gate first; then prefix commands and bot
// mentions are dispatched.
func (r *Router) HandleMessage(ctx context.Context, e *gateway.MessageCreateEvent) {
	r.mu.RLock()
	self := r.self
	r.mu.RUnlock()

	if e.Author.Bot || e.Author.ID == self {
		return
	}

	if r.cfg.Gate != nil && r.cfg.Gate.Offer(e.ChannelID, e.Author.ID, e.Content) {
		return
	}

	if strings.HasPrefix(e.Content, r.cfg.Prefix) {
		name, args := splitCommand(strings.TrimPrefix(e.Content, r.cfg.Prefix))
		if name == "" {
			return
		}
		r.dispatch(func() { r.run(ctx, name, args, e) })
		return
	}

	if mentions(e.Message, self) && e.ChannelID != r.cfg.LogChannelID {
		r.dispatch(func() { r.run(ctx, "gem", SanitizeArgs(e.Content), e) })
	}
}

// run executes one command inside the handler boundary.
func (r *Router) run(ctx context.Context, name, args string, e *gateway.MessageCreateEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command handler panicked",
				zap.String("command", name),
				zap.Any("panic", rec))
			r.notify(e.ChannelID, apologyNotice)
		}
	}()

	handler, ok := r.handlers()[name]
	if !ok {
		return
	}

	r.logger.Info("command invoked",
		zap.String("command", name),
		zap.String("user_id", e.Author.ID.String()))

	if err := handler(ctx, args, e); err != nil {
		r.logger.Error("command failed",
			zap.String("command", name),
			zap.Error(err))
		r.notify(e.ChannelID, apologyNotice)
	}
}

type handlerFunc func(ctx context.Context, args string, e *gateway.MessageCreateEvent) error

func (r *Router) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"gem":                r.requireAny(r.converse, membership.RoleParent, membership.RoleToddler),
		"reset":              r.requireAny(r.reset, membership.RoleParent, membership.RoleToddler),
		"save_message":       r.requireAny(r.saveMessage, membership.RoleParent, membership.RoleToddler),
		"get_messages":       r.requireAny(r.getMessages, membership.RoleParent, membership.RoleToddler),
		"set_window":         r.requireAny(r.setWindow, membership.RoleParent),
		"set_model":          r.requireAny(r.setModel, membership.RoleParent),
		"set_temperature":    r.requireAny(r.setTemperature, membership.RoleParent),
		"set_top_p":          r.requireAny(r.setTopP, membership.RoleParent),
		"set_top_k":          r.requireAny(r.setTopK, membership.RoleParent),
		"set_max_tokens":     r.requireAny(r.setMaxTokens, membership.RoleParent),
		"show_config":        r.requireAny(r.showConfig, membership.RoleParent),
		"show_prompt":        r.requireAny(r.showPrompt, membership.RoleParent),
		"set_prompt":         r.requireAny(r.setPrompt, membership.RoleParent),
		"reset_prompt":       r.requireAny(r.resetPrompt, membership.RoleParent),
		"set_check_interval": r.requireAny(r.setCheckInterval, membership.RoleParent),
		"start_check":        r.requireAny(r.startCheck, membership.RoleParent),
		"stop_check":         r.requireAny(r.stopCheck, membership.RoleParent),
		"purge_user":         r.requireAny(r.purgeUserHere, membership.RoleParent),
		"purge_user_all":     r.requireAny(r.purgeUserAll, membership.RoleParent),
		"sync_permissions":   r.requireAny(r.syncPermissions, membership.RoleParent),
		"list_channels":      r.requireAny(r.listChannels, membership.RoleParent),
		"list_categories":    r.requireAny(r.listCategories, membership.RoleParent),
		"shutdown":           r.requireAny(r.shutdown, membership.RoleParent),
		"sync":               r.requireAny(r.syncRegistry, membership.RoleParent),
	}
}

// requireAny gates a handler behind role names.
func (r *Router) requireAny(h handlerFunc, roles ...string) handlerFunc {
	return func(ctx context.Context, args string, e *gateway.MessageCreateEvent) error {
		if !r.hasAnyRole(e.Member, roles...) {
			r.notify(e.ChannelID, deniedNotice)
			return nil
		}
		return h(ctx, args, e)
	}
}

func (r *Router) hasAnyRole(member *discord.Member, wanted ...string) bool {
	if member == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range member.RoleIDs {
		name := r.roleNames[id]
		for _, w := range wanted {
			if name == w {
				return true
			}
		}
	}
	return false
}

// notify sends a user-facing notice, swallowing send failures.
func (r *Router) notify(channelID discord.ChannelID, content string) {
	if err := r.cfg.Messenger.Send(channelID, content); err != nil {
		r.logger.Error("failed to send notice", zap.Error(err))
	}
}

// splitCommand separates a command name from its argument tail.
func splitCommand(s string) (name, args string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	parts := strings.SplitN(s, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

// SanitizeArgs normalizes quote variants and strips mention tokens.
func SanitizeArgs(s string) string {
	s = strings.ReplaceAll(s, "”", `"`)
	s = strings.ReplaceAll(s, "「", `"`)
	return membership.StripMentions(s)
}

func mentions(msg discord.Message, self discord.UserID) bool {
	if !self.IsValid() {
		return false
	}
	for _, m := range msg.Mentions {
		if m.ID == self {
			return true
		}
	}
	return false
}

// displayName prefers the guild nickname over the account name.
func displayName(user discord.User, member *discord.Member) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Username
}

// confirmTimeout is how long purge confirmations wait.
var confirmTimeout = purge.DefaultConfirmTimeout

// SetConfirmTimeoutForTest shortens the confirmation wait in tests.
func SetConfirmTimeoutForTest(d time.Duration) func() {
	old := confirmTimeout
	confirmTimeout = d
	return func() { confirmTimeout = old }
}
