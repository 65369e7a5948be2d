package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"go.uber.org/zap"

	"github.com/harukimoto/kosodate/internal/gemini"
	"github.com/harukimoto/kosodate/internal/purge"
	"github.com/harukimoto/kosodate/internal/storage"
)

// converse runs one chat exchange. Empty input prompts the user instead
// of hitting the model; a model failure degrades to a fixed notice.
func (r *Router) converse(ctx context.Context, args string, e *gateway.MessageCreateEvent) error {
	text := strings.TrimSpace(args)
	if text == "" {
		r.notify(e.ChannelID, promptForInput)
		return nil
	}
	if text == "reset" {
		return r.reset(ctx, "", e)
	}

	if err := r.cfg.Messenger.Typing(e.ChannelID); err != nil {
		r.logger.Debug("typing indicator failed", zap.Error(err))
	}

	speaker := displayName(e.Author, e.Member)
	recent := r.recentLines(e)

	reply, err := r.cfg.Session.SendTurn(ctx, speaker, text, recent)
	if err != nil {
		r.logger.Error("chat turn failed", zap.Error(err))
		r.notify(e.ChannelID, degradedNotice)
		return nil
	}

	if err := r.cfg.Messenger.Reply(e.ChannelID, e.ID, speaker, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// recentLines renders the channel messages preceding the invocation,
// oldest first, as "name: content" lines. History failures degrade to an
// empty window.
func (r *Router) recentLines(e *gateway.MessageCreateEvent) []string {
	if r.cfg.History == nil {
		return nil
	}
	window := r.cfg.Session.Window()
	if window <= 0 {
		return nil
	}

	msgs, err := r.cfg.History.MessagesBefore(e.ChannelID, e.ID, uint(window))
	if err != nil {
		r.logger.Warn("history fetch failed", zap.Error(err))
		return nil
	}

	lines := make([]string, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		name := m.Author.DisplayName
		if name == "" {
			name = m.Author.Username
		}
		lines = append(lines, name+": "+m.Content)
	}
	return lines
}

func (r *Router) reset(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	r.cfg.Session.Reset()
	r.notify(e.ChannelID, resetNotice)
	return nil
}

// saveMessage persists the invoking message's coordinates, attaching an
// embedding vector when the embedder is available.
func (r *Router) saveMessage(ctx context.Context, args string, e *gateway.MessageCreateEvent) error {
	if r.cfg.Records == nil {
		r.notify(e.ChannelID, "データベースが設定されてないから保存できないお。")
		return nil
	}

	content := strings.TrimSpace(args)
	if content == "" {
		content = strings.TrimSpace(SanitizeArgs(e.Content))
	}

	var embedding []float32
	if r.cfg.Embedder != nil && content != "" {
		vec, err := r.cfg.Embedder.Embed(ctx, content)
		if err != nil {
			// The record is still worth keeping without its vector.
			r.logger.Warn("embedding failed, saving without vector", zap.Error(err))
		} else {
			embedding = vec
		}
	}

	rec := storage.NewMessageRecord(
		int64(e.Author.ID),
		int64(e.ChannelID),
		int64(e.ID),
		e.ID.Time(),
		embedding,
	)
	if _, err := r.cfg.Records.Create(ctx, rec); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	r.notify(e.ChannelID, fmt.Sprintf("保存したお (%s)", rec.PK))
	return nil
}

func (r *Router) getMessages(ctx context.Context, _ string, e *gateway.MessageCreateEvent) error {
	if r.cfg.Records == nil {
		r.notify(e.ChannelID, "データベースが設定されてないお。")
		return nil
	}

	records, err := r.cfg.Records.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("get messages: %w", err)
	}
	if len(records) == 0 {
		r.notify(e.ChannelID, "まだ何も保存されてないお。")
		return nil
	}

	latest := records[len(records)-1]
	r.notify(e.ChannelID, fmt.Sprintf("%d件保存されてるお。最新: msg_id=%d", len(records), latest.MessageID))
	return nil
}

func (r *Router) setWindow(_ context.Context, args string, e *gateway.MessageCreateEvent) error {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		r.notify(e.ChannelID, "数字で指定してお。")
		return nil
	}
	applied := r.cfg.Session.SetWindow(n)
	r.notify(e.ChannelID, fmt.Sprintf("履歴ウィンドウを%dにしたお", applied))
	return nil
}

func (r *Router) setModel(_ context.Context, args string, e *gateway.MessageCreateEvent) error {
	name := strings.TrimSpace(args)
	if err := r.cfg.Session.SetModel(name); err != nil {
		r.notify(e.ChannelID, fmt.Sprintf("そのモデルは使えないお: %v", err))
		return nil
	}
	r.notify(e.ChannelID, fmt.Sprintf("モデルを%sにして履歴をリセットしたお", name))
	return nil
}

func (r *Router) setTemperature(_ context.Context, args string, e *gateway.MessageCreateEvent) error {
	return r.applyFloat(args, e, r.cfg.Session.SetTemperature, "temperature")
}

func (r *Router) setTopP(_ context.Context, args string, e *gateway.MessageCreateEvent) error {
	return r.applyFloat(args, e, r.cfg.Session.SetTopP, "top_p")
}

func (r *Router) setTopK(_ context.Context, args string, e *gateway.MessageCreateEvent) error {
	return r.applyInt(args, e, r.cfg.Session.SetTopK, "top_k")
}

func (r *Router) setMaxTokens(_ context.Context, args string, e *gateway.MessageCreateEvent) error {
	return r.applyInt(args, e, r.cfg.Session.SetMaxTokens, "max_tokens")
}

func (r *Router) applyFloat(args string, e *gateway.MessageCreateEvent, set func(float32) error, label string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(args), 32)
	if err != nil {
		r.notify(e.ChannelID, "数字で指定してお。")
		return nil
	}
	if err := set(float32(v)); err != nil {
		r.notify(e.ChannelID, fmt.Sprintf("その値は使えないお: %v", err))
		return nil
	}
	r.notify(e.ChannelID, fmt.Sprintf("%sを%.2fにしたお（履歴はそのまま）", label, v))
	return nil
}

func (r *Router) applyInt(args string, e *gateway.MessageCreateEvent, set func(int32) error, label string) error {
	v, err := strconv.ParseInt(strings.TrimSpace(args), 10, 32)
	if err != nil {
		r.notify(e.ChannelID, "数字で指定してお。")
		return nil
	}
	if err := set(int32(v)); err != nil {
		r.notify(e.ChannelID, fmt.Sprintf("その値は使えないお: %v", err))
		return nil
	}
	r.notify(e.ChannelID, fmt.Sprintf("%sを%dにしたお（履歴はそのまま）", label, v))
	return nil
}

func (r *Router) showConfig(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	r.notify(e.ChannelID, r.cfg.Session.Describe())
	return nil
}

func (r *Router) showPrompt(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	seed := r.cfg.Session.Seed()
	if len(seed) == 0 {
		r.notify(e.ChannelID, "プロンプトは設定されてないお。")
		return nil
	}
	r.notify(e.ChannelID, seed[0].Text)
	return nil
}

func (r *Router) setPrompt(_ context.Context, args string, e *gateway.MessageCreateEvent) error {
	text := strings.TrimSpace(args)
	if text == "" {
		r.notify(e.ChannelID, "プロンプトの本文を指定してお。")
		return nil
	}
	r.cfg.Session.SetSeed([]gemini.Turn{
		{Role: gemini.RoleUser, Text: text},
		{Role: gemini.RoleModel, Text: "わかったお。"},
	})
	r.notify(e.ChannelID, "プロンプトを変えて履歴をリセットしたお")
	return nil
}

func (r *Router) resetPrompt(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	r.cfg.Session.ResetSeed()
	r.notify(e.ChannelID, "プロンプトを元に戻して履歴をリセットしたお")
	return nil
}

func (r *Router) setCheckInterval(_ context.Context, args string, e *gateway.MessageCreateEvent) error {
	if r.cfg.Checker == nil {
		return nil
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || minutes < 1 {
		r.notify(e.ChannelID, "1以上の分数で指定してお。")
		return nil
	}
	d := r.cfg.Checker.SetIntervalMinutes(minutes)
	r.notify(e.ChannelID, fmt.Sprintf("チェック間隔を%sにしたお", d))
	return nil
}

func (r *Router) startCheck(ctx context.Context, _ string, e *gateway.MessageCreateEvent) error {
	if r.cfg.Checker == nil {
		return nil
	}
	if !r.cfg.Checker.Start(ctx) {
		r.notify(e.ChannelID, "もうチェック動いてるお。")
		return nil
	}
	r.notify(e.ChannelID, "定期チェックを始めたお")
	return nil
}

func (r *Router) stopCheck(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	if r.cfg.Checker == nil {
		return nil
	}
	if !r.cfg.Checker.Stop() {
		r.notify(e.ChannelID, "チェックは動いてないお。")
		return nil
	}
	r.notify(e.ChannelID, "定期チェックを止めたお")
	return nil
}

func (r *Router) purgeUserHere(ctx context.Context, args string, e *gateway.MessageCreateEvent) error {
	return r.purgeUser(ctx, args, e, false)
}

func (r *Router) purgeUserAll(ctx context.Context, args string, e *gateway.MessageCreateEvent) error {
	return r.purgeUser(ctx, args, e, true)
}

// purgeUser confirms and runs a purge. The confirmation must arrive from
// the invoking operator in the invoking channel; a timeout or a "no"
// leaves everything untouched.
func (r *Router) purgeUser(ctx context.Context, args string, e *gateway.MessageCreateEvent, all bool) error {
	purger := r.purgeRunner()
	if purger == nil || r.cfg.Gate == nil {
		return nil
	}

	fields := strings.Fields(args)
	if len(fields) == 0 {
		r.notify(e.ChannelID, "対象のユーザーを指定してお。")
		return nil
	}
	target, err := parseUserRef(fields[0])
	if err != nil {
		r.notify(e.ChannelID, "ユーザーのIDかメンションで指定してお。")
		return nil
	}
	if len(fields) > 1 && fields[1] == "all" {
		all = true
	}

	channels, scope, err := r.purgeScope(e.ChannelID, all)
	if err != nil {
		return fmt.Errorf("resolve purge scope: %w", err)
	}

	r.notify(e.ChannelID, fmt.Sprintf(
		"%s のメッセージを%sから削除するお。本当にいい？ (yes/no, %s以内)",
		target.Mention(), scope, confirmTimeout))

	yes, err := r.cfg.Gate.Await(ctx, e.ChannelID, e.Author.ID, confirmTimeout)
	if err != nil {
		if err == purge.ErrConfirmTimeout {
			r.notify(e.ChannelID, "時間切れだお。何もしてないお。")
			return nil
		}
		return err
	}
	if !yes {
		r.notify(e.ChannelID, "やめとくお。")
		return nil
	}

	report, err := purger.Run(ctx, purge.Options{
		Target:   target,
		Channels: channels,
		Limit:    r.cfg.PurgeLimit,
	})
	if report != nil {
		r.notify(e.ChannelID, report.Summary())
	}
	if err != nil {
		return fmt.Errorf("purge run: %w", err)
	}
	return nil
}

// purgeScope resolves which channels one purge covers.
func (r *Router) purgeScope(invoking discord.ChannelID, all bool) ([]discord.Channel, string, error) {
	if !all {
		name := invoking.String()
		if chans, err := r.guildTextChannels(); err == nil {
			for _, ch := range chans {
				if ch.ID == invoking {
					return []discord.Channel{ch}, "#" + ch.Name, nil
				}
			}
		}
		return []discord.Channel{{ID: invoking, Type: discord.GuildText, Name: name}}, "このチャンネル", nil
	}

	chans, err := r.guildTextChannels()
	if err != nil {
		return nil, "", err
	}
	return chans, "サーバー全体", nil
}

func (r *Router) guildTextChannels() ([]discord.Channel, error) {
	if r.cfg.Guild == nil {
		return nil, fmt.Errorf("guild state unavailable")
	}
	all, err := r.cfg.Guild.Channels(r.cfg.GuildID)
	if err != nil {
		return nil, err
	}
	var text []discord.Channel
	for _, ch := range all {
		if ch.Type == discord.GuildText {
			text = append(text, ch)
		}
	}
	return text, nil
}

// syncPermissions copies the moderation category's permission overwrites
// onto every text channel under it.
func (r *Router) syncPermissions(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	if r.cfg.Guild == nil || !r.cfg.ModCategoryID.IsValid() {
		r.notify(e.ChannelID, "モデレーションカテゴリが設定されてないお。")
		return nil
	}

	channels, err := r.cfg.Guild.Channels(r.cfg.GuildID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	var overwrites []discord.Overwrite
	found := false
	for _, ch := range channels {
		if ch.ID == r.cfg.ModCategoryID && ch.Type == discord.GuildCategory {
			overwrites = ch.Overwrites
			found = true
			break
		}
	}
	if !found {
		r.notify(e.ChannelID, "カテゴリが見つからないお。")
		return nil
	}

	synced := 0
	for _, ch := range channels {
		if ch.Type != discord.GuildText || ch.ParentID != r.cfg.ModCategoryID {
			continue
		}
		if err := r.cfg.Guild.ModifyChannelOverwrites(ch.ID, overwrites); err != nil {
			r.logger.Error("overwrite sync failed",
				zap.String("channel", ch.Name),
				zap.Error(err))
			continue
		}
		synced++
	}

	r.notify(e.ChannelID, fmt.Sprintf("%d個のチャンネルの権限を揃えたお", synced))
	return nil
}

func (r *Router) listChannels(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	if r.cfg.Classifier == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString("public:")
	for _, ch := range r.cfg.Classifier.Public() {
		b.WriteString(" #" + ch.Name)
	}
	b.WriteString("\nprivate:")
	for _, ch := range r.cfg.Classifier.Private() {
		b.WriteString(" #" + ch.Name)
	}
	r.notify(e.ChannelID, b.String())
	return nil
}

func (r *Router) listCategories(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	if r.cfg.Classifier == nil {
		return nil
	}
	cats := r.cfg.Classifier.Categories()
	if len(cats) == 0 {
		r.notify(e.ChannelID, "カテゴリがないお。")
		return nil
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	r.notify(e.ChannelID, "categories: "+strings.Join(names, ", "))
	return nil
}

func (r *Router) shutdown(_ context.Context, _ string, e *gateway.MessageCreateEvent) error {
	r.notify(e.ChannelID, "おやすみだお。")
	if r.cfg.LogChannelID.IsValid() && r.cfg.LogChannelID != e.ChannelID {
		r.notify(r.cfg.LogChannelID, fmt.Sprintf("shutting down (requested by %s)", displayName(e.Author, e.Member)))
	}
	if r.cfg.Shutdown != nil {
		r.cfg.Shutdown()
	}
	return nil
}

func (r *Router) syncRegistry(ctx context.Context, _ string, e *gateway.MessageCreateEvent) error {
	if r.cfg.SyncCommands == nil {
		return nil
	}
	n, err := r.cfg.SyncCommands(ctx)
	if err != nil {
		return fmt.Errorf("sync commands: %w", err)
	}
	r.notify(e.ChannelID, fmt.Sprintf("%d個のスラッシュコマンドを同期したお", n))
	return nil
}

// parseUserRef accepts a raw snowflake or a <@id>/<@!id> mention.
func parseUserRef(s string) (discord.UserID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "<@"), ">")
	s = strings.TrimPrefix(s, "!")

	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse user reference %q: %w", s, err)
	}
	return discord.UserID(id), nil
}
