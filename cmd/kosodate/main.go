// Package main provides the entry point for the kosodate community bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/state"
	"github.com/diamondburned/arikawa/v3/utils/json/option"
	"go.uber.org/zap"

	"github.com/harukimoto/kosodate/internal/collector"
	"github.com/harukimoto/kosodate/internal/command"
	"github.com/harukimoto/kosodate/internal/config"
	"github.com/harukimoto/kosodate/internal/gemini"
	"github.com/harukimoto/kosodate/internal/membership"
	"github.com/harukimoto/kosodate/internal/platform"
	"github.com/harukimoto/kosodate/internal/purge"
	"github.com/harukimoto/kosodate/internal/storage"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// Reaction emoji that route messages into collection channels.
const (
	emojiFrame = "🖼️"
	emojiBooks = "📚"
	emojiMemo  = "📝"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down gracefully")
		cancel()
	}()

	if err := run(ctx, cancel, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("DEBUG") == "1" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) error {
	logger.Info("kosodate starting")

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	st := state.New("Bot " + settings.DiscordToken)
	st.AddIntents(gateway.IntentGuilds |
		gateway.IntentGuildMembers |
		gateway.IntentGuildMessages |
		gateway.IntentGuildMessageReactions |
		gateway.IntentMessageContent)

	adapter := platform.NewAdapter(st, logger)

	factory, err := gemini.NewGoogleFactory(ctx, settings.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("create gemini factory: %w", err)
	}
	session := gemini.NewSession(factory, logger)
	session.SetWindow(settings.HistoryWindow)

	var records command.RecordStore
	if url := settings.Database.URL(); url != "" {
		db, dbErr := storage.Open(url)
		if dbErr != nil {
			return fmt.Errorf("open database: %w", dbErr)
		}
		if migrateErr := storage.Migrate(db, logger); migrateErr != nil {
			return fmt.Errorf("migrate database: %w", migrateErr)
		}
		records = storage.NewRepository[storage.MessageRecord](db)
	} else {
		logger.Info("no database configured, persistence commands disabled")
	}

	classifier := membership.NewClassifier()
	machine := membership.NewMachine(adapter, adapter, classifier,
		settings.GuildID, settings.LogChannelID, logger)

	citations := collector.New(adapter, adapter, settings.GuildID,
		map[string]discord.ChannelID{
			emojiFrame: settings.GakubuchiChannelID,
			emojiBooks: settings.MinnaBunkoChannelID,
			emojiMemo:  settings.FreememoChannelID,
		}, logger)

	// refresh re-reads guild structure so the public/private partition
	// tracks permission changes made while running.
	refresh := func(context.Context) error {
		channels, chErr := adapter.Channels(settings.GuildID)
		if chErr != nil {
			return chErr
		}
		classifier.Classify(channels)
		citations.SetChannels(channels)
		return nil
	}
	checker := command.NewChecker(settings.CheckInterval, refresh, logger)

	gate := purge.NewGate()

	router, err := command.NewRouter(command.Config{
		Prefix:        settings.Prefix,
		GuildID:       settings.GuildID,
		LogChannelID:  settings.LogChannelID,
		ModCategoryID: settings.ModCategoryID,
		PurgeLimit:    settings.PurgeLimit,
		Session:       session,
		Embedder:      factory,
		Messenger:     adapter,
		History:       adapter,
		Guild:         adapter,
		Gate:          gate,
		Classifier:    classifier,
		Records:       records,
		Checker:       checker,
		SyncCommands:  syncCommands(st, settings.GuildID),
		Shutdown:      cancel,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	st.AddHandler(func(e *gateway.ReadyEvent) {
		self := e.User.ID
		router.SetSelf(self)
		router.SetPurger(purge.NewPurger(adapter, adapter, adapter, self, logger))

		if refreshErr := refresh(ctx); refreshErr != nil {
			logger.Error("initial channel classification failed", zap.Error(refreshErr))
		}
		if rolesErr := machine.ResolveRoles(); rolesErr != nil {
			logger.Error("lifecycle role resolution failed", zap.Error(rolesErr))
		}
		if roles, rErr := adapter.Roles(settings.GuildID); rErr == nil {
			router.SetRoles(roles)
		} else {
			logger.Error("role cache load failed", zap.Error(rErr))
		}

		logger.Info("gateway ready", zap.String("user", e.User.Username))
	})

	st.AddHandler(func(e *gateway.GuildMemberAddEvent) {
		if e.GuildID != settings.GuildID {
			return
		}
		machine.HandleJoin(e.Member)
	})

	st.AddHandler(func(e *gateway.MessageCreateEvent) {
		if e.GuildID != settings.GuildID {
			return
		}
		machine.HandleMessage(e.Message, e.Member)
		router.HandleMessage(ctx, e)
	})

	st.AddHandler(func(e *gateway.MessageReactionAddEvent) {
		if e.GuildID != settings.GuildID {
			return
		}
		citations.HandleReaction(e.ChannelID, e.MessageID, e.Emoji, e.Member)
	})

	st.AddHandler(func(e *gateway.InteractionCreateEvent) {
		data, ok := e.Data.(*discord.CommandInteraction)
		if !ok || data.Name != "shutdown" {
			return
		}
		resp := api.InteractionResponse{
			Type: api.MessageInteractionWithSource,
			Data: &api.InteractionResponseData{
				Content: option.NewNullableString("おやすみだお。"),
			},
		}
		if respErr := st.RespondInteraction(e.ID, e.Token, resp); respErr != nil {
			logger.Error("interaction response failed", zap.Error(respErr))
		}
		cancel()
	})

	if err := st.Open(ctx); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	logger.Info("kosodate started, listening for events")

	<-ctx.Done()
	checker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("gateway close failed", zap.Error(closeErr))
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded")
	}
	return nil
}

// syncCommands pushes the guild slash-command registry.
func syncCommands(st *state.State, guildID discord.GuildID) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		app, err := st.CurrentApplication()
		if err != nil {
			return 0, fmt.Errorf("current application: %w", err)
		}

		cmds := []api.CreateCommandData{
			{Name: "shutdown", Description: "Stop the bot gracefully"},
		}
		if _, err := st.BulkOverwriteGuildCommands(app.ID, guildID, cmds); err != nil {
			return 0, fmt.Errorf("overwrite guild commands: %w", err)
		}
		return len(cmds), nil
	}
}
