// Package config loads bot settings from the environment, with optional
// .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is unset.
const (
	// DefaultPrefix is the operator command prefix.
	DefaultPrefix = "!"
	// DefaultHistoryWindow is how many recent channel messages are folded
	// into a chat prompt.
	DefaultHistoryWindow = 50
	// DefaultCheckInterval is the period of the channel re-classification
	// task when it is started without an explicit interval.
	DefaultCheckInterval = 10 * time.Minute
)

// Settings holds every recognized configuration option.
type Settings struct {
	// Required credentials. Startup aborts without them.
	DiscordToken string
	GeminiAPIKey string
	GuildID      discord.GuildID

	// Channel wiring.
	LogChannelID        discord.ChannelID
	GakubuchiChannelID  discord.ChannelID
	MinnaBunkoChannelID discord.ChannelID
	FreememoChannelID   discord.ChannelID
	ModCategoryID       discord.ChannelID

	// Operator surface.
	Prefix        string
	HistoryWindow int
	CheckInterval time.Duration

	// PurgeLimit caps how many messages one purge invocation may delete.
	// Zero means no cap.
	PurgeLimit int

	// Database. Empty DatabaseURL disables persistence commands.
	Database DatabaseSettings
}

// DatabaseSettings selects the Postgres endpoint. IsProd picks the
// internal URL over the external one when both are set.
type DatabaseSettings struct {
	InternalURL string
	ExternalURL string
	IsProd      bool
}

// URL returns the endpoint the current environment should dial, or an
// empty string when no database is configured.
func (d DatabaseSettings) URL() string {
	if d.IsProd && d.InternalURL != "" {
		return d.InternalURL
	}
	if d.ExternalURL != "" {
		return d.ExternalURL
	}
	return d.InternalURL
}

// Load reads .env (when present) and the process environment.
// It fails only on missing required credentials or unparseable values.
func Load() (*Settings, error) {
	// A missing .env is fine; production supplies real environment.
	_ = godotenv.Load()

	s := &Settings{
		DiscordToken: strings.TrimSpace(os.Getenv("DISCORD_API_KEY")),
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Prefix:       getEnvOrDefault("COMMAND_PREFIX", DefaultPrefix),
	}

	if s.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_API_KEY is required")
	}
	if s.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	guild, err := parseSnowflakeEnv("GUILD_ID", true)
	if err != nil {
		return nil, err
	}
	s.GuildID = discord.GuildID(guild)

	for _, ch := range []struct {
		key  string
		dest *discord.ChannelID
	}{
		{"LOG_CHANNEL_ID", &s.LogChannelID},
		{"GAKUBUCHI_CHANNEL_ID", &s.GakubuchiChannelID},
		{"MINNA_BUNKO_CHANNEL_ID", &s.MinnaBunkoChannelID},
		{"FREEMEMO_CHANNEL_ID", &s.FreememoChannelID},
		{"MOD_CATEGORY_ID", &s.ModCategoryID},
	} {
		id, snowErr := parseSnowflakeEnv(ch.key, false)
		if snowErr != nil {
			return nil, snowErr
		}
		*ch.dest = discord.ChannelID(id)
	}

	s.HistoryWindow, err = parseIntEnv("HISTORY_WINDOW", DefaultHistoryWindow)
	if err != nil {
		return nil, err
	}

	s.PurgeLimit, err = parseIntEnv("PURGE_LIMIT", 0)
	if err != nil {
		return nil, err
	}

	interval, err := parseIntEnv("CHECK_INTERVAL_MINUTES", 0)
	if err != nil {
		return nil, err
	}
	s.CheckInterval = DefaultCheckInterval
	if interval > 0 {
		s.CheckInterval = time.Duration(interval) * time.Minute
	}

	isProd, err := parseBoolEnv("IS_PROD", false)
	if err != nil {
		return nil, err
	}
	s.Database = DatabaseSettings{
		InternalURL: strings.TrimSpace(os.Getenv("POSTGRES_INTERNAL_URL")),
		ExternalURL: strings.TrimSpace(os.Getenv("POSTGRES_EXTERNAL_URL")),
		IsProd:      isProd,
	}

	return s, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseSnowflakeEnv(key string, required bool) (discord.Snowflake, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%s is required", key)
		}
		return 0, nil
	}

	id, err := discord.ParseSnowflake(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return id, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
