package config

import (
	"testing"
	"time"
)

func TestLoadRequiresCredentials(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "missing discord token",
			env: map[string]string{
				"GEMINI_API_KEY": "gk",
				"GUILD_ID":       "1030501230797131887",
			},
			wantErr: true,
		},
		{
			name: "missing gemini key",
			env: map[string]string{
				"DISCORD_API_KEY": "dk",
				"GUILD_ID":        "1030501230797131887",
			},
			wantErr: true,
		},
		{
			name: "missing guild",
			env: map[string]string{
				"DISCORD_API_KEY": "dk",
				"GEMINI_API_KEY":  "gk",
			},
			wantErr: true,
		},
		{
			name: "complete",
			env: map[string]string{
				"DISCORD_API_KEY": "dk",
				"GEMINI_API_KEY":  "gk",
				"GUILD_ID":        "1030501230797131887",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_API_KEY", "dk")
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("GUILD_ID", "1030501230797131887")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if s.Prefix != DefaultPrefix {
		t.Errorf("Prefix = %q, want %q", s.Prefix, DefaultPrefix)
	}
	if s.HistoryWindow != DefaultHistoryWindow {
		t.Errorf("HistoryWindow = %d, want %d", s.HistoryWindow, DefaultHistoryWindow)
	}
	if s.PurgeLimit != 0 {
		t.Errorf("PurgeLimit = %d, want 0 (unlimited)", s.PurgeLimit)
	}
	if s.CheckInterval != DefaultCheckInterval {
		t.Errorf("CheckInterval = %v, want %v", s.CheckInterval, DefaultCheckInterval)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	t.Setenv("DISCORD_API_KEY", "dk")
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("GUILD_ID", "not-a-snowflake")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid GUILD_ID")
	}

	t.Setenv("GUILD_ID", "1030501230797131887")
	t.Setenv("PURGE_LIMIT", "many")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PURGE_LIMIT")
	}
}

func TestDatabaseURLSelection(t *testing.T) {
	tests := []struct {
		name string
		db   DatabaseSettings
		want string
	}{
		{
			name: "prod prefers internal",
			db:   DatabaseSettings{InternalURL: "in", ExternalURL: "ex", IsProd: true},
			want: "in",
		},
		{
			name: "dev prefers external",
			db:   DatabaseSettings{InternalURL: "in", ExternalURL: "ex", IsProd: false},
			want: "ex",
		},
		{
			name: "prod falls back to external",
			db:   DatabaseSettings{ExternalURL: "ex", IsProd: true},
			want: "ex",
		},
		{
			name: "unconfigured",
			db:   DatabaseSettings{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.db.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}

	// CheckInterval override sanity.
	t.Setenv("DISCORD_API_KEY", "dk")
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("GUILD_ID", "1030501230797131887")
	t.Setenv("CHECK_INTERVAL_MINUTES", "3")
	s, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if s.CheckInterval != 3*time.Minute {
		t.Errorf("CheckInterval = %v, want 3m", s.CheckInterval)
	}
}
