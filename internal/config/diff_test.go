package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/botnek/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Discord.Token = "t"
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	if d := config.Diff(baseConfig(), baseConfig()); d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()

	old, updated := baseConfig(), baseConfig()
	updated.Server.LogLevel = config.LogError
	updated.Discord.CommandsPerMinute = 99
	updated.Discord.SFXRoleID = "role"

	d := config.Diff(old, updated)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogError {
		t.Errorf("log level: %+v", d)
	}
	if !d.RateLimitChanged || d.NewCommandsPerMinute != 99 {
		t.Errorf("rate limit: %+v", d)
	}
	if !d.SFXRoleChanged || d.NewSFXRoleID != "role" {
		t.Errorf("sfx role: %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	old, updated := baseConfig(), baseConfig()
	updated.Discord.Token = "other"
	updated.Playback.ReadyTimeout = time.Minute
	updated.Discord.GuildIDs = []string{"1"}

	d := config.Diff(old, updated)
	want := []string{"discord.token", "discord.guild_ids", "playback"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if !d.Changed() {
		t.Error("Changed() = false, want true")
	}
}
