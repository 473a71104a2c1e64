package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/botnek/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug

discord:
  token: secret
  guild_ids: ["111", "222"]
  message_prefix: "?"
  sfx_role_id: "999"
  commands_per_minute: 5

data:
  root: /var/lib/botnek

playback:
  ready_timeout: 10s
  reconnect_timeout: 2s
  rejoin_backoff: 1s
  max_rejoin_attempts: 3

media:
  ffmpeg_path: /usr/bin/ffmpeg
  max_sfx_length: 15s
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Discord.Token != "secret" {
		t.Errorf("token: got %q", cfg.Discord.Token)
	}
	if !slices.Equal(cfg.Discord.GuildIDs, []string{"111", "222"}) {
		t.Errorf("guild_ids: got %v", cfg.Discord.GuildIDs)
	}
	if cfg.Discord.MessagePrefix != "?" {
		t.Errorf("message_prefix: got %q", cfg.Discord.MessagePrefix)
	}
	if cfg.Discord.SFXRoleID != "999" || cfg.Discord.CommandsPerMinute != 5 {
		t.Errorf("discord: got %+v", cfg.Discord)
	}
	if cfg.Data.Root != "/var/lib/botnek" {
		t.Errorf("data.root: got %q", cfg.Data.Root)
	}
	want := config.PlaybackConfig{
		ReadyTimeout:      10 * time.Second,
		ReconnectTimeout:  2 * time.Second,
		RejoinBackoff:     time.Second,
		MaxRejoinAttempts: 3,
	}
	if cfg.Playback != want {
		t.Errorf("playback: got %+v, want %+v", cfg.Playback, want)
	}
	if cfg.Media.FFmpegPath != "/usr/bin/ffmpeg" || cfg.Media.MaxSFXLength != 15*time.Second {
		t.Errorf("media: got %+v", cfg.Media)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("discord:\n  token: x\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, config.DefaultListenAddr},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"message_prefix", cfg.Discord.MessagePrefix, config.DefaultMessagePrefix},
		{"commands_per_minute", cfg.Discord.CommandsPerMinute, config.DefaultCommandsPerMinute},
		{"data.root", cfg.Data.Root, config.DefaultDataRoot},
		{"ready_timeout", cfg.Playback.ReadyTimeout, config.DefaultReadyTimeout},
		{"reconnect_timeout", cfg.Playback.ReconnectTimeout, config.DefaultReconnectTimeout},
		{"rejoin_backoff", cfg.Playback.RejoinBackoff, config.DefaultRejoinBackoff},
		{"max_rejoin_attempts", cfg.Playback.MaxRejoinAttempts, config.DefaultMaxRejoinAttempts},
		{"ffmpeg_path", cfg.Media.FFmpegPath, config.DefaultFFmpegPath},
		{"max_sfx_length", cfg.Media.MaxSFXLength, config.DefaultMaxSFXLength},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("discord:\n  token: x\n  tokn: y\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "missing token",
			yaml:    "server:\n  log_level: info\n",
			wantErr: []string{"discord.token is required"},
		},
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: loud\ndiscord:\n  token: x\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name:    "negative durations",
			yaml:    "discord:\n  token: x\nplayback:\n  ready_timeout: -1s\n  rejoin_backoff: -2s\n",
			wantErr: []string{"playback.ready_timeout", "playback.rejoin_backoff"},
		},
		{
			name:    "duplicate guild",
			yaml:    "discord:\n  token: x\n  guild_ids: [\"1\", \"1\"]\n",
			wantErr: []string{"duplicate"},
		},
		{
			name:    "prefix with whitespace",
			yaml:    "discord:\n  token: x\n  message_prefix: \"! \"\n",
			wantErr: []string{"discord.message_prefix"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "discord:\n  token: from-file\ndata:\n  root: /from/file\n")

	t.Setenv("BOTNEK_DISCORD_TOKEN", "from-env")
	t.Setenv("BOTNEK_LOG_LEVEL", "warn")
	t.Setenv("BOTNEK_LISTEN_ADDR", ":7000")
	t.Setenv("BOTNEK_DISCORD_GUILD_IDS", "1,2")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "from-env" {
		t.Errorf("token: got %q, want from-env", cfg.Discord.Token)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level: got %q, want warn", cfg.Server.LogLevel)
	}
	if cfg.Server.ListenAddr != ":7000" {
		t.Errorf("listen_addr: got %q, want :7000", cfg.Server.ListenAddr)
	}
	if !slices.Equal(cfg.Discord.GuildIDs, []string{"1", "2"}) {
		t.Errorf("guild_ids: got %v", cfg.Discord.GuildIDs)
	}
	if cfg.Data.Root != "/from/file" {
		t.Errorf("data.root: got %q, want file value", cfg.Data.Root)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("BOTNEK_DISCORD_TOKEN", "only-env")
	t.Setenv("BOTNEK_DATA_ROOT", "/env/data")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "only-env" || cfg.Data.Root != "/env/data" {
		t.Errorf("got token=%q root=%q", cfg.Discord.Token, cfg.Data.Root)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}
