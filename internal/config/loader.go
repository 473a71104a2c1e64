package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by [ApplyEnv].
const EnvPrefix = "BOTNEK_"

// Load reads the YAML configuration file at path, applies BOTNEK_*
// environment overrides and defaults, and returns a validated [Config].
// An empty path skips the file so the bot can run from the environment alone.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		data = b
	}

	cfg, err := parse(data)
	if err != nil {
		if path == "" {
			return nil, err
		}
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields of cfg from BOTNEK_* environment variables
// (e.g., BOTNEK_DISCORD_TOKEN, BOTNEK_DATA_ROOT, BOTNEK_LOG_LEVEL).
// Unset variables leave the field untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// parse runs the full pipeline used by [Load] and the [Reloader].
func parse(data []byte) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set BOTNEK_DISCORD_TOKEN)"))
	}
	if strings.HasPrefix(cfg.Discord.Token, "Bot ") {
		slog.Warn("discord.token starts with \"Bot \"; the prefix is added automatically")
	}
	if strings.ContainsAny(cfg.Discord.MessagePrefix, " \t\n") {
		errs = append(errs, fmt.Errorf("discord.message_prefix %q must not contain whitespace", cfg.Discord.MessagePrefix))
	}
	if cfg.Discord.CommandsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("discord.commands_per_minute %d must not be negative", cfg.Discord.CommandsPerMinute))
	}
	seen := make(map[string]int, len(cfg.Discord.GuildIDs))
	for i, id := range cfg.Discord.GuildIDs {
		if id == "" {
			errs = append(errs, fmt.Errorf("discord.guild_ids[%d] is empty", i))
			continue
		}
		if prev, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("discord.guild_ids[%d] %q is a duplicate of guild_ids[%d]", i, id, prev))
		}
		seen[id] = i
	}

	// Playback
	if cfg.Playback.ReadyTimeout < 0 {
		errs = append(errs, fmt.Errorf("playback.ready_timeout %v must not be negative", cfg.Playback.ReadyTimeout))
	}
	if cfg.Playback.ReconnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("playback.reconnect_timeout %v must not be negative", cfg.Playback.ReconnectTimeout))
	}
	if cfg.Playback.RejoinBackoff < 0 {
		errs = append(errs, fmt.Errorf("playback.rejoin_backoff %v must not be negative", cfg.Playback.RejoinBackoff))
	}
	if cfg.Playback.MaxRejoinAttempts < 0 {
		errs = append(errs, fmt.Errorf("playback.max_rejoin_attempts %d must not be negative", cfg.Playback.MaxRejoinAttempts))
	}

	// Media
	if cfg.Media.MaxSFXLength < 0 {
		errs = append(errs, fmt.Errorf("media.max_sfx_length %v must not be negative", cfg.Media.MaxSFXLength))
	}
	if cfg.Media.MaxSFXLength > 5*time.Minute {
		slog.Warn("media.max_sfx_length is longer than five minutes; sound effects this long are unusual",
			"max_sfx_length", cfg.Media.MaxSFXLength)
	}

	return errors.Join(errs...)
}
