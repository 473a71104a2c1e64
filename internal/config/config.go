// Package config provides the configuration schema and loader for the
// Botnek Discord bot.
package config

import "time"

// LogLevel controls log verbosity for the Botnek process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default values applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr        = ":9090"
	DefaultMessagePrefix     = "!"
	DefaultCommandsPerMinute = 20
	DefaultDataRoot          = "data"
	DefaultReadyTimeout      = 20 * time.Second
	DefaultReconnectTimeout  = 5 * time.Second
	DefaultRejoinBackoff     = 5 * time.Second
	DefaultMaxRejoinAttempts = 2
	DefaultFFmpegPath        = "ffmpeg"
	DefaultMaxSFXLength      = 30 * time.Second
)

// Config is the root configuration structure for Botnek.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// Environment variables prefixed with BOTNEK_ override file values when
// loaded through [Load].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord" envPrefix:"DISCORD_"`
	Data     DataConfig     `yaml:"data"`
	Playback PlaybackConfig `yaml:"playback" envPrefix:"PLAYBACK_"`
	Media    MediaConfig    `yaml:"media" envPrefix:"MEDIA_"`
}

// ServerConfig holds the ops HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics server
	// (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel controls verbosity. It is hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`
}

// DiscordConfig holds gateway credentials and command settings.
type DiscordConfig struct {
	// Token is the bot token without the "Bot " prefix.
	Token string `yaml:"token" env:"TOKEN"`

	// GuildIDs restricts the bot to the listed guilds. Empty means every
	// guild the bot is a member of.
	GuildIDs []string `yaml:"guild_ids" env:"GUILD_IDS" envSeparator:","`

	// MessagePrefix starts text commands (e.g., "!sfx airhorn").
	MessagePrefix string `yaml:"message_prefix" env:"MESSAGE_PREFIX"`

	// SFXRoleID is the role required to add or delete sound effects.
	// Empty allows every member.
	SFXRoleID string `yaml:"sfx_role_id" env:"SFX_ROLE_ID"`

	// CommandsPerMinute is the per-user command rate limit.
	CommandsPerMinute int `yaml:"commands_per_minute" env:"COMMANDS_PER_MINUTE"`
}

// DataConfig locates per-guild state on disk.
type DataConfig struct {
	// Root is the directory holding one subdirectory per guild.
	Root string `yaml:"root" env:"DATA_ROOT"`
}

// PlaybackConfig tunes the voice connection lifecycle.
type PlaybackConfig struct {
	ReadyTimeout      time.Duration `yaml:"ready_timeout" env:"READY_TIMEOUT"`
	ReconnectTimeout  time.Duration `yaml:"reconnect_timeout" env:"RECONNECT_TIMEOUT"`
	RejoinBackoff     time.Duration `yaml:"rejoin_backoff" env:"REJOIN_BACKOFF"`
	MaxRejoinAttempts int           `yaml:"max_rejoin_attempts" env:"MAX_REJOIN_ATTEMPTS"`
}

// MediaConfig configures the ffmpeg transcoder and sound effect limits.
type MediaConfig struct {
	FFmpegPath   string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	MaxSFXLength time.Duration `yaml:"max_sfx_length" env:"MAX_SFX_LENGTH"`
}

// ApplyDefaults fills unset fields of cfg with the package defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Discord.MessagePrefix == "" {
		cfg.Discord.MessagePrefix = DefaultMessagePrefix
	}
	if cfg.Discord.CommandsPerMinute == 0 {
		cfg.Discord.CommandsPerMinute = DefaultCommandsPerMinute
	}
	if cfg.Data.Root == "" {
		cfg.Data.Root = DefaultDataRoot
	}
	if cfg.Playback.ReadyTimeout == 0 {
		cfg.Playback.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.Playback.ReconnectTimeout == 0 {
		cfg.Playback.ReconnectTimeout = DefaultReconnectTimeout
	}
	if cfg.Playback.RejoinBackoff == 0 {
		cfg.Playback.RejoinBackoff = DefaultRejoinBackoff
	}
	if cfg.Playback.MaxRejoinAttempts == 0 {
		cfg.Playback.MaxRejoinAttempts = DefaultMaxRejoinAttempts
	}
	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.Media.MaxSFXLength == 0 {
		cfg.Media.MaxSFXLength = DefaultMaxSFXLength
	}
}
