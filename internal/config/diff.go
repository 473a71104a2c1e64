package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Fields that can be applied without restarting are tracked individually;
// everything else is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RateLimitChanged     bool
	NewCommandsPerMinute int

	SFXRoleChanged bool
	NewSFXRoleID   string

	// RestartRequired lists the YAML keys whose change only takes effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether any field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RateLimitChanged || d.SFXRoleChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Discord.CommandsPerMinute != new.Discord.CommandsPerMinute {
		d.RateLimitChanged = true
		d.NewCommandsPerMinute = new.Discord.CommandsPerMinute
	}
	if old.Discord.SFXRoleID != new.Discord.SFXRoleID {
		d.SFXRoleChanged = true
		d.NewSFXRoleID = new.Discord.SFXRoleID
	}

	restart := func(key string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, key)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("discord.token", old.Discord.Token != new.Discord.Token)
	restart("discord.guild_ids", !slices.Equal(old.Discord.GuildIDs, new.Discord.GuildIDs))
	restart("discord.message_prefix", old.Discord.MessagePrefix != new.Discord.MessagePrefix)
	restart("data.root", old.Data.Root != new.Data.Root)
	restart("playback", old.Playback != new.Playback)
	restart("media", old.Media != new.Media)

	return d
}
