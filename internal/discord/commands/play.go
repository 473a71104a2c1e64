package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/botnek/internal/discord"
	"github.com/MrWong99/botnek/internal/track"
)

// PlayCommands holds the dependencies for /play and /stop.
type PlayCommands struct {
	queues   Queues
	resolver Resolver
}

// NewPlayCommands creates a PlayCommands and registers its handlers with
// router.
func NewPlayCommands(router *discord.CommandRouter, queues Queues, resolver Resolver) *PlayCommands {
	pc := &PlayCommands{queues: queues, resolver: resolver}
	pc.Register(router)
	return pc
}

// Register registers /play and /stop with the router.
func (pc *PlayCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("play", pc.PlayDefinition(), pc.handlePlay, "url")
	router.RegisterHelp("play", "Usage: `/play <url>`\nExample: `/play https://www.youtube.com/watch?v=dQw4w9WgXcQ`")
	router.RegisterCommand("stop", pc.StopDefinition(), pc.handleStop)
	router.RegisterHelp("stop", "Command: `stop`")
}

// PlayDefinition returns the /play ApplicationCommand definition.
func (pc *PlayCommands) PlayDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "play",
		Description: "Play a youtube clip in your current channel.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "url",
				Description: "The url",
				Required:    true,
			},
		},
	}
}

// StopDefinition returns the /stop ApplicationCommand definition.
func (pc *PlayCommands) StopDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "stop",
		Description: "Stop and clear current audio queue.",
	}
}

// handlePlay handles /play.
func (pc *PlayCommands) handlePlay(ctx context.Context, inv *discord.Invocation) error {
	url := inv.Option("url")
	if !track.ValidYouTubeURL(url) {
		inv.ReplyEphemeral(fmt.Sprintf("Url scheme not supported: `%s`", url))
		return nil
	}
	if inv.VoiceTarget().ChannelID == "" {
		inv.ReplyEphemeral("You must join a voice channel to play audio.")
		return nil
	}
	queue, err := pc.queues(inv.GuildID)
	if err != nil {
		slog.Error("commands: no playback engine for guild", "guild_id", inv.GuildID, "err", err)
		inv.ReplyEphemeral(somethingWrong)
		return nil
	}

	inv.Reply(fmt.Sprintf("Added %s to the queue", url))

	remote, err := pc.resolver.Resolve(ctx, url)
	if err != nil {
		inv.NotifyError(err)
		return nil
	}
	queue.Enqueue(inv, remote)
	return nil
}

// handleStop handles /stop.
func (pc *PlayCommands) handleStop(_ context.Context, inv *discord.Invocation) error {
	queue, err := pc.queues(inv.GuildID)
	if err != nil {
		slog.Error("commands: no playback engine for guild", "guild_id", inv.GuildID, "err", err)
		inv.ReplyEphemeral(somethingWrong)
		return nil
	}
	queue.Stop()
	inv.Reply("Stopping!")
	return nil
}
