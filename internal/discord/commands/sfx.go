package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/botnek/internal/discord"
	"github.com/MrWong99/botnek/internal/sfx"
	"github.com/MrWong99/botnek/internal/track"
)

// SFXCommands holds the dependencies for the /sfx command group.
type SFXCommands struct {
	queues    Queues
	libraries Libraries
	perms     *discord.PermissionChecker
}

// NewSFXCommands creates an SFXCommands and registers its handlers with
// router.
func NewSFXCommands(router *discord.CommandRouter, queues Queues, libraries Libraries, perms *discord.PermissionChecker) *SFXCommands {
	sc := &SFXCommands{queues: queues, libraries: libraries, perms: perms}
	sc.Register(router)
	return sc
}

// Register registers the /sfx command group with the router.
func (sc *SFXCommands) Register(router *discord.CommandRouter) {
	def := sc.Definition()
	router.RegisterCommand("sfx/play", def, sc.handlePlay, "alias")
	router.RegisterHandler("sfx/chain", sc.handleChain, "sfxs...")
	router.RegisterHandler("sfx/list", sc.handleList)
	router.RegisterHandler("sfx/add", sc.handleAdd, "alias", "url", "start-time", "end-time")
	router.RegisterHandler("sfx/del", sc.handleDel, "alias")
	router.RegisterHandler("sfx/help", sc.handleHelp)
	router.RegisterDefault("sfx", "sfx/play")
	router.RegisterHelp("sfx", "Try `sfx help` for more info.")
}

// Definition returns the /sfx ApplicationCommand definition.
func (sc *SFXCommands) Definition() *discordgo.ApplicationCommand {
	aliasOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "alias",
			Description: desc,
			Required:    true,
		}
	}
	return &discordgo.ApplicationCommand{
		Name:        "sfx",
		Description: "Interact with sound effects.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "List all existing sfxs.",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Add a sound effect.",
				Options: []*discordgo.ApplicationCommandOption{
					aliasOption("The name for the sound effect."),
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "url",
						Description: "A url to the sound effect (youtube only for now).",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "start-time",
						Description: "Time to start the clip from [XXmYYs format]",
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "end-time",
						Description: "Time to end the clip at [XXmYYs format]",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "del",
				Description: "Remove a sound effect.",
				Options:     []*discordgo.ApplicationCommandOption{aliasOption("The alias of the sound effect to delete.")},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "play",
				Description: "Play a sound effect in your current channel.",
				Options:     []*discordgo.ApplicationCommandOption{aliasOption("The name for the sound effect.")},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "chain",
				Description: "Chain multiple sound effects together.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "sfxs",
						Description: "List of sound effects to play (space or comma separated). Example: `one,two` or `one two`",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "help",
				Description: "Print help for the sfx commands.",
			},
		},
	}
}

// handlePlay handles /sfx play and "!sfx <alias>".
func (sc *SFXCommands) handlePlay(ctx context.Context, inv *discord.Invocation) error {
	input := inv.Option("alias")
	if input == "" {
		inv.ReplyEphemeral("No sfx alias provided!")
		return nil
	}
	sound, err := sfx.ParseAlias(input)
	if err != nil {
		inv.ReplyEphemeral(fmt.Sprintf("`%s` is not a valid alias, only lowercase and numbers allowed.", input))
		return nil
	}
	lib, queue, ok := sc.resources(inv)
	if !ok {
		return nil
	}
	if missing := lib.Missing([]sfx.Sound{sound}); len(missing) > 0 {
		sc.replyUnknown(inv, lib, sound.Alias)
		return nil
	}

	t, err := lib.Track(ctx, sound)
	if err != nil {
		return err
	}
	inv.Reply(fmt.Sprintf("Playing `%s`", sound))
	queue.Enqueue(inv, t)
	return nil
}

// handleChain handles /sfx chain.
func (sc *SFXCommands) handleChain(ctx context.Context, inv *discord.Invocation) error {
	input := inv.Option("sfxs")
	if strings.TrimSpace(input) == "" {
		inv.ReplyEphemeral("No sfx chain provided.")
		return nil
	}
	sounds, err := sfx.ParseChain(input)
	switch {
	case errors.Is(err, sfx.ErrChainTooLong):
		inv.ReplyEphemeral(fmt.Sprintf("Can only chain up to %d sound effects, you psychopath.", sfx.MaxChain))
		return nil
	case errors.Is(err, sfx.ErrEmptyChain):
		inv.ReplyEphemeral("Must chain at least one sfx")
		return nil
	case err != nil:
		inv.ReplyEphemeral(fmt.Sprintf("Invalid sfx chain: %v", err))
		return nil
	}
	lib, queue, ok := sc.resources(inv)
	if !ok {
		return nil
	}
	if missing := lib.Missing(sounds); len(missing) > 0 {
		slog.Warn("commands: chain names unknown sfx", "guild_id", inv.GuildID, "missing", missing)
		inv.ReplyEphemeral(fmt.Sprintf("The following sfx don't exist: `[%s]`", strings.Join(missing, ", ")))
		return nil
	}

	// Build every track before queueing any so a failure queues nothing.
	tracks := make([]track.Track, 0, len(sounds))
	names := make([]string, 0, len(sounds))
	for _, s := range sounds {
		t, err := lib.Track(ctx, s)
		if err != nil {
			return err
		}
		tracks = append(tracks, t)
		names = append(names, fmt.Sprintf("`%s`", s))
	}
	for _, t := range tracks {
		queue.Enqueue(inv, t)
	}
	inv.Reply("Queued chain of " + strings.Join(names, " -> "))
	return nil
}

// handleList handles /sfx list.
func (sc *SFXCommands) handleList(_ context.Context, inv *discord.Invocation) error {
	lib, err := sc.libraries(inv.GuildID)
	if err != nil {
		slog.Error("commands: no sfx library for guild", "guild_id", inv.GuildID, "err", err)
		inv.ReplyEphemeral(somethingWrong)
		return nil
	}
	aliases := lib.List()
	if len(aliases) == 0 {
		inv.ReplyEphemeral("No sound effects yet. Add one with `sfx add <alias> <youtube-url>`.")
		return nil
	}
	inv.ReplyEphemeral("```\n" + sfx.FormatList(aliases) + "\n```")
	return nil
}

// handleAdd handles /sfx add.
func (sc *SFXCommands) handleAdd(ctx context.Context, inv *discord.Invocation) error {
	if !sc.perms.CanManage(inv) {
		inv.ReplyEphemeral("You need the sfx role to add sound effects.")
		return nil
	}
	alias, url := inv.Option("alias"), inv.Option("url")
	if alias == "" || url == "" {
		inv.ReplyEphemeral("Invalid input, please provide an alias and url")
		return nil
	}
	start, ok := parseBound(inv, "start-time")
	if !ok {
		return nil
	}
	end, ok := parseBound(inv, "end-time")
	if !ok {
		return nil
	}
	lib, err := sc.libraries(inv.GuildID)
	if err != nil {
		slog.Error("commands: no sfx library for guild", "guild_id", inv.GuildID, "err", err)
		inv.ReplyEphemeral(somethingWrong)
		return nil
	}

	// Downloading and clipping outlasts the interaction response window.
	inv.Defer(false)
	err = lib.Add(ctx, alias, url, start, end)
	var fetchErr *track.MediaFetchError
	switch {
	case err == nil:
		inv.Reply(fmt.Sprintf("Added `%s`", alias))
	case errors.Is(err, sfx.ErrReservedAlias):
		inv.ReplyEphemeral(fmt.Sprintf("`%s` is a reserved alias.", alias))
	case errors.Is(err, sfx.ErrInvalidAlias):
		inv.ReplyEphemeral(fmt.Sprintf("`%s` is not a valid alias, only lowercase and numbers allowed.", alias))
	case errors.Is(err, sfx.ErrAliasExists):
		inv.ReplyEphemeral(fmt.Sprintf("Sfx %s already exists!", alias))
	case errors.Is(err, sfx.ErrUnsupportedURL):
		inv.ReplyEphemeral(fmt.Sprintf("URL %s is not supported", url))
	case errors.Is(err, sfx.ErrInvalidClip):
		inv.ReplyEphemeral("startTime cannot be after endTime.")
	case errors.Is(err, sfx.ErrTooLong):
		inv.ReplyEphemeral(fmt.Sprintf("Too long: [%s] would be > %s.", url, lib.MaxLength()))
	case errors.As(err, &fetchErr):
		inv.ReplyEphemeral(fmt.Sprintf("Could not download %s: %v", url, fetchErr.Err))
	default:
		return err
	}
	return nil
}

// handleDel handles /sfx del.
func (sc *SFXCommands) handleDel(_ context.Context, inv *discord.Invocation) error {
	if !sc.perms.CanManage(inv) {
		inv.ReplyEphemeral("You need the sfx role to delete sound effects.")
		return nil
	}
	alias := inv.Option("alias")
	if alias == "" {
		inv.ReplyEphemeral("No alias provided")
		return nil
	}
	lib, err := sc.libraries(inv.GuildID)
	if err != nil {
		slog.Error("commands: no sfx library for guild", "guild_id", inv.GuildID, "err", err)
		inv.ReplyEphemeral(somethingWrong)
		return nil
	}

	existed, err := lib.Delete(alias)
	switch {
	case errors.Is(err, sfx.ErrInvalidAlias):
		inv.ReplyEphemeral(fmt.Sprintf("`%s` is not a valid alias, only lowercase and numbers allowed.", alias))
	case errors.Is(err, sfx.ErrUnknownAlias):
		inv.ReplyEphemeral(fmt.Sprintf("Sfx `%s` does not exist!", alias))
	case err != nil:
		return err
	case !existed:
		inv.Reply("Sfx file did not exist, removed.")
	default:
		inv.Reply(fmt.Sprintf("Deleted `%s`", alias))
	}
	return nil
}

// handleHelp handles /sfx help.
func (sc *SFXCommands) handleHelp(_ context.Context, inv *discord.Invocation) error {
	inv.ReplyEmbed(sfxHelpEmbed(), false)
	return nil
}

// resources looks up the guild's library and queue, answering the caller
// when either is missing or they are not in a voice channel.
func (sc *SFXCommands) resources(inv *discord.Invocation) (*sfx.Library, Queue, bool) {
	if inv.VoiceTarget().ChannelID == "" {
		inv.ReplyEphemeral("You must join a voice channel to play audio.")
		return nil, nil, false
	}
	lib, err := sc.libraries(inv.GuildID)
	if err != nil {
		slog.Error("commands: no sfx library for guild", "guild_id", inv.GuildID, "err", err)
		inv.ReplyEphemeral(somethingWrong)
		return nil, nil, false
	}
	queue, err := sc.queues(inv.GuildID)
	if err != nil {
		slog.Error("commands: no playback engine for guild", "guild_id", inv.GuildID, "err", err)
		inv.ReplyEphemeral(somethingWrong)
		return nil, nil, false
	}
	return lib, queue, true
}

func (sc *SFXCommands) replyUnknown(inv *discord.Invocation, lib *sfx.Library, alias string) {
	msg := fmt.Sprintf("`%s` does not exist!", alias)
	if guess, ok := lib.Suggest(alias); ok {
		msg += fmt.Sprintf(" Did you mean `%s`?", guess)
	}
	inv.ReplyEphemeral(msg)
}

// parseBound reads an optional clip boundary, answering the caller when
// it does not parse.
func parseBound(inv *discord.Invocation, option string) (time.Duration, bool) {
	raw := inv.Option(option)
	if raw == "" {
		return 0, true
	}
	d, err := sfx.ParseTimestamp(raw)
	if err != nil {
		inv.ReplyEphemeral(fmt.Sprintf("Could not read %s `%s`, use e.g. `1m30s` or `1:30`.", option, raw))
		return 0, false
	}
	return d, true
}

func sfxHelpEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:     embedColor,
		Title:     "`SFX` Commands Overview",
		Timestamp: time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "SFX Subcommands",
				Value: strings.Join([]string{
					"Play a sound effect: `sfx <alias>`",
					"Play a sound effect: `sfx play <alias>`",
					"Chain sound effects: `sfx chain <alias1>, <alias2>, etc...`",
					"List available sounds: `sfx list`",
					"Add a sound effect: `sfx add <alias> <youtube-url> [start-time] [end-time]`",
					"Remove a sound effect: `sfx del <alias>`",
				}, "\n"),
			},
			{
				Name:  "Aliases",
				Value: "Existing sfxs can be found using the `sfx list` command. `random` plays any of them.",
			},
			{
				Name: "SFX Modifiers",
				Value: strings.Join([]string{
					"Modify any sfx using available modifiers. Apply up to two per sound effect.",
					"Available Modifiers:",
					"- TURBO: 33% faster (ex: `sfx yay#turbo`)",
					"- TURBO2: 100% faster (ex: `sfx yay#turbo2`)",
					"- SLOW: 33% slower (ex: `sfx yay#slow`)",
					"- SLOW2: 100% slower (ex: `sfx yay#slow2`)",
				}, "\n"),
			},
		},
	}
}
