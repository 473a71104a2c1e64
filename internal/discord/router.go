package discord

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/MrWong99/botnek/internal/observe"
)

// HandlerFunc handles one command invocation. Problems with the caller's
// input are answered by the handler itself; a returned error is reported
// to the caller as an internal failure.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

// restArg marks the last argument name of a text command as consuming all
// remaining words.
const restArg = "..."

// commandEntry stores a command definition along with its handler.
type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
	args    []string
}

// HelpEntry describes one top-level command for the help overview.
type HelpEntry struct {
	Name        string
	Description string
	Text        string
}

// CommandRouter dispatches slash commands and prefixed text messages to
// registered handlers. Both forms share the same keys: "command" or
// "command/subcommand".
type CommandRouter struct {
	mu       sync.RWMutex
	commands map[string]commandEntry // "command" or "command/subcommand" → entry
	defaults map[string]string       // command → key used when no subcommand matches
	help     map[string]string       // command → help text

	limitMu  sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter

	metrics *observe.Metrics
}

// RouterOption configures a [CommandRouter].
type RouterOption func(*CommandRouter)

// WithRateLimit allows each user n commands per minute. Zero disables the
// limit.
func WithRateLimit(n int) RouterOption {
	return func(r *CommandRouter) { r.perMin = n }
}

// WithRouterMetrics sets the metrics the router records into.
func WithRouterMetrics(m *observe.Metrics) RouterOption {
	return func(r *CommandRouter) { r.metrics = m }
}

// NewCommandRouter creates an empty router.
func NewCommandRouter(opts ...RouterOption) *CommandRouter {
	r := &CommandRouter{
		commands: make(map[string]commandEntry),
		defaults: make(map[string]string),
		help:     make(map[string]string),
		limiters: make(map[string]*rate.Limiter),
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterCommand registers a handler for a slash command. The cmd
// definition is used when registering commands with Discord (only top-level
// commands are registered; subcommands are nested inside). args names the
// options a text command supplies positionally; a last name ending in "..."
// takes the rest of the message.
func (r *CommandRouter) RegisterCommand(key string, cmd *discordgo.ApplicationCommand, handler HandlerFunc, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key] = commandEntry{command: cmd, handler: handler, args: args}
}

// RegisterHandler registers a handler for a key without a command
// definition. Use this for subcommand handlers when the parent command is
// already registered.
func (r *CommandRouter) RegisterHandler(key string, handler HandlerFunc, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key] = commandEntry{handler: handler, args: args}
}

// RegisterDefault routes text commands naming command but no known
// subcommand to key, e.g. "!sfx yay" to "sfx/play".
func (r *CommandRouter) RegisterDefault(command, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[command] = key
}

// RegisterHelp sets the help text shown for command in the overview.
func (r *CommandRouter) RegisterHelp(command, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.help[command] = text
}

// SetRateLimit changes the per-user limit. Existing buckets are dropped.
func (r *CommandRouter) SetRateLimit(n int) {
	r.limitMu.Lock()
	defer r.limitMu.Unlock()
	r.perMin = n
	clear(r.limiters)
}

// ApplicationCommands returns the deduplicated top-level command
// definitions, sorted by name.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var cmds []*discordgo.ApplicationCommand
	for _, entry := range r.commands {
		if entry.command != nil && !seen[entry.command.Name] {
			seen[entry.command.Name] = true
			cmds = append(cmds, entry.command)
		}
	}
	slices.SortFunc(cmds, func(a, b *discordgo.ApplicationCommand) int { return cmp.Compare(a.Name, b.Name) })
	return cmds
}

// Help returns one entry per registered top-level command, sorted by name.
func (r *CommandRouter) Help() []HelpEntry {
	cmds := r.ApplicationCommands()

	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]HelpEntry, 0, len(cmds))
	for _, c := range cmds {
		entries = append(entries, HelpEntry{Name: c.Name, Description: c.Description, Text: r.help[c.Name]})
	}
	return entries
}

// HandleInteraction dispatches a slash command interaction.
func (r *CommandRouter) HandleInteraction(ctx context.Context, rs Responder, locate VoiceLocator, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
		return
	}
	data := i.ApplicationCommandData()
	key, opts := interactionKey(data)
	inv := NewInteractionInvocation(rs, locate, i, key, opts)

	r.mu.RLock()
	entry, ok := r.commands[key]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("discord: unknown command", "key", key)
		inv.ReplyEphemeral("Unknown command.")
		return
	}
	r.dispatch(ctx, entry, inv)
}

// HandleMessage dispatches a text message that starts with prefix. It
// reports whether the message named a known command.
func (r *CommandRouter) HandleMessage(ctx context.Context, rs Responder, locate VoiceLocator, m *discordgo.Message, prefix string) bool {
	content, ok := strings.CutPrefix(m.Content, prefix)
	if !ok {
		return false
	}
	entry, key, args, ok := r.resolveMessage(strings.Fields(content))
	if !ok {
		slog.Debug("discord: ignoring unknown text command", "content", content)
		return false
	}
	inv := NewMessageInvocation(rs, locate, m, key, bindArgs(entry.args, args))

	// Every text command acts on the caller's voice session.
	if inv.VoiceTarget().ChannelID == "" {
		inv.Reply("You must join a voice channel before sending a command")
		return true
	}
	r.dispatch(ctx, entry, inv)
	return true
}

func (r *CommandRouter) resolveMessage(fields []string) (commandEntry, string, []string, bool) {
	if len(fields) == 0 {
		return commandEntry{}, "", nil, false
	}
	name := strings.ToLower(fields[0])

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(fields) > 1 {
		key := name + "/" + strings.ToLower(fields[1])
		if entry, ok := r.commands[key]; ok {
			return entry, key, fields[2:], true
		}
	}
	if key, ok := r.defaults[name]; ok {
		if entry, ok := r.commands[key]; ok {
			return entry, key, fields[1:], true
		}
	}
	if entry, ok := r.commands[name]; ok {
		return entry, name, fields[1:], true
	}
	return commandEntry{}, "", nil, false
}

func (r *CommandRouter) dispatch(ctx context.Context, entry commandEntry, inv *Invocation) {
	if !r.allow(inv.UserID) {
		slog.Info("discord: rate limited", "user_id", inv.UserID, "command", inv.Key)
		r.metrics.RecordCommand(ctx, inv.Key, observe.StatusRejected)
		inv.ReplyEphemeral("Slow down! You are sending commands too quickly.")
		return
	}

	ctx = observe.WithGuild(ctx, inv.GuildID)
	ctx, span := observe.StartSpan(ctx, "discord.command")
	defer span.End()

	observe.Logger(ctx).Info("discord: command received", "command", inv.Key, "user_id", inv.UserID)
	if err := entry.handler(ctx, inv); err != nil {
		observe.Logger(ctx).Error("discord: command failed", "command", inv.Key, "err", err)
		span.RecordError(err)
		r.metrics.RecordCommand(ctx, inv.Key, observe.StatusError)
		inv.ReplyEphemeral(fmt.Sprintf("An error occurred: ```\n%s\n```", truncate(err.Error(), 1500)))
		return
	}
	r.metrics.RecordCommand(ctx, inv.Key, observe.StatusOK)
}

// allow consumes one token from userID's bucket.
func (r *CommandRouter) allow(userID string) bool {
	r.limitMu.Lock()
	defer r.limitMu.Unlock()

	if r.perMin <= 0 {
		return true
	}
	l, ok := r.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMin)), r.perMin)
		r.limiters[userID] = l
	}
	return l.Allow()
}

// interactionKey builds a router key and the option values from an
// ApplicationCommand interaction.
func interactionKey(data discordgo.ApplicationCommandInteractionData) (string, map[string]string) {
	key := data.Name
	opts := data.Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		key += "/" + opts[0].Name
		opts = opts[0].Options
	}
	values := make(map[string]string, len(opts))
	for _, o := range opts {
		values[o.Name] = fmt.Sprint(o.Value)
	}
	return key, values
}

// bindArgs assigns positional words to option names.
func bindArgs(names, words []string) map[string]string {
	values := make(map[string]string, len(names))
	for i, name := range names {
		if i >= len(words) {
			break
		}
		if rest, ok := strings.CutSuffix(name, restArg); ok {
			values[rest] = strings.Join(words[i:], " ")
			break
		}
		values[name] = words[i]
	}
	return values
}
