// Package discord provides the Discord bot layer for Botnek. It owns the
// discordgo.Session lifecycle, routes slash commands and prefixed text
// messages to registered handlers, and checks the sound-library role.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/botnek/pkg/audio"
	discordaudio "github.com/MrWong99/botnek/pkg/audio/discord"
)

// ErrNotReady is returned by operations that need the gateway's Ready
// event before it arrived.
var ErrNotReady = errors.New("discord: session not ready")

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildIDs restricts the bot to these guilds. Empty serves every guild
	// the bot is a member of.
	GuildIDs []string

	// MessagePrefix starts text commands, e.g. "!".
	MessagePrefix string

	// SFXRoleID is the role required to add or delete sounds. Empty allows
	// everyone.
	SFXRoleID string

	// CommandsPerMinute is the per-user command rate limit. Zero disables it.
	CommandsPerMinute int
}

// Bot owns the Discord gateway connection and routes commands to
// registered handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	router    *CommandRouter
	perms     *PermissionChecker
	allowed   []string
	prefix    string
	onReady   func(ctx context.Context, guildIDs []string)
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a Bot and registers its gateway handlers. The gateway is
// not contacted until [Bot.Open].
func New(cfg Config, opts ...RouterOption) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	opts = append([]RouterOption{WithRateLimit(cfg.CommandsPerMinute)}, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		session:  session,
		platform: discordaudio.New(session),
		router:   NewCommandRouter(opts...),
		perms:    NewPermissionChecker(cfg.SFXRoleID),
		allowed:  cfg.GuildIDs,
		prefix:   cfg.MessagePrefix,
		ctx:      ctx,
		cancel:   cancel,
	}

	session.AddHandler(b.handleReady)
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if !b.serves(i.GuildID) {
			return
		}
		b.router.HandleInteraction(b.ctx, s, b.VoiceChannel, i.Interaction)
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.GuildID == "" || !b.serves(m.GuildID) {
			return
		}
		b.router.HandleMessage(b.ctx, s, b.VoiceChannel, m.Message, b.prefix)
	})

	return b, nil
}

// OnGuildsReady registers fn to run whenever the gateway reports Ready,
// with the IDs of the guilds the bot serves. fn runs on its own goroutine.
func (b *Bot) OnGuildsReady(fn func(ctx context.Context, guildIDs []string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReady = fn
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	return nil
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Connected reports whether the gateway session is open and ready.
func (b *Bot) Connected() bool {
	b.session.RLock()
	defer b.session.RUnlock()
	return b.session.DataReady
}

// VoiceChannel returns the voice channel userID is in within guildID, as
// tracked by the gateway state cache.
func (b *Bot) VoiceChannel(guildID, userID string) string {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

// RegisterCommands replaces the guild's application commands with the
// router's definitions.
func (b *Bot) RegisterCommands(guildID string) error {
	if b.session.State == nil || b.session.State.User == nil {
		return ErrNotReady
	}
	appID := b.session.State.User.ID
	cmds := b.router.ApplicationCommands()
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	if err != nil {
		return fmt.Errorf("discord: register commands in guild %s: %w", guildID, err)
	}
	slog.Info("discord commands registered", "guild_id", guildID, "count", len(registered))
	return nil
}

func (b *Bot) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	var ids []string
	for _, g := range r.Guilds {
		if b.serves(g.ID) {
			ids = append(ids, g.ID)
		}
	}
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	slog.Info("discord: ready", "user", name, "guilds", len(ids))
	if len(ids) == 0 {
		slog.Warn("discord: not a member of any served guild")
	}

	b.mu.RLock()
	fn := b.onReady
	b.mu.RUnlock()
	if fn != nil {
		go fn(b.ctx, ids)
	}
}

// serves reports whether guildID passes the configured allow-list.
func (b *Bot) serves(guildID string) bool {
	return len(b.allowed) == 0 || slices.Contains(b.allowed, guildID)
}

// Close disconnects from Discord. Handlers still running see a cancelled
// context.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.cancel()

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}
