// Package app wires Botnek's per-guild subsystems into a running bot.
//
// The App struct owns the guild lifecycle: New prepares the shared media
// tooling, InitGuilds creates a playback engine and sound library for every
// guild the gateway reports, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithTranscoder,
// WithFetcher, WithPlayerFactory). When an option is not provided, New
// creates the real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/botnek/internal/config"
	"github.com/MrWong99/botnek/internal/discord"
	"github.com/MrWong99/botnek/internal/discord/commands"
	"github.com/MrWong99/botnek/internal/guild"
	"github.com/MrWong99/botnek/internal/media"
	"github.com/MrWong99/botnek/internal/observe"
	"github.com/MrWong99/botnek/internal/playback"
	"github.com/MrWong99/botnek/internal/resilience"
	"github.com/MrWong99/botnek/internal/sfx"
	"github.com/MrWong99/botnek/internal/track"
	"github.com/MrWong99/botnek/pkg/audio"
	"github.com/MrWong99/botnek/pkg/audio/player"
)

// initConcurrency bounds how many guilds are prepared at once on Ready.
const initConcurrency = 8

// Registrar publishes the slash commands of a guild.
type Registrar interface {
	RegisterCommands(guildID string) error
}

// App owns every guild's playback engine and sound library.
type App struct {
	cfg       *config.Config
	platform  audio.Platform
	registrar Registrar
	metrics   *observe.Metrics

	tc        sfx.Transcoder
	fetcher   sfx.Fetcher
	newPlayer func() audio.Player

	engines   *guild.Registry[*playback.Engine]
	libraries *guild.Registry[*sfx.Library]

	// closersMu guards closers, which are called in order during Shutdown.
	closersMu sync.Mutex
	closers   []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTranscoder injects a transcoder instead of running ffmpeg.
func WithTranscoder(tc sfx.Transcoder) Option {
	return func(a *App) { a.tc = tc }
}

// WithFetcher injects a video fetcher instead of the YouTube client.
func WithFetcher(f sfx.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithPlayerFactory injects the audio player created for each guild.
func WithPlayerFactory(fn func() audio.Player) Option {
	return func(a *App) { a.newPlayer = fn }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App. Guild resources are created later by [App.InitGuilds].
func New(cfg *config.Config, platform audio.Platform, registrar Registrar, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		platform:  platform,
		registrar: registrar,
		engines:   guild.NewRegistry[*playback.Engine]("playback engine"),
		libraries: guild.NewRegistry[*sfx.Library]("sound library"),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.tc == nil {
		a.tc = media.New(cfg.Media.FFmpegPath)
	}
	if a.fetcher == nil {
		a.fetcher = a.newYouTube()
	}
	if a.newPlayer == nil {
		a.newPlayer = func() audio.Player { return player.New() }
	}
	return a
}

func (a *App) newYouTube() *track.YouTube {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "youtube",
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker transition", "name", name, "from", from, "to", to)
			a.metrics.RecordCircuitTransition(context.Background(), name, to.String())
		},
	})
	return track.NewYouTube(a.tc,
		track.WithBreaker(breaker),
		track.WithFetchErrorHook(a.metrics.RecordMediaFetchError),
	)
}

// RegisterCommands installs every command group on router.
func (a *App) RegisterCommands(router *discord.CommandRouter, perms *discord.PermissionChecker) {
	commands.NewPlayCommands(router, a.Queue, a.fetcher)
	commands.NewSFXCommands(router, a.Queue, a.Library, perms)
	commands.NewHelpCommands(router)
}

// InitGuilds prepares the resources of every guild in guildIDs and
// publishes its slash commands. Guilds that were prepared before keep
// their engine and library. A failing guild does not stop the others; the
// first error is returned.
func (a *App) InitGuilds(ctx context.Context, guildIDs []string) error {
	var g errgroup.Group
	g.SetLimit(initConcurrency)
	for _, id := range guildIDs {
		g.Go(func() error {
			if err := a.initGuild(ctx, id); err != nil {
				slog.Error("app: guild init failed", "guild_id", id, "err", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *App) initGuild(ctx context.Context, guildID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(a.cfg.Data.Root, guildID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("app: create guild dir: %w", err)
	}

	if _, err := a.libraries.GetOrInit(guildID, func() (*sfx.Library, error) {
		return sfx.Open(dir, a.tc, a.fetcher, sfx.WithMaxLength(a.cfg.Media.MaxSFXLength))
	}); err != nil {
		return fmt.Errorf("app: open sound library: %w", err)
	}

	if _, err := a.engines.GetOrInit(guildID, func() (*playback.Engine, error) {
		p := a.newPlayer()
		e := playback.New(guildID, a.platform, p,
			playback.WithConfig(playbackConfig(a.cfg.Playback)),
			playback.WithMetrics(a.metrics),
		)
		a.addCloser(func() error {
			e.Close()
			if c, ok := p.(interface{ Close() error }); ok {
				return c.Close()
			}
			return nil
		})
		return e, nil
	}); err != nil {
		return err
	}

	if a.registrar != nil {
		if err := a.registrar.RegisterCommands(guildID); err != nil {
			return err
		}
	}
	slog.Info("app: guild ready", "guild_id", guildID, "dir", dir)
	return nil
}

// Queue returns the playback engine of guildID.
func (a *App) Queue(guildID string) (commands.Queue, error) {
	e, err := a.engines.Get(guildID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Engine returns the playback engine of guildID.
func (a *App) Engine(guildID string) (*playback.Engine, error) {
	return a.engines.Get(guildID)
}

// Library returns the sound library of guildID.
func (a *App) Library(guildID string) (*sfx.Library, error) {
	return a.libraries.Get(guildID)
}

// Guilds returns the number of prepared guilds.
func (a *App) Guilds() int {
	return a.engines.Len()
}

func (a *App) addCloser(fn func() error) {
	a.closersMu.Lock()
	defer a.closersMu.Unlock()
	a.closers = append(a.closers, fn)
}

// Shutdown stops every guild's playback. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.closersMu.Lock()
		closers := a.closers
		a.closersMu.Unlock()
		slog.Info("shutting down", "closers", len(closers))

		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// playbackConfig converts the config section to engine timings.
func playbackConfig(pc config.PlaybackConfig) playback.Config {
	return playback.Config{
		ReadyTimeout:      pc.ReadyTimeout,
		ReconnectTimeout:  pc.ReconnectTimeout,
		RejoinBackoff:     pc.RejoinBackoff,
		MaxRejoinAttempts: pc.MaxRejoinAttempts,
	}
}
