// Command botnek is the main entry point for the Botnek Discord bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/botnek/internal/app"
	"github.com/MrWong99/botnek/internal/config"
	discordbot "github.com/MrWong99/botnek/internal/discord"
	"github.com/MrWong99/botnek/internal/health"
	"github.com/MrWong99/botnek/internal/media"
	"github.com/MrWong99/botnek/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file (empty to use the environment only)")
	flag.Parse()

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "botnek: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	path := *configPath
	if _, err := os.Stat(path); path != "" && errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "botnek: config file %q not found, using environment only\n", path)
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "botnek: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("botnek starting",
		"version", version,
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"data_root", cfg.Data.Root,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(discordbot.Config{
		Token:             cfg.Discord.Token,
		GuildIDs:          cfg.Discord.GuildIDs,
		MessagePrefix:     cfg.Discord.MessagePrefix,
		SFXRoleID:         cfg.Discord.SFXRoleID,
		CommandsPerMinute: cfg.Discord.CommandsPerMinute,
	}, discordbot.WithRouterMetrics(metrics))
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}

	tc := media.New(cfg.Media.FFmpegPath)
	if err := tc.Probe(ctx); err != nil {
		slog.Warn("ffmpeg not usable, playback will fail until it is installed", "binary", tc.Binary(), "err", err)
	}

	application := app.New(cfg, bot.Platform(), bot,
		app.WithTranscoder(tc),
		app.WithMetrics(metrics),
	)
	application.RegisterCommands(bot.Router(), bot.Permissions())
	bot.OnGuildsReady(func(ctx context.Context, guildIDs []string) {
		if err := application.InitGuilds(ctx, guildIDs); err != nil {
			slog.Error("some guilds failed to initialise", "err", err)
		}
	})

	// ── Hot reload ────────────────────────────────────────────────────────────
	if path != "" {
		reloader, err := config.NewReloader(path, func(d config.ConfigDiff) {
			applyReload(d, &level, bot)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	// ── Ops server ────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.GatewayChecker(bot.Connected),
		health.BinaryChecker("ffmpeg", tc.Probe),
		health.DirChecker("data", cfg.Data.Root),
	).Register(mux)
	mux.Handle("GET /metrics", tel.Handler)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server error", "err", err)
		}
	}()

	if err := bot.Open(); err != nil {
		slog.Error("failed to connect to Discord", "err", err)
		return 1
	}

	slog.Info("bot ready, press Ctrl+C to shut down")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	exit := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("ops server shutdown error", "err", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// applyReload applies the hot-reloadable parts of a config change.
func applyReload(d config.ConfigDiff, level *slog.LevelVar, bot *discordbot.Bot) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RateLimitChanged {
		bot.Router().SetRateLimit(d.NewCommandsPerMinute)
		slog.Info("command rate limit changed", "per_minute", d.NewCommandsPerMinute)
	}
	if d.SFXRoleChanged {
		bot.Permissions().SetRole(d.NewSFXRoleID)
		slog.Info("sfx role changed", "role_id", d.NewSFXRoleID)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "keys", strings.Join(d.RestartRequired, ", "))
	}
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
