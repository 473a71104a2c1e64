// Package playback implements the per-guild audio pipeline: a FIFO of play
// requests drained one at a time into a single [audio.Player], bound to at
// most one [audio.VoiceConnection].
//
// An [Engine] holds two try-locks. queueLock marks the request currently
// being started; readyLock marks a pending wait for the connection to
// become ready. Neither is ever waited on: a caller that finds one held
// simply returns, and the holder picks up any work it left behind. The
// player going idle is the only event that advances the queue after a
// track started.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/botnek/internal/observe"
	"github.com/MrWong99/botnek/internal/track"
	"github.com/MrWong99/botnek/pkg/audio"
)

var (
	// ErrReadyTimeout means the voice connection did not become ready in
	// time. The connection is destroyed and the request fails.
	ErrReadyTimeout = errors.New("playback: voice connection not ready")

	// ErrStopped is returned for a request interrupted by [Engine.Stop]. It
	// is never reported to the requester.
	ErrStopped = errors.New("playback: stopped")
)

// Config holds the connection lifecycle timings.
type Config struct {
	// ReadyTimeout bounds the wait for a connection to become ready.
	ReadyTimeout time.Duration

	// ReconnectTimeout is how long a kicked connection may take to start
	// reconnecting on its own before it is destroyed.
	ReconnectTimeout time.Duration

	// RejoinBackoff is multiplied by the attempt number before a rejoin.
	RejoinBackoff time.Duration

	// MaxRejoinAttempts is the number of rejoins tried before giving up.
	MaxRejoinAttempts int
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		ReadyTimeout:      20 * time.Second,
		ReconnectTimeout:  5 * time.Second,
		RejoinBackoff:     5 * time.Second,
		MaxRejoinAttempts: 2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
	if c.ReconnectTimeout <= 0 {
		c.ReconnectTimeout = d.ReconnectTimeout
	}
	if c.RejoinBackoff <= 0 {
		c.RejoinBackoff = d.RejoinBackoff
	}
	if c.MaxRejoinAttempts <= 0 {
		c.MaxRejoinAttempts = d.MaxRejoinAttempts
	}
	return c
}

// Option configures an [Engine].
type Option func(*Engine)

// WithConfig overrides the lifecycle timings. Zero fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg.withDefaults() }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine drives playback for one guild. It is safe for concurrent use.
type Engine struct {
	guildID  string
	platform audio.Platform
	player   audio.Player
	cfg      Config
	metrics  *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	// stopMu serialises Stop calls.
	stopMu sync.Mutex

	mu        sync.Mutex
	queue     Queue
	link      *link
	queueLock bool
	// epoch is bumped by Stop so in-flight work can tell it was cancelled.
	epoch uint64
}

// New creates the engine of guildID. It registers itself as the player's
// state callback.
func New(guildID string, platform audio.Platform, player audio.Player, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(observe.WithGuild(context.Background(), guildID))
	e := &Engine{
		guildID:  guildID,
		platform: platform,
		player:   player,
		cfg:      DefaultConfig(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	player.OnStateChange(func(_, next audio.PlayerStatus) {
		if next == audio.PlayerIdle {
			e.drainNext()
		}
	})
	return e
}

// GuildID returns the guild the engine plays in.
func (e *Engine) GuildID() string { return e.guildID }

// Enqueue appends a request for t and starts draining in the background.
// It never blocks on playback.
func (e *Engine) Enqueue(origin Origin, t track.Track) {
	e.mu.Lock()
	e.queue.Enqueue(Request{Origin: origin, Track: t, enqueued: time.Now()})
	depth := e.queue.Len()
	e.mu.Unlock()

	e.metrics.QueueDepth.Add(e.ctx, 1, metricGuild(e.guildID))
	slog.Debug("playback: enqueued", "guild_id", e.guildID, "title", t.Title(), "depth", depth)
	go e.drainNext()
}

// Len returns the number of pending requests.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// Connected reports whether the engine currently holds a voice connection.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link != nil
}

// Stop clears the queue, stops the player and destroys the voice
// connection. Calling it again is a no-op.
func (e *Engine) Stop() {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()

	e.mu.Lock()
	e.queueLock = true
	e.epoch++
	dropped := e.queue.Len()
	e.queue.Clear()
	l := e.link
	e.link = nil
	e.mu.Unlock()

	if dropped > 0 {
		e.metrics.QueueDepth.Add(e.ctx, -int64(dropped), metricGuild(e.guildID))
	}
	e.player.Stop(true)
	if l != nil {
		e.teardown(l, "stop")
		slog.Info("playback: stopped", "guild_id", e.guildID, "dropped", dropped)
	}

	e.mu.Lock()
	e.queueLock = false
	e.mu.Unlock()
}

// Close stops playback and releases the engine. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	e.Stop()
	e.cancel()
}

// drainNext starts the next request unless one is already starting or the
// player is busy. Failed requests are reported and skipped.
func (e *Engine) drainNext() {
	for {
		e.mu.Lock()
		if e.queueLock || e.player.Status() != audio.PlayerIdle {
			e.mu.Unlock()
			return
		}
		req, ok := e.queue.Dequeue()
		if !ok {
			l := e.link
			e.link = nil
			e.mu.Unlock()
			if l != nil {
				slog.Debug("playback: queue drained, leaving channel", "guild_id", e.guildID)
				e.teardown(l, "idle")
			}
			return
		}
		e.queueLock = true
		epoch := e.epoch
		e.mu.Unlock()

		e.metrics.QueueDepth.Add(e.ctx, -1, metricGuild(e.guildID))
		err := e.playRequest(req, epoch)
		e.finish(req, err)

		e.mu.Lock()
		if e.epoch != epoch {
			// Stop took over the lock.
			e.mu.Unlock()
			return
		}
		e.queueLock = false
		e.mu.Unlock()
	}
}

// finish reports the outcome of one request.
func (e *Engine) finish(req Request, err error) {
	switch {
	case err == nil:
		e.metrics.RecordPlaybackRequest(e.ctx, e.guildID, observe.StatusOK)
	case errors.Is(err, ErrStopped):
	default:
		log := observe.Logger(e.ctx)
		log.Warn("playback: request failed", "title", req.Track.Title(), "err", err)
		e.metrics.RecordPlaybackRequest(e.ctx, e.guildID, observe.StatusError)
		req.Origin.NotifyError(err)
	}
}

// playRequest joins the requester's channel if needed and starts the track.
func (e *Engine) playRequest(req Request, epoch uint64) (err error) {
	ctx, span := observe.StartSpan(e.ctx, "playback.play",
		trace.WithAttributes(
			attribute.String("guild_id", e.guildID),
			attribute.String("title", req.Track.Title()),
		))
	defer func() {
		if err != nil && !errors.Is(err, ErrStopped) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := req.Origin.VoiceTarget()
	if err := target.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	l := e.link
	if l != nil && l.conn.State().Status != audio.StatusDestroyed && l.conn.ChannelID() == target.ChannelID {
		e.mu.Unlock()
		return e.startTrack(l, req, epoch)
	}
	e.link = nil
	e.mu.Unlock()

	if l != nil {
		e.teardown(l, "channel_change")
	}

	conn, err := e.platform.Join(ctx, e.guildID, target.ChannelID)
	if err != nil {
		return fmt.Errorf("playback: join %s: %w", target.ChannelID, err)
	}
	nl := newLink(e.ctx, conn)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		conn.Destroy()
		return ErrStopped
	}
	e.link = nl
	nl.readyLock = true
	e.mu.Unlock()

	e.metrics.ActiveConnections.Add(e.ctx, 1, metricGuild(e.guildID))
	slog.Info("playback: joining voice channel", "guild_id", e.guildID, "channel_id", target.ChannelID)
	nl.start(e.handleState)
	return e.awaitReady(nl, &req, epoch)
}

// awaitReady waits for l's connection to become ready, then subscribes the
// player and starts req if given. The caller must hold l.readyLock; it is
// released on return.
func (e *Engine) awaitReady(l *link, req *Request, epoch uint64) error {
	defer e.unlockReady(l)

	err := audio.WaitForStatus(l.ctx, l.conn, e.cfg.ReadyTimeout, audio.StatusReady)
	if err != nil {
		if l.ctx.Err() != nil {
			return ErrStopped
		}
		if req != nil {
			// The request fails on its own; the queue moves on with a
			// fresh connection.
			e.detach(l)
			e.teardown(l, "ready_timeout")
		} else {
			e.destroy(l, "ready_timeout")
		}
		return fmt.Errorf("%w: %w", ErrReadyTimeout, err)
	}

	e.player.Subscribe(l.conn)
	if req == nil {
		return nil
	}
	return e.startTrack(l, *req, epoch)
}

// startTrack opens the track's stream and hands it to the player.
func (e *Engine) startTrack(l *link, req Request, epoch uint64) error {
	s, err := req.Track.Stream(l.ctx)
	if err != nil {
		if l.ctx.Err() != nil {
			return ErrStopped
		}
		return err
	}

	e.mu.Lock()
	if e.epoch != epoch || e.link != l {
		e.mu.Unlock()
		s.Close()
		return ErrStopped
	}
	err = e.player.Play(s)
	e.mu.Unlock()
	if err != nil {
		s.Close()
		return fmt.Errorf("playback: play: %w", err)
	}

	if !req.enqueued.IsZero() {
		e.metrics.RecordPlaybackStart(e.ctx, e.guildID, time.Since(req.enqueued))
	}
	slog.Info("playback: playing", "guild_id", e.guildID, "title", req.Track.Title())
	req.Origin.NotifyPlaying(req.Track.Title())
	return nil
}

// handleState runs on the link's event loop for every connection state
// change.
func (e *Engine) handleState(l *link, c audio.StateChange) {
	if !e.isCurrent(l) {
		return
	}
	switch c.New.Status {
	case audio.StatusDisconnected:
		e.handleDisconnect(l, c.New)
	case audio.StatusSignalling, audio.StatusConnecting:
		if c.Old.Status == audio.StatusSignalling || c.Old.Status == audio.StatusConnecting {
			return
		}
		if e.tryLockReady(l) {
			go func() {
				if err := e.awaitReady(l, nil, 0); err != nil && !errors.Is(err, ErrStopped) {
					slog.Warn("playback: reconnect failed", "guild_id", e.guildID, "err", err)
				}
			}()
		}
	case audio.StatusDestroyed:
		slog.Info("playback: voice connection destroyed", "guild_id", e.guildID)
		e.Stop()
	}
}

func (e *Engine) handleDisconnect(l *link, st audio.ConnectionState) {
	if st.IsKicked() {
		// Discord sends 4014 both for kicks and for moves; a move shows up
		// as a reconnect shortly after, possibly before this runs.
		err := audio.WaitForStatus(l.ctx, l.conn, e.cfg.ReconnectTimeout,
			audio.StatusSignalling, audio.StatusConnecting, audio.StatusReady)
		if err != nil && l.ctx.Err() == nil {
			slog.Info("playback: removed from voice channel", "guild_id", e.guildID)
			e.destroy(l, "kicked")
		}
		return
	}

	attempts := l.conn.RejoinAttempts()
	if attempts >= e.cfg.MaxRejoinAttempts {
		slog.Warn("playback: giving up on voice connection", "guild_id", e.guildID, "attempts", attempts)
		e.destroy(l, "rejoin_exhausted")
		return
	}

	delay := time.Duration(attempts+1) * e.cfg.RejoinBackoff
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-l.ctx.Done():
		return
	}
	if err := l.conn.Rejoin(); err != nil {
		slog.Warn("playback: rejoin failed", "guild_id", e.guildID, "err", err)
		return
	}
	e.metrics.VoiceRejoins.Add(e.ctx, 1, metricGuild(e.guildID))
	slog.Info("playback: rejoining voice channel", "guild_id", e.guildID, "attempt", attempts+1)
}

func (e *Engine) isCurrent(l *link) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link == l
}

func (e *Engine) detach(l *link) {
	e.mu.Lock()
	if e.link == l {
		e.link = nil
	}
	e.mu.Unlock()
}

func (e *Engine) tryLockReady(l *link) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l.readyLock {
		return false
	}
	l.readyLock = true
	return true
}

func (e *Engine) unlockReady(l *link) {
	e.mu.Lock()
	l.readyLock = false
	e.mu.Unlock()
}

// destroy destroys l's connection unless it already is.
func (e *Engine) destroy(l *link, reason string) {
	if l.conn.State().Status == audio.StatusDestroyed {
		return
	}
	l.conn.Destroy()
	e.metrics.RecordVoiceDestroy(e.ctx, reason)
}

// teardown detaches the engine from l and destroys its connection. l must
// no longer be the current link. Safe to call more than once.
func (e *Engine) teardown(l *link, reason string) {
	l.teardownOnce.Do(func() {
		l.close()
		e.destroy(l, reason)
		e.metrics.ActiveConnections.Add(e.ctx, -1, metricGuild(e.guildID))
	})
}

func metricGuild(guildID string) metric.AddOption {
	return metric.WithAttributes(observe.Attr("guild_id", guildID))
}
