package discord

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/botnek/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.VoiceConnection = (*Connection)(nil)

const outputChannelBuffer = 16

// ErrDestroyed is returned by [Connection.Rejoin] once the connection was
// destroyed.
var ErrDestroyed = errors.New("discord: voice connection destroyed")

// joinFunc performs the blocking voice handshake for one channel.
type joinFunc func(guildID, channelID string) (*discordgo.VoiceConnection, error)

// Connection adapts a discordgo voice session to [audio.VoiceConnection].
//
// discordgo's ChannelVoiceJoin blocks until the voice websocket and UDP
// transport are up, so the handshake runs on a background goroutine and its
// progress is published as status transitions. Gateway VoiceStateUpdate and
// VoiceServerUpdate events for the bot user drive the disconnected and
// connecting transitions. Outgoing PCM frames are Opus-encoded and written
// to the current discordgo connection.
//
// Connection is safe for concurrent use.
type Connection struct {
	guildID   string
	botUserID string
	join      joinFunc

	// disconnectVC tears down a discordgo connection. Defaults to
	// (*discordgo.VoiceConnection).Disconnect; overridden in tests.
	disconnectVC func(*discordgo.VoiceConnection) error

	mu        sync.Mutex
	vc        *discordgo.VoiceConnection
	channelID string
	state     audio.ConnectionState
	attempts  int
	listeners map[int]func(audio.StateChange)
	nextID    int
	handlers  []func()

	// emitMu serialises transitions so listeners observe them in order.
	emitMu sync.Mutex

	output    chan audio.AudioFrame
	done      chan struct{}
	closeOnce sync.Once
}

// newConnection creates a Connection in [audio.StatusSignalling] and starts
// its send loop. The handshake is not started; call [Connection.handshake].
func newConnection(guildID, channelID, botUserID string, join joinFunc) *Connection {
	c := &Connection{
		guildID:      guildID,
		channelID:    channelID,
		botUserID:    botUserID,
		join:         join,
		disconnectVC: (*discordgo.VoiceConnection).Disconnect,
		listeners:    make(map[int]func(audio.StateChange)),
		output:       make(chan audio.AudioFrame, outputChannelBuffer),
		done:         make(chan struct{}),
	}
	go c.sendLoop()
	return c
}

// GuildID implements [audio.VoiceConnection].
func (c *Connection) GuildID() string { return c.guildID }

// ChannelID implements [audio.VoiceConnection].
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// OutputStream implements [audio.Sink]. Frames are dropped while no
// discordgo connection is established.
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.output
}

// State implements [audio.VoiceConnection].
func (c *Connection) State() audio.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RejoinAttempts implements [audio.VoiceConnection].
func (c *Connection) RejoinAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Rejoin implements [audio.VoiceConnection]. The previous discordgo
// connection, if any, is torn down before the handshake restarts.
func (c *Connection) Rejoin() error {
	c.mu.Lock()
	if c.state.Status == audio.StatusDestroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	c.attempts++
	old := c.vc
	c.vc = nil
	c.mu.Unlock()

	if old != nil {
		if err := c.disconnectVC(old); err != nil {
			slog.Debug("discord: tearing down voice connection before rejoin", "guild_id", c.guildID, "err", err)
		}
	}

	c.setState(audio.ConnectionState{Status: audio.StatusSignalling})
	go c.handshake()
	return nil
}

// Destroy implements [audio.VoiceConnection]. It is safe to call more than
// once; subsequent calls are no-ops.
func (c *Connection) Destroy() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		vc := c.vc
		c.vc = nil
		handlers := c.handlers
		c.handlers = nil
		c.mu.Unlock()

		for _, remove := range handlers {
			remove()
		}
		if vc != nil {
			if err := c.disconnectVC(vc); err != nil {
				slog.Warn("discord: voice disconnect error", "guild_id", c.guildID, "err", err)
			}
		}
		c.setState(audio.ConnectionState{Status: audio.StatusDestroyed})
	})
}

// OnStateChange implements [audio.VoiceConnection].
func (c *Connection) OnStateChange(cb func(audio.StateChange)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = cb
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// handshake runs the blocking discordgo join and publishes its outcome.
func (c *Connection) handshake() {
	if !c.transition(audio.ConnectionState{Status: audio.StatusConnecting}, audio.StatusSignalling) {
		return
	}

	vc, err := c.join(c.guildID, c.ChannelID())
	if c.destroyed() {
		if vc != nil {
			_ = c.disconnectVC(vc)
		}
		return
	}
	if err != nil {
		slog.Warn("discord: voice handshake failed", "guild_id", c.guildID, "channel_id", c.ChannelID(), "err", err)
		c.setState(audio.ConnectionState{
			Status: audio.StatusDisconnected,
			Reason: audio.ReasonAdapterUnavailable,
		})
		return
	}

	c.mu.Lock()
	c.vc = vc
	c.mu.Unlock()
	c.setState(audio.ConnectionState{Status: audio.StatusReady})
}

// sendLoop encodes PCM frames from the output channel to Opus and hands them
// to the current discordgo connection. The discordgo sender paces the
// packets, so a full OpusSend channel blocks this loop and, through the
// buffered output channel, the player.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "error", err)
		return
	}

	var speaking *discordgo.VoiceConnection

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.output:
			if len(frame.Data) != audio.FrameBytes {
				slog.Warn("discord: dropping frame with unexpected size", "bytes", len(frame.Data))
				continue
			}

			c.mu.Lock()
			vc := c.vc
			c.mu.Unlock()
			if vc == nil {
				continue
			}

			if speaking != vc {
				setSpeaking(vc, true)
				speaking = vc
			}

			opus, eErr := enc.encode(frame.Data)
			if eErr != nil {
				slog.Warn("discord: opus encode error", "error", eErr)
				continue
			}

			select {
			case vc.OpusSend <- opus:
			case <-c.done:
				return
			}
		}
	}
}

// handleVoiceStateUpdate watches the bot's own voice state. Leaving the
// channel without being told to is reported as a 4014 close; being moved
// updates the bound channel.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu == nil || vsu.VoiceState == nil || vsu.GuildID != c.guildID || vsu.UserID != c.botUserID {
		return
	}

	if vsu.ChannelID == "" {
		c.transition(audio.ConnectionState{
			Status:    audio.StatusDisconnected,
			Reason:    audio.ReasonWebSocketClose,
			CloseCode: audio.CloseCodeDisconnected,
		}, audio.StatusReady, audio.StatusConnecting)
		return
	}

	c.mu.Lock()
	moved := vsu.ChannelID != c.channelID
	c.channelID = vsu.ChannelID
	hasVC := c.vc != nil
	c.mu.Unlock()

	if !moved {
		return
	}
	slog.Info("discord: moved to another voice channel", "guild_id", c.guildID, "channel_id", vsu.ChannelID)
	// discordgo follows the move on its own, so a live session is ready again
	// straight away.
	if c.transition(audio.ConnectionState{Status: audio.StatusConnecting},
		audio.StatusReady, audio.StatusDisconnected) && hasVC {
		c.transition(audio.ConnectionState{Status: audio.StatusReady}, audio.StatusConnecting)
	}
}

// handleVoiceServerUpdate reports a revoked voice server as a disconnect.
func (c *Connection) handleVoiceServerUpdate(_ *discordgo.Session, vsu *discordgo.VoiceServerUpdate) {
	if vsu == nil || vsu.GuildID != c.guildID || vsu.Endpoint != "" {
		return
	}
	c.transition(audio.ConnectionState{
		Status: audio.StatusDisconnected,
		Reason: audio.ReasonEndpointRemoved,
	}, audio.StatusReady, audio.StatusConnecting)
}

// addHandlers records gateway handler removers so Destroy can release them.
func (c *Connection) addHandlers(removers ...func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, removers...)
}

func (c *Connection) destroyed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// transition moves to next only if the current status is one of from.
func (c *Connection) transition(next audio.ConnectionState, from ...audio.ConnectionStatus) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	ok := false
	for _, s := range from {
		if c.state.Status == s {
			ok = true
			break
		}
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.setStateLocked(next)
	return true
}

// setState records next and notifies listeners synchronously.
func (c *Connection) setState(next audio.ConnectionState) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.setStateLocked(next)
}

// setStateLocked must be called with c.emitMu held.
func (c *Connection) setStateLocked(next audio.ConnectionState) {
	c.mu.Lock()
	old := c.state
	if old.Status == audio.StatusDestroyed {
		c.mu.Unlock()
		return
	}
	c.state = next
	if next.Status == audio.StatusReady {
		c.attempts = 0
	}
	cbs := make([]func(audio.StateChange), 0, len(c.listeners))
	for _, cb := range c.listeners {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()

	slog.Debug("discord: voice connection state", "guild_id", c.guildID, "from", old.Status, "to", next.Status, "reason", next.Reason)
	for _, cb := range cbs {
		cb(audio.StateChange{Old: old, New: next})
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func setSpeaking(vc *discordgo.VoiceConnection, b bool) {
	if err := vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
