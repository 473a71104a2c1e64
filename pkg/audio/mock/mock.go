// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.VoiceConnection] and [audio.Player] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	platform := &mock.Platform{
//	    OnJoin: func(c *mock.VoiceConnection) { c.SetState(audio.ConnectionState{Status: audio.StatusReady}) },
//	}
//	conn, err := platform.Join(ctx, "guild-1", "channel-42")
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/botnek/pkg/audio"
)

// ErrDestroyed is returned by [VoiceConnection.Rejoin] on a destroyed connection.
var ErrDestroyed = errors.New("mock: connection destroyed")

// ─── VoiceConnection ──────────────────────────────────────────────────────────

// VoiceConnection is a mock implementation of [audio.VoiceConnection].
// Drive its lifecycle with [VoiceConnection.SetState]; inspect the CallCount*
// fields after.
type VoiceConnection struct {
	mu sync.Mutex

	guildID   string
	channelID string
	state     audio.ConnectionState
	attempts  int
	listeners map[int]func(audio.StateChange)
	nextID    int
	out       chan audio.AudioFrame

	// emitMu serialises transitions so callbacks observe them in order.
	emitMu sync.Mutex

	// RejoinError is returned by [VoiceConnection.Rejoin].
	RejoinError error

	// RejoinStatus, when non-nil, is the status the connection moves to on
	// Rejoin. By default Rejoin leaves the status untouched so tests decide
	// how the handshake unfolds.
	RejoinStatus *audio.ConnectionStatus

	// CallCountRejoin records how many times Rejoin was called.
	CallCountRejoin int

	// CallCountDestroy records how many times Destroy was called.
	CallCountDestroy int
}

// NewVoiceConnection returns a connection in [audio.StatusSignalling] bound
// to the given guild and channel.
func NewVoiceConnection(guildID, channelID string) *VoiceConnection {
	return &VoiceConnection{
		guildID:   guildID,
		channelID: channelID,
		listeners: make(map[int]func(audio.StateChange)),
		out:       make(chan audio.AudioFrame, 64),
	}
}

// GuildID implements [audio.VoiceConnection].
func (c *VoiceConnection) GuildID() string { return c.guildID }

// ChannelID implements [audio.VoiceConnection].
func (c *VoiceConnection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// SetChannelID simulates Discord moving the connection to another channel.
func (c *VoiceConnection) SetChannelID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelID = id
}

// OutputStream implements [audio.Sink]. Frames are buffered; read them with
// [VoiceConnection.Frames].
func (c *VoiceConnection) OutputStream() chan<- audio.AudioFrame { return c.out }

// Frames returns the receive side of the output stream.
func (c *VoiceConnection) Frames() <-chan audio.AudioFrame { return c.out }

// State implements [audio.VoiceConnection].
func (c *VoiceConnection) State() audio.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RejoinAttempts implements [audio.VoiceConnection].
func (c *VoiceConnection) RejoinAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Rejoin implements [audio.VoiceConnection]. It increments the attempt
// counter and, if RejoinStatus is set, transitions to that status.
func (c *VoiceConnection) Rejoin() error {
	c.mu.Lock()
	c.CallCountRejoin++
	if c.state.Status == audio.StatusDestroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.RejoinError != nil {
		err := c.RejoinError
		c.mu.Unlock()
		return err
	}
	c.attempts++
	next := c.RejoinStatus
	c.mu.Unlock()

	if next != nil {
		c.SetState(audio.ConnectionState{Status: *next})
	}
	return nil
}

// Destroy implements [audio.VoiceConnection]. Every call is counted; only the
// first one transitions to [audio.StatusDestroyed].
func (c *VoiceConnection) Destroy() {
	c.mu.Lock()
	c.CallCountDestroy++
	already := c.state.Status == audio.StatusDestroyed
	c.mu.Unlock()

	if !already {
		c.SetState(audio.ConnectionState{Status: audio.StatusDestroyed})
	}
}

// DestroyCount returns CallCountDestroy under the lock.
func (c *VoiceConnection) DestroyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDestroy
}

// RejoinCount returns CallCountRejoin under the lock.
func (c *VoiceConnection) RejoinCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountRejoin
}

// OnStateChange implements [audio.VoiceConnection].
func (c *VoiceConnection) OnStateChange(cb func(audio.StateChange)) func() {
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

// SetState transitions the connection and synchronously notifies every
// registered callback. Entering [audio.StatusReady] resets the rejoin
// counter, as the Discord adapter does.
func (c *VoiceConnection) SetState(next audio.ConnectionState) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	old := c.state
	c.state = next
	if next.Status == audio.StatusReady {
		c.attempts = 0
	}
	cbs := make([]func(audio.StateChange), 0, len(c.listeners))
	for _, cb := range c.listeners {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(audio.StateChange{Old: old, New: next})
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// JoinCall records the arguments of a single [Platform.Join] invocation.
type JoinCall struct {
	GuildID   string
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform]. Every successful
// Join creates a fresh [VoiceConnection].
type Platform struct {
	mu sync.Mutex

	// JoinError is the error returned by Join.
	JoinError error

	// OnJoin, when set, is invoked on a new goroutine with every connection
	// returned by Join. Use it to script the handshake.
	OnJoin func(*VoiceConnection)

	// JoinCalls records all Join invocations.
	JoinCalls []JoinCall

	// Connections holds every connection returned by Join, in order.
	Connections []*VoiceConnection
}

// Join implements [audio.Platform].
func (p *Platform) Join(_ context.Context, guildID, channelID string) (audio.VoiceConnection, error) {
	p.mu.Lock()
	p.JoinCalls = append(p.JoinCalls, JoinCall{GuildID: guildID, ChannelID: channelID})
	if p.JoinError != nil {
		err := p.JoinError
		p.mu.Unlock()
		return nil, err
	}
	conn := NewVoiceConnection(guildID, channelID)
	p.Connections = append(p.Connections, conn)
	onJoin := p.OnJoin
	p.mu.Unlock()

	if onJoin != nil {
		go onJoin(conn)
	}
	return conn, nil
}

// Conns returns a snapshot of Connections.
func (p *Platform) Conns() []*VoiceConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*VoiceConnection, len(p.Connections))
	copy(out, p.Connections)
	return out
}

// JoinCount returns the number of Join calls.
func (p *Platform) JoinCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.JoinCalls)
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player]. Play moves it to
// [audio.PlayerPlaying] and it stays there until the test calls
// [Player.Finish] or the code under test calls Stop.
type Player struct {
	mu sync.Mutex

	status   audio.PlayerStatus
	onChange func(old, new audio.PlayerStatus)

	// PlayError is returned by Play.
	PlayError error

	// Played records every stream passed to Play.
	Played []audio.Stream

	// Sinks records every Subscribe argument.
	Sinks []audio.Sink

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// playing is signalled after every successful Play.
	playing chan struct{}
}

func (p *Player) playingCh() chan struct{} {
	if p.playing == nil {
		p.playing = make(chan struct{}, 64)
	}
	return p.playing
}

// Status implements [audio.Player].
func (p *Player) Status() audio.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Play implements [audio.Player].
func (p *Player) Play(s audio.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlayError != nil {
		return p.PlayError
	}
	p.Played = append(p.Played, s)
	p.setLocked(audio.PlayerPlaying)
	select {
	case p.playingCh() <- struct{}{}:
	default:
	}
	return nil
}

// Stop implements [audio.Player].
func (p *Player) Stop(bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	was := p.status == audio.PlayerPlaying
	p.setLocked(audio.PlayerIdle)
	return was
}

// Subscribe implements [audio.Player].
func (p *Player) Subscribe(sink audio.Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Sinks = append(p.Sinks, sink)
}

// OnStateChange implements [audio.Player].
func (p *Player) OnStateChange(cb func(old, new audio.PlayerStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = cb
}

// Finish simulates the current stream ending naturally.
func (p *Player) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(audio.PlayerIdle)
}

// Playing returns a channel that receives once per successful Play.
func (p *Player) Playing() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playingCh()
}

// PlayCount returns len(Played) under the lock.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}

// StopCount returns CallCountStop under the lock.
func (p *Player) StopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountStop
}

// SinkCount returns len(Sinks) under the lock.
func (p *Player) SinkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Sinks)
}

func (p *Player) setLocked(next audio.PlayerStatus) {
	old := p.status
	if old == next {
		return
	}
	p.status = next
	if cb := p.onChange; cb != nil {
		go cb(old, next)
	}
}
