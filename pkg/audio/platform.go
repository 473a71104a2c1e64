// Package audio defines the interfaces and types for voice channel
// connectivity and stream playback within Botnek.
//
// The primary abstractions are:
//
//   - [Platform] joins a voice channel and returns a [VoiceConnection].
//   - [VoiceConnection] is a live session on that channel. It exposes a
//     status lifecycle (signalling, connecting, ready, disconnected, destroyed),
//     an output stream for encoded playback, and recovery controls.
//   - [Player] turns a PCM [Stream] into paced [AudioFrame] values and writes
//     them to a subscribed [Sink].
//
// Implementations of these interfaces are provided by adapter packages
// (audio/discord, audio/player). The interfaces are intentionally narrow so
// the playback engine can be driven entirely by in-memory fakes in tests.
package audio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// CloseCodeDisconnected is the voice gateway close code Discord uses when the
// bot was removed from the channel: kicked, moved away, or the channel was
// deleted.
const CloseCodeDisconnected = 4014

// ErrStateTimeout is returned by [WaitForStatus] when none of the awaited
// statuses was reached in time.
var ErrStateTimeout = errors.New("audio: timed out waiting for connection status")

// ConnectionStatus is the lifecycle stage of a [VoiceConnection].
type ConnectionStatus int

const (
	// StatusSignalling means the join request was sent and the connection is
	// waiting for the voice server to be assigned.
	StatusSignalling ConnectionStatus = iota

	// StatusConnecting means the voice server is known and the transport
	// handshake is in progress.
	StatusConnecting

	// StatusReady means audio can be sent.
	StatusReady

	// StatusDisconnected means the transport was lost. The connection may
	// still be recovered with [VoiceConnection.Rejoin].
	StatusDisconnected

	// StatusDestroyed is terminal.
	StatusDestroyed
)

// String returns the human-readable name of the status.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusSignalling:
		return "signalling"
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusDisconnected:
		return "disconnected"
	case StatusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// DisconnectReason explains why a connection entered [StatusDisconnected].
type DisconnectReason int

const (
	// ReasonNone is used for every status other than disconnected.
	ReasonNone DisconnectReason = iota

	// ReasonWebSocketClose means the voice gateway closed the connection.
	// [ConnectionState.CloseCode] carries the gateway close code.
	ReasonWebSocketClose

	// ReasonAdapterUnavailable means the join request could not be sent or
	// the handshake failed before the connection became ready.
	ReasonAdapterUnavailable

	// ReasonEndpointRemoved means Discord revoked the voice server assignment.
	ReasonEndpointRemoved
)

// String returns the human-readable name of the reason.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonWebSocketClose:
		return "websocket_close"
	case ReasonAdapterUnavailable:
		return "adapter_unavailable"
	case ReasonEndpointRemoved:
		return "endpoint_removed"
	default:
		return "unknown"
	}
}

// ConnectionState is a snapshot of a [VoiceConnection] lifecycle.
type ConnectionState struct {
	Status ConnectionStatus

	// Reason is set when Status is [StatusDisconnected].
	Reason DisconnectReason

	// CloseCode is the gateway close code when Reason is [ReasonWebSocketClose].
	CloseCode int
}

// IsKicked reports whether the state describes a forced removal from the
// channel, in which case rejoining is pointless unless Discord moves the
// connection elsewhere on its own.
func (s ConnectionState) IsKicked() bool {
	return s.Status == StatusDisconnected &&
		s.Reason == ReasonWebSocketClose &&
		s.CloseCode == CloseCodeDisconnected
}

// StateChange is delivered to callbacks registered with
// [VoiceConnection.OnStateChange].
type StateChange struct {
	Old ConnectionState
	New ConnectionState
}

// Sink receives paced PCM frames for transmission.
type Sink interface {
	// OutputStream returns the write-only channel for outgoing frames. The
	// channel is buffered; a slow consumer applies back-pressure to the
	// writer.
	//
	// The sink never closes this channel. Frames written after the sink was
	// torn down are dropped.
	OutputStream() chan<- AudioFrame
}

// VoiceConnection represents one guild's session on a voice channel.
//
// Implementations must be safe for concurrent use.
type VoiceConnection interface {
	Sink

	// GuildID returns the guild the connection belongs to.
	GuildID() string

	// ChannelID returns the voice channel the connection is currently bound to.
	ChannelID() string

	// State returns the current lifecycle snapshot.
	State() ConnectionState

	// RejoinAttempts returns how many times [VoiceConnection.Rejoin] was
	// called since the connection was last ready.
	RejoinAttempts() int

	// Rejoin re-sends the join request for the current channel and moves the
	// connection back to [StatusSignalling]. It fails on a destroyed
	// connection.
	Rejoin() error

	// Destroy tears the connection down and moves it to [StatusDestroyed].
	// It is safe to call more than once; subsequent calls are no-ops.
	Destroy()

	// OnStateChange registers cb for every status transition and returns a
	// function that removes the registration. Multiple callbacks may be
	// registered.
	//
	// Callbacks run synchronously on the goroutine performing the transition,
	// in transition order. They must not block and must not call back into
	// the connection.
	OnStateChange(cb func(StateChange)) (remove func())
}

// Platform is the entry point for a voice provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Join starts joining channelID in guildID and returns immediately with a
	// connection in [StatusSignalling]. The handshake continues in the
	// background; callers observe its outcome through
	// [VoiceConnection.OnStateChange] or [WaitForStatus].
	//
	// ctx only bounds the join request itself.
	Join(ctx context.Context, guildID, channelID string) (VoiceConnection, error)
}

// WaitForStatus blocks until conn reaches any of the given statuses, the
// timeout elapses, or ctx is cancelled. It returns nil immediately when conn
// is already in one of the statuses.
//
// On timeout the returned error wraps [ErrStateTimeout].
func WaitForStatus(ctx context.Context, conn VoiceConnection, timeout time.Duration, statuses ...ConnectionStatus) error {
	if slices.Contains(statuses, conn.State().Status) {
		return nil
	}

	hit := make(chan struct{}, 1)
	remove := conn.OnStateChange(func(ch StateChange) {
		if slices.Contains(statuses, ch.New.Status) {
			select {
			case hit <- struct{}{}:
			default:
			}
		}
	})
	defer remove()

	// The transition may have happened between the first check and the
	// registration.
	if slices.Contains(statuses, conn.State().Status) {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-hit:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %v after %s", ErrStateTimeout, statuses, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
