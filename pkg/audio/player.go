package audio

import "errors"

// ErrPlayerClosed is returned by [Player.Play] after the player was closed.
var ErrPlayerClosed = errors.New("audio: player closed")

// PlayerStatus is the playback state of a [Player].
type PlayerStatus int

const (
	// PlayerIdle means nothing is playing and a new stream may be started.
	PlayerIdle PlayerStatus = iota

	// PlayerPlaying means a stream is being read and written to the sink.
	PlayerPlaying
)

// String returns the human-readable name of the status.
func (s PlayerStatus) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Player paces a decoded [Stream] into frames and hands them to its
// subscribed [Sink]. It plays one stream at a time.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Status returns the current playback state.
	Status() PlayerStatus

	// Play starts playing s, replacing whatever was playing before. The
	// player takes ownership of s and closes it when playback ends.
	Play(s Stream) error

	// Stop ends the current stream and reports whether anything was
	// playing. With force unset the frame being delivered is allowed to
	// complete first; with force set the stream is abandoned immediately.
	Stop(force bool) bool

	// Subscribe routes subsequent frames to sink, replacing the previous
	// subscription. A nil sink unsubscribes; frames are then paced and
	// discarded.
	Subscribe(sink Sink)

	// OnStateChange registers cb as the callback for status transitions.
	// Only one callback may be registered at a time; subsequent calls
	// replace the previous registration. The callback is invoked on a new
	// goroutine and must not block.
	OnStateChange(cb func(old, new PlayerStatus))
}
