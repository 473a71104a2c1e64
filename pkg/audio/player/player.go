// Package player provides [StreamPlayer], the concrete [audio.Player] that
// reads a decoded PCM stream, slices it into 20 ms frames and writes them to
// the subscribed sink at the pace the sink consumes them.
package player

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/botnek/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Player = (*StreamPlayer)(nil)

// Option configures a [StreamPlayer] during construction.
type Option func(*StreamPlayer)

// WithFrameDuration overrides the pacing interval used while no sink is
// subscribed. Intended for tests.
func WithFrameDuration(d time.Duration) Option {
	return func(p *StreamPlayer) {
		if d > 0 {
			p.frameDuration = d
		}
	}
}

// WithFrameBytes overrides the number of PCM bytes per frame.
func WithFrameBytes(n int) Option {
	return func(p *StreamPlayer) {
		if n > 0 && n%2 == 0 {
			p.frameBytes = n
		}
	}
}

// StreamPlayer is a concrete [audio.Player].
//
// Each call to [StreamPlayer.Play] starts a reader goroutine for the new
// stream and cancels the previous one. Frames are delivered to the sink
// synchronously, so a sink that consumes at real-time speed paces the
// player. Without a sink the player paces itself with a timer and discards
// the frames, mirroring an unsubscribed voice player.
//
// All exported methods are safe for concurrent use.
type StreamPlayer struct {
	frameBytes    int
	frameDuration time.Duration

	mu       sync.Mutex
	status   audio.PlayerStatus
	sink     audio.Sink
	current  *playback
	onChange func(old, new audio.PlayerStatus)
	closed   bool
}

// playback is one stream being played.
type playback struct {
	stream    audio.Stream
	cancel    chan struct{} // closed on forced stop
	soft      atomic.Bool   // set on graceful stop; checked between frames
	closeOnce sync.Once
}

func (pb *playback) close() {
	pb.closeOnce.Do(func() {
		if err := pb.stream.Close(); err != nil {
			slog.Debug("player: closing stream", "err", err)
		}
	})
}

// New creates an idle [StreamPlayer].
func New(opts ...Option) *StreamPlayer {
	p := &StreamPlayer{
		frameBytes:    audio.FrameBytes,
		frameDuration: audio.FrameDuration,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Status implements [audio.Player].
func (p *StreamPlayer) Status() audio.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Play implements [audio.Player]. A stream that is already playing is
// abandoned without an intermediate idle transition.
func (p *StreamPlayer) Play(s audio.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return audio.ErrPlayerClosed
	}
	if p.current != nil {
		close(p.current.cancel)
		go p.current.close()
	}

	pb := &playback{stream: s, cancel: make(chan struct{})}
	p.current = pb
	p.setStatusLocked(audio.PlayerPlaying)
	go p.play(pb)
	return nil
}

// Stop implements [audio.Player].
func (p *StreamPlayer) Stop(force bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pb := p.current
	if pb == nil {
		return false
	}
	if !force {
		pb.soft.Store(true)
		return true
	}

	close(pb.cancel)
	p.current = nil
	p.setStatusLocked(audio.PlayerIdle)
	// Closing unblocks a reader waiting on a slow decoder.
	go pb.close()
	return true
}

// Subscribe implements [audio.Player].
func (p *StreamPlayer) Subscribe(sink audio.Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// OnStateChange implements [audio.Player].
func (p *StreamPlayer) OnStateChange(cb func(old, new audio.PlayerStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = cb
}

// Close stops playback and rejects further streams. Close is idempotent.
func (p *StreamPlayer) Close() error {
	p.Stop(true)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// setStatusLocked records the new status and notifies the callback on a new
// goroutine. Must be called with p.mu held.
func (p *StreamPlayer) setStatusLocked(next audio.PlayerStatus) {
	old := p.status
	if old == next {
		return
	}
	p.status = next
	if cb := p.onChange; cb != nil {
		go cb(old, next)
	}
}

// play reads pb until EOF, error or cancellation and delivers the frames.
func (p *StreamPlayer) play(pb *playback) {
	defer pb.close()

	pacer := time.NewTicker(p.frameDuration)
	defer pacer.Stop()

	var pos time.Duration
	for {
		buf := make([]byte, p.frameBytes)
		n, err := io.ReadFull(pb.stream, buf)
		if n > 0 {
			// A short final read is padded with silence.
			frame := audio.AudioFrame{
				Data:       buf,
				SampleRate: audio.SampleRate,
				Channels:   audio.Channels,
				Timestamp:  pos,
			}
			if !p.deliver(pb, frame, pacer) {
				return
			}
			pos += p.frameDuration
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !p.cancelled(pb) {
				slog.Warn("player: stream ended with error", "err", err, "position", pos)
			}
			break
		}
		if pb.soft.Load() {
			break
		}
	}

	p.mu.Lock()
	if p.current == pb {
		p.current = nil
		p.setStatusLocked(audio.PlayerIdle)
	}
	p.mu.Unlock()
}

// deliver hands frame to the current sink, or waits one frame interval when
// nothing is subscribed. It returns false when pb was cancelled.
func (p *StreamPlayer) deliver(pb *playback, frame audio.AudioFrame, pacer *time.Ticker) bool {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()

	if sink == nil {
		select {
		case <-pb.cancel:
			return false
		case <-pacer.C:
			return true
		}
	}

	select {
	case <-pb.cancel:
		return false
	case sink.OutputStream() <- frame:
		return true
	}
}

func (p *StreamPlayer) cancelled(pb *playback) bool {
	select {
	case <-pb.cancel:
		return true
	default:
		return false
	}
}
