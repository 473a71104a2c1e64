// Package mock provides in-memory implementations of [playback.Origin] and
// [track.Track] for engine tests.
package mock

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/botnek/internal/playback"
	"github.com/MrWong99/botnek/pkg/audio"
)

// Origin is a mock [playback.Origin]. Set Target to control where requests
// want to play; read Played and Errors after.
type Origin struct {
	mu sync.Mutex

	// Target is returned by VoiceTarget.
	Target playback.Target

	// Played records every NotifyPlaying title.
	Played []string

	// Errors records every NotifyError argument.
	Errors []error

	events chan struct{}
}

var _ playback.Origin = (*Origin)(nil)

// NewOrigin returns an origin targeting the given guild, member and channel.
func NewOrigin(guildID, memberID, channelID string) *Origin {
	return &Origin{Target: playback.Target{GuildID: guildID, MemberID: memberID, ChannelID: channelID}}
}

func (o *Origin) eventsCh() chan struct{} {
	if o.events == nil {
		o.events = make(chan struct{}, 64)
	}
	return o.events
}

// VoiceTarget implements [playback.Origin].
func (o *Origin) VoiceTarget() playback.Target {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Target
}

// NotifyPlaying implements [playback.Origin].
func (o *Origin) NotifyPlaying(title string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Played = append(o.Played, title)
	o.signalLocked()
}

// NotifyError implements [playback.Origin].
func (o *Origin) NotifyError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Errors = append(o.Errors, err)
	o.signalLocked()
}

func (o *Origin) signalLocked() {
	select {
	case o.eventsCh() <- struct{}{}:
	default:
	}
}

// Events receives once per NotifyPlaying or NotifyError call.
func (o *Origin) Events() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.eventsCh()
}

// PlayedTitles returns a snapshot of Played.
func (o *Origin) PlayedTitles() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.Played...)
}

// Errs returns a snapshot of Errors.
func (o *Origin) Errs() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.Errors...)
}

// Track is a mock [track.Track] producing an in-memory stream.
type Track struct {
	mu sync.Mutex

	// Name is returned by Title.
	Name string

	// StreamError is returned by Stream.
	StreamError error

	// CallCountStream records how many times Stream was called.
	CallCountStream int
}

// NewTrack returns a track titled name.
func NewTrack(name string) *Track { return &Track{Name: name} }

// Title implements [track.Track].
func (t *Track) Title() string { return t.Name }

// Stream implements [track.Track].
func (t *Track) Stream(context.Context) (audio.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountStream++
	if t.StreamError != nil {
		return nil, t.StreamError
	}
	return &Stream{Reader: strings.NewReader(t.Name)}, nil
}

// StreamCount returns CallCountStream under the lock.
func (t *Track) StreamCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CallCountStream
}

// Stream is an [audio.Stream] over an in-memory reader.
type Stream struct {
	io.Reader

	mu     sync.Mutex
	closed bool
}

// Close implements [io.Closer].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
