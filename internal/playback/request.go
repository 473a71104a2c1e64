package playback

import (
	"errors"
	"time"

	"github.com/MrWong99/botnek/internal/track"
)

// Validation errors. They fail the offending request only.
var (
	ErrNoGuild        = errors.New("playback: request has no guild")
	ErrNoMember       = errors.New("playback: request has no member")
	ErrNoVoiceChannel = errors.New("playback: member is not in a voice channel")
)

// Target is where a request wants to be heard.
type Target struct {
	GuildID   string
	MemberID  string
	ChannelID string
}

// Validate reports the first missing piece of t.
func (t Target) Validate() error {
	switch {
	case t.GuildID == "":
		return ErrNoGuild
	case t.MemberID == "":
		return ErrNoMember
	case t.ChannelID == "":
		return ErrNoVoiceChannel
	}
	return nil
}

// Origin is the requesting context of a play request: a slash command
// interaction or a text message. The engine uses it only to find the voice
// target and to report the outcome.
type Origin interface {
	// VoiceTarget resolves the requester's current voice channel. It is
	// evaluated when the request is played, not when it is queued.
	VoiceTarget() Target

	// NotifyPlaying is called once the track starts.
	NotifyPlaying(title string)

	// NotifyError is called when the request is abandoned.
	NotifyError(err error)
}

// Request is a pending play request.
type Request struct {
	Origin Origin
	Track  track.Track

	enqueued time.Time
}

// Queue is the ordered list of pending requests of one guild. It has no
// locking of its own; the owning [Engine] guards it.
type Queue struct {
	items []Request
}

// Enqueue appends req to the tail.
func (q *Queue) Enqueue(req Request) {
	q.items = append(q.items, req)
}

// Dequeue pops the head. ok is false when the queue is empty.
func (q *Queue) Dequeue() (req Request, ok bool) {
	if len(q.items) == 0 {
		return Request{}, false
	}
	req = q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]
	return req, true
}

// Clear discards every pending request.
func (q *Queue) Clear() {
	clear(q.items)
	q.items = q.items[:0]
}

// IsEmpty reports whether nothing is pending.
func (q *Queue) IsEmpty() bool { return len(q.items) == 0 }

// Len returns the number of pending requests.
func (q *Queue) Len() int { return len(q.items) }
