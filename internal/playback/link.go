package playback

import (
	"context"
	"sync"

	"github.com/MrWong99/botnek/pkg/audio"
)

// link binds one voice connection to the engine. State changes of the
// connection are queued in a mailbox and handled one at a time on the
// link's own goroutine, so handlers may block (backoff sleeps, status
// waits) without stalling the connection.
type link struct {
	conn   audio.VoiceConnection
	ctx    context.Context
	cancel context.CancelFunc

	// readyLock is guarded by Engine.mu.
	readyLock bool

	mu      sync.Mutex
	pending []audio.StateChange
	remove  func()
	closed  bool
	wake    chan struct{}

	teardownOnce sync.Once
}

func newLink(parent context.Context, conn audio.VoiceConnection) *link {
	ctx, cancel := context.WithCancel(parent)
	return &link{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
}

// start registers the state listener and runs the event loop.
func (l *link) start(handle func(*link, audio.StateChange)) {
	remove := l.conn.OnStateChange(l.push)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		remove()
		return
	}
	l.remove = remove
	l.mu.Unlock()
	go l.loop(handle)
}

func (l *link) push(c audio.StateChange) {
	l.mu.Lock()
	l.pending = append(l.pending, c)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *link) next() (audio.StateChange, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return audio.StateChange{}, false
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	return c, true
}

func (l *link) loop(handle func(*link, audio.StateChange)) {
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.wake:
		}
		for l.ctx.Err() == nil {
			c, ok := l.next()
			if !ok {
				break
			}
			handle(l, c)
		}
	}
}

// close stops event delivery and cancels everything bound to the link's
// context. It does not wait for the loop, so it is safe to call from a
// handler.
func (l *link) close() {
	l.mu.Lock()
	l.closed = true
	remove := l.remove
	l.remove = nil
	l.pending = nil
	l.mu.Unlock()

	l.cancel()
	if remove != nil {
		remove()
	}
}
