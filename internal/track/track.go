// Package track defines the playable units handed to the playback engine.
//
// A [Track] is immutable once built. Its audio is produced lazily by
// [Track.Stream] at play time, never at enqueue time, so a queued request
// costs nothing until it reaches the head of the queue.
package track

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/MrWong99/botnek/pkg/audio"
)

// Track is anything the engine can play.
type Track interface {
	// Title is the human-readable name reported to the requester.
	Title() string

	// Stream produces a fresh PCM stream. It may perform network or
	// filesystem I/O and is called once per play attempt. Failures are
	// reported as *MediaFetchError.
	Stream(ctx context.Context) (audio.Stream, error)
}

// MediaFetchError reports that the media behind a [Track] could not be read
// or downloaded.
type MediaFetchError struct {
	// Source is the file path or URL that failed.
	Source string
	Err    error
}

func (e *MediaFetchError) Error() string {
	return fmt.Sprintf("track: fetch %s: %v", e.Source, e.Err)
}

func (e *MediaFetchError) Unwrap() error { return e.Err }

// Decoder turns encoded media into a PCM [audio.Stream].
// internal/media.Transcoder is the production implementation.
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (audio.Stream, error)

	// DecodeReader decodes r and closes it when the returned stream is
	// closed.
	DecodeReader(ctx context.Context, r io.ReadCloser) (audio.Stream, error)
}

// Local is a track backed by a file on disk.
type Local struct {
	title string
	path  string
	dec   Decoder
}

var _ Track = (*Local)(nil)

// NewLocal returns a track that decodes the file at path.
func NewLocal(title, path string, dec Decoder) *Local {
	return &Local{title: title, path: path, dec: dec}
}

// Title implements [Track].
func (l *Local) Title() string { return l.title }

// Path returns the file backing the track.
func (l *Local) Path() string { return l.path }

// Stream implements [Track].
func (l *Local) Stream(ctx context.Context) (audio.Stream, error) {
	if _, err := os.Stat(l.path); err != nil {
		return nil, &MediaFetchError{Source: l.path, Err: err}
	}
	s, err := l.dec.DecodeFile(ctx, l.path)
	if err != nil {
		return nil, &MediaFetchError{Source: l.path, Err: err}
	}
	return s, nil
}

// Opener opens the encoded bytes of a remote resource.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Remote is a track whose media is fetched on demand from a remote
// locator. Metadata is captured when the track is built.
type Remote struct {
	title string
	url   string
	open  Opener
	dec   Decoder
}

var _ Track = (*Remote)(nil)

// NewRemote returns a track that streams url through open and dec.
func NewRemote(title, url string, open Opener, dec Decoder) *Remote {
	return &Remote{title: title, url: url, open: open, dec: dec}
}

// Title implements [Track].
func (r *Remote) Title() string { return r.title }

// URL returns the locator the track was resolved from.
func (r *Remote) URL() string { return r.url }

// Open returns the raw encoded media without decoding it.
func (r *Remote) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := r.open(ctx)
	if err != nil {
		return nil, &MediaFetchError{Source: r.url, Err: err}
	}
	return rc, nil
}

// Stream implements [Track]. The media is decoded while it downloads.
func (r *Remote) Stream(ctx context.Context) (audio.Stream, error) {
	rc, err := r.Open(ctx)
	if err != nil {
		return nil, err
	}
	s, err := r.dec.DecodeReader(ctx, rc)
	if err != nil {
		rc.Close()
		return nil, &MediaFetchError{Source: r.url, Err: err}
	}
	return s, nil
}
