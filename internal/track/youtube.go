package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/MrWong99/botnek/internal/resilience"
)

// ErrNoAudioFormat is returned when a video offers no format with audio.
var ErrNoAudioFormat = errors.New("track: no audio format available")

// youtubeQueryHosts carry the video ID in the "v" query parameter.
var youtubeQueryHosts = map[string]bool{
	"youtube.com":        true,
	"www.youtube.com":    true,
	"m.youtube.com":      true,
	"music.youtube.com":  true,
	"gaming.youtube.com": true,
}

var (
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	// Path forms like /shorts/<id> or /embed/<id> on a query host.
	videoPathPattern = regexp.MustCompile(`^/(?:embed|v|shorts|live)/([^/?#]+)`)
)

// ValidYouTubeURL reports whether raw is an http(s) URL on a YouTube host
// that carries a well-formed video ID.
func ValidYouTubeURL(raw string) bool {
	id, ok := videoIDFromURL(raw)
	return ok && videoIDPattern.MatchString(id)
}

func videoIDFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "youtu.be" {
		id, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		return id, id != ""
	}
	if !youtubeQueryHosts[host] {
		return "", false
	}
	if id := u.Query().Get("v"); id != "" {
		return id, true
	}
	if m := videoPathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	return "", false
}

// VideoInfo is the metadata captured when a YouTube track is resolved.
type VideoInfo struct {
	ID       string
	Title    string
	Duration time.Duration
}

// videoClient is the subset of *youtube.Client used by [YouTube].
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// YouTube resolves YouTube URLs into [Remote] tracks. Metadata and stream
// lookups go through a circuit breaker so a failing upstream is rejected
// fast instead of stalling every queued request.
type YouTube struct {
	client  videoClient
	breaker *resilience.CircuitBreaker
	dec     Decoder
	onError func(ctx context.Context, source string)
}

// YouTubeOption configures a [YouTube] resolver.
type YouTubeOption func(*YouTube)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) YouTubeOption {
	return func(y *YouTube) { y.breaker = cb }
}

// WithFetchErrorHook registers fn to be called for every failed lookup,
// typically to record a metric.
func WithFetchErrorHook(fn func(ctx context.Context, source string)) YouTubeOption {
	return func(y *YouTube) { y.onError = fn }
}

// NewYouTube returns a resolver decoding streams with dec.
func NewYouTube(dec Decoder, opts ...YouTubeOption) *YouTube {
	y := &YouTube{
		client: &youtube.Client{},
		dec:    dec,
	}
	for _, o := range opts {
		o(y)
	}
	if y.breaker == nil {
		y.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:      "youtube",
			IsFailure: isUpstreamFailure,
		})
	}
	return y
}

// isUpstreamFailure reports whether err says something about YouTube's
// health rather than about the requested video.
func isUpstreamFailure(err error) bool {
	var playability youtube.ErrPlayabiltyStatus
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength),
		errors.As(err, &playability):
		return false
	}
	return true
}

// Info fetches the metadata of the video at rawURL.
func (y *YouTube) Info(ctx context.Context, rawURL string) (VideoInfo, error) {
	v, err := y.video(ctx, rawURL)
	if err != nil {
		return VideoInfo{}, err
	}
	return VideoInfo{ID: v.ID, Title: v.Title, Duration: v.Duration}, nil
}

// Resolve fetches the metadata of rawURL and returns a track that streams
// its best audio format when played.
func (y *YouTube) Resolve(ctx context.Context, rawURL string) (*Remote, error) {
	v, err := y.video(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return NewRemote(v.Title, rawURL, y.opener(v, rawURL), y.dec), nil
}

func (y *YouTube) video(ctx context.Context, rawURL string) (*youtube.Video, error) {
	v, err := resilience.Call(y.breaker, func() (*youtube.Video, error) {
		return y.client.GetVideoContext(ctx, rawURL)
	})
	if err != nil {
		y.reportError(ctx)
		return nil, &MediaFetchError{Source: rawURL, Err: err}
	}
	return v, nil
}

func (y *YouTube) opener(v *youtube.Video, rawURL string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		format, err := bestAudioFormat(v.Formats)
		if err != nil {
			return nil, err
		}
		rc, err := resilience.Call(y.breaker, func() (io.ReadCloser, error) {
			rc, _, err := y.client.GetStreamContext(ctx, v, format)
			return rc, err
		})
		if err != nil {
			y.reportError(ctx)
			return nil, fmt.Errorf("open stream %s: %w", rawURL, err)
		}
		return rc, nil
	}
}

func (y *YouTube) reportError(ctx context.Context) {
	if y.onError != nil {
		y.onError(ctx, "youtube")
	}
}

// bestAudioFormat picks the audio-carrying format with the highest
// bitrate, preferring audio-only formats.
func bestAudioFormat(formats youtube.FormatList) (*youtube.Format, error) {
	withAudio := formats.WithAudioChannels()
	if len(withAudio) == 0 {
		return nil, ErrNoAudioFormat
	}
	var best *youtube.Format
	for i := range withAudio {
		f := &withAudio[i]
		if best == nil || betterAudio(f, best) {
			best = f
		}
	}
	return best, nil
}

func betterAudio(a, b *youtube.Format) bool {
	aOnly := strings.HasPrefix(a.MimeType, "audio/")
	bOnly := strings.HasPrefix(b.MimeType, "audio/")
	if aOnly != bOnly {
		return aOnly
	}
	return a.Bitrate > b.Bitrate
}
