package sfx

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/botnek/internal/track"
)

// DefaultMaxLength is the longest clip [Library.Add] accepts.
const DefaultMaxLength = 30 * time.Second

// soundsDir is the directory below the guild directory holding clips.
const soundsDir = "sounds"

// listChunk is the number of aliases per line in [FormatList].
const listChunk = 10

var (
	// ErrTooLong is returned when a clip would exceed the maximum length.
	ErrTooLong = errors.New("sfx: clip too long")

	// ErrInvalidClip is returned for clip bounds outside the video.
	ErrInvalidClip = errors.New("sfx: invalid clip range")

	// ErrUnsupportedURL is returned for sources other than YouTube.
	ErrUnsupportedURL = errors.New("sfx: unsupported url")
)

// Transcoder is the subset of the ffmpeg wrapper the library needs.
type Transcoder interface {
	track.Decoder
	AdjustRate(ctx context.Context, in, guildDir string, rate float64) (string, error)
	Clip(ctx context.Context, r io.Reader, out string, start, end time.Duration) error
}

// Fetcher resolves remote videos to download clips from.
type Fetcher interface {
	Info(ctx context.Context, url string) (track.VideoInfo, error)
	Resolve(ctx context.Context, url string) (*track.Remote, error)
}

// Library is one guild's sound effect collection.
type Library struct {
	guildDir  string
	store     *Store
	tc        Transcoder
	fetch     Fetcher
	suggest   *Suggester
	maxLength time.Duration
	pick      func(n int) int
}

// Option configures a [Library].
type Option func(*Library)

// WithMaxLength overrides [DefaultMaxLength].
func WithMaxLength(d time.Duration) Option {
	return func(l *Library) {
		if d > 0 {
			l.maxLength = d
		}
	}
}

// WithSuggester replaces the default alias suggester.
func WithSuggester(s *Suggester) Option {
	return func(l *Library) { l.suggest = s }
}

// Open opens the library stored in guildDir.
func Open(guildDir string, tc Transcoder, fetch Fetcher, opts ...Option) (*Library, error) {
	store, err := OpenStore(filepath.Join(guildDir, StoreFile))
	if err != nil {
		return nil, err
	}
	l := &Library{
		guildDir:  guildDir,
		store:     store,
		tc:        tc,
		fetch:     fetch,
		suggest:   NewSuggester(),
		maxLength: DefaultMaxLength,
		pick:      rand.IntN,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Dir returns the guild directory the library lives in.
func (l *Library) Dir() string { return l.guildDir }

// MaxLength returns the longest clip Add accepts.
func (l *Library) MaxLength() time.Duration { return l.maxLength }

// Has reports whether alias names a stored sound.
func (l *Library) Has(alias string) bool { return l.store.Has(alias) }

// List returns all aliases in sorted order.
func (l *Library) List() []string { return l.store.Aliases() }

// Suggest returns the stored alias closest to a mistyped one.
func (l *Library) Suggest(alias string) (string, bool) {
	return l.suggest.Suggest(alias, l.store.Aliases())
}

// Missing returns the aliases in sounds that are not stored. [Random] always
// counts as present while the library is non-empty.
func (l *Library) Missing(sounds []Sound) []string {
	var missing []string
	for _, s := range sounds {
		if s.Alias == Random && l.store.Len() > 0 {
			continue
		}
		if !l.store.Has(s.Alias) {
			missing = append(missing, s.Alias)
		}
	}
	return missing
}

// resolve substitutes [Random] with a stored alias.
func (l *Library) resolve(alias string) (string, error) {
	if alias != Random {
		return alias, nil
	}
	aliases := l.store.Aliases()
	if len(aliases) == 0 {
		return "", fmt.Errorf("%w: library is empty", ErrUnknownAlias)
	}
	return aliases[l.pick(len(aliases))], nil
}

// Track returns a playable track for s. Modifiers are rendered through the
// transcoder's rate cache in order.
func (l *Library) Track(ctx context.Context, s Sound) (*track.Local, error) {
	alias, err := l.resolve(s.Alias)
	if err != nil {
		return nil, err
	}
	path, ok := l.store.Get(alias)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
	}
	if len(s.Modifiers) == 0 {
		return track.NewLocal(alias, path, l.tc), nil
	}

	names := make([]string, 0, len(s.Modifiers))
	for _, m := range s.Modifiers {
		path, err = l.tc.AdjustRate(ctx, path, l.guildDir, m.Rate())
		if err != nil {
			return nil, fmt.Errorf("sfx: apply %s to %s: %w", m, alias, err)
		}
		names = append(names, string(m))
	}
	title := fmt.Sprintf("%s [%s]", alias, strings.Join(names, ","))
	return track.NewLocal(title, path, l.tc), nil
}

// Add downloads the range [start, end) of the YouTube video at url and
// stores it as alias. A zero end means the end of the video.
func (l *Library) Add(ctx context.Context, alias, url string, start, end time.Duration) error {
	switch {
	case alias == Random:
		return fmt.Errorf("%w: %s", ErrReservedAlias, alias)
	case !ValidAlias(alias):
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	case l.store.Has(alias):
		return fmt.Errorf("%w: %s", ErrAliasExists, alias)
	case !track.ValidYouTubeURL(url):
		return fmt.Errorf("%w: %s", ErrUnsupportedURL, url)
	case end != 0 && end <= start:
		return fmt.Errorf("%w: start %v is not before end %v", ErrInvalidClip, start, end)
	}

	info, err := l.fetch.Info(ctx, url)
	if err != nil {
		return err
	}
	if err := l.checkLength(info.Duration, start, end); err != nil {
		return err
	}

	remote, err := l.fetch.Resolve(ctx, url)
	if err != nil {
		return err
	}
	rc, err := remote.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := clipPath(filepath.Join(l.guildDir, soundsDir), info.Title)
	if err != nil {
		return err
	}
	if err := l.tc.Clip(ctx, rc, out, start, end); err != nil {
		os.Remove(out)
		return fmt.Errorf("sfx: save %s: %w", alias, err)
	}
	if err := l.store.Set(alias, out); err != nil {
		os.Remove(out)
		return err
	}
	slog.Info("sfx: added", "alias", alias, "url", url, "file", out)
	return nil
}

// checkLength validates the clip bounds against the video length. An
// unknown (zero) video length only bounds the requested range.
func (l *Library) checkLength(video, start, end time.Duration) error {
	if video > 0 {
		if start >= video {
			return fmt.Errorf("%w: start %v beyond video length %v", ErrInvalidClip, start, video)
		}
		if end > video {
			return fmt.Errorf("%w: end %v beyond video length %v", ErrInvalidClip, end, video)
		}
	}
	stop := end
	if stop == 0 {
		stop = video
	}
	if stop == 0 || stop-start > l.maxLength {
		return fmt.Errorf("%w: clip would be longer than %v", ErrTooLong, l.maxLength)
	}
	return nil
}

// Delete removes alias and its file. fileExisted is false when the
// database pointed at a file that was already gone; the alias is removed
// either way.
func (l *Library) Delete(alias string) (fileExisted bool, err error) {
	if !ValidAlias(alias) {
		return false, fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	file, err := l.store.Delete(alias)
	if err != nil {
		return false, err
	}
	if err := os.Remove(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("sfx: file already gone", "alias", alias, "file", file)
			return false, nil
		}
		return true, fmt.Errorf("sfx: remove %s: %w", file, err)
	}
	slog.Info("sfx: deleted", "alias", alias, "file", file)
	return true, nil
}

// FormatList lays aliases out ten per line separated by " | ".
func FormatList(aliases []string) string {
	var lines []string
	for i := 0; i < len(aliases); i += listChunk {
		lines = append(lines, strings.Join(aliases[i:min(i+listChunk, len(aliases))], " | "))
	}
	return strings.Join(lines, "\n")
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]`)

// clipPath returns a fresh file name in dir derived from title.
func clipPath(dir, title string) (string, error) {
	var suffix [4]byte
	if _, err := cryptorand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("sfx: random suffix: %w", err)
	}
	name := unsafeName.ReplaceAllString(strings.ToLower(title), "")
	if len(name) > 48 {
		name = name[:48]
	}
	return filepath.Join(dir, name+"-"+hex.EncodeToString(suffix[:])+".mp3"), nil
}
