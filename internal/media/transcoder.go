// Package media wraps the ffmpeg binary: decoding encoded audio into the
// PCM layout of the playback pipeline, re-timing sound effects and cutting
// clips.
package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/botnek/pkg/audio"
)

// ErrInvalidRange is returned by [Transcoder.Clip] when end is not after start.
var ErrInvalidRange = errors.New("media: clip end must be after start")

// waitDelay bounds how long Wait blocks on I/O after ffmpeg exits.
const waitDelay = 2 * time.Second

// cacheDir is the per-guild subdirectory holding re-timed sound effects.
const cacheDir = "ffmpeg"

// Transcoder runs ffmpeg. The zero value is not usable; call [New].
type Transcoder struct {
	bin string
}

// New returns a Transcoder running the ffmpeg binary at bin. A bare name is
// resolved through PATH when a command starts.
func New(bin string) *Transcoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Transcoder{bin: bin}
}

// Binary returns the configured ffmpeg path.
func (t *Transcoder) Binary() string { return t.bin }

// Probe checks that the ffmpeg binary can be resolved.
func (t *Transcoder) Probe(context.Context) error {
	if _, err := exec.LookPath(t.bin); err != nil {
		return fmt.Errorf("media: ffmpeg: %w", err)
	}
	return nil
}

// DecodeFile decodes the file at path into a PCM stream.
func (t *Transcoder) DecodeFile(ctx context.Context, path string) (audio.Stream, error) {
	return t.start(ctx, decodeArgs(path), nil)
}

// DecodeReader decodes r into a PCM stream while r is still being read.
// r is closed together with the returned stream.
func (t *Transcoder) DecodeReader(ctx context.Context, r io.ReadCloser) (audio.Stream, error) {
	return t.start(ctx, decodeArgs("pipe:0"), r)
}

// AdjustRate writes a copy of in played back at rate (1.0 = unchanged) into
// guildDir's cache and returns its path. Pitch moves with the speed. A
// cached copy is reused when present.
func (t *Transcoder) AdjustRate(ctx context.Context, in, guildDir string, rate float64) (string, error) {
	if rate <= 0 {
		return "", fmt.Errorf("media: invalid rate %v", rate)
	}
	if rate == 1 {
		return in, nil
	}
	filter := rateFilter(rate)
	out := cachePath(guildDir, in, filter)
	if _, err := os.Stat(out); err == nil {
		return out, nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("media: create cache dir: %w", err)
	}

	// Write next to the target and rename so a cancelled run never leaves a
	// truncated file that later looks cached.
	tmp := out + ".part" + filepath.Ext(out)
	if err := t.run(ctx, filterArgs(in, filter, tmp), nil); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("media: store %s: %w", out, err)
	}
	slog.Debug("media: rate adjusted", "in", in, "out", out, "rate", rate)
	return out, nil
}

// Clip reads encoded media from r and writes the range [start, end) to out.
// A zero end means until the end of the input.
func (t *Transcoder) Clip(ctx context.Context, r io.Reader, out string, start, end time.Duration) error {
	if end != 0 && end <= start {
		return ErrInvalidRange
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("media: create dir: %w", err)
	}
	return t.run(ctx, clipArgs(out, start, end), r)
}

// run executes ffmpeg to completion.
func (t *Transcoder) run(ctx context.Context, args []string, stdin io.Reader) error {
	cmd := exec.CommandContext(ctx, t.bin, args...)
	cmd.WaitDelay = waitDelay
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ffmpegError(err, &stderr)
	}
	return nil
}

// start launches ffmpeg writing PCM to stdout.
func (t *Transcoder) start(ctx context.Context, args []string, src io.ReadCloser) (audio.Stream, error) {
	cmd := exec.CommandContext(ctx, t.bin, args...)
	cmd.WaitDelay = waitDelay
	if src != nil {
		cmd.Stdin = src
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("media: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("media: start ffmpeg: %w", err)
	}
	return &procStream{cmd: cmd, stdout: stdout, src: src, stderr: stderr}, nil
}

func ffmpegError(err error, stderr fmt.Stringer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return fmt.Errorf("media: ffmpeg: %w", err)
	}
	return fmt.Errorf("media: ffmpeg: %w: %s", err, msg)
}

// procStream is the stdout of a running ffmpeg process.
type procStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	src    io.Closer
	stderr *tailBuffer

	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

func (p *procStream) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	if errors.Is(err, io.EOF) {
		if werr := p.wait(); werr != nil {
			return n, ffmpegError(werr, p.stderr)
		}
	}
	return n, err
}

func (p *procStream) wait() error {
	p.waitOnce.Do(func() { p.waitErr = p.cmd.Wait() })
	return p.waitErr
}

// Close kills ffmpeg if it is still running and releases the source.
func (p *procStream) Close() error {
	p.closeOnce.Do(func() {
		_ = p.cmd.Process.Kill()
		// The stdin copier may be blocked reading src; closing it first lets
		// Wait return.
		if p.src != nil {
			_ = p.src.Close()
		}
		_ = p.wait()
	})
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// decodeArgs converts input to raw s16le PCM at the pipeline's rate and
// channel count on stdout.
func decodeArgs(input string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", input,
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"pipe:1",
	}
}

// rateFilter speeds audio up or slows it down, shifting the pitch with it.
func rateFilter(rate float64) string {
	return fmt.Sprintf("asetrate=44100*%s,aresample=44100", strconv.FormatFloat(rate, 'f', -1, 64))
}

func filterArgs(in, filter, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-af", filter,
		out,
	}
}

func clipArgs(out string, start, end time.Duration) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", "pipe:0"}
	if start > 0 {
		args = append(args, "-ss", formatSeconds(start))
	}
	if end > 0 {
		args = append(args, "-to", formatSeconds(end))
	}
	return append(args, "-vn", out)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// cachePath names the cached output of applying filter to in. The name
// hashes the input's base name with the filter so every combination gets
// its own file.
func cachePath(guildDir, in, filter string) string {
	base := filepath.Base(in)
	sum := md5.Sum([]byte(base + filter))
	return filepath.Join(guildDir, cacheDir, hex.EncodeToString(sum[:])+filepath.Ext(base))
}
