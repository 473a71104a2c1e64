package media

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

// fakeFFmpeg writes an executable shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	got := decodeArgs("in.mp3")
	want := []string{"-hide_banner", "-loglevel", "error", "-i", "in.mp3", "-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1"}
	if !slices.Equal(got, want) {
		t.Errorf("decodeArgs = %v, want %v", got, want)
	}
}

func TestRateFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate float64
		want string
	}{
		{2, "asetrate=44100*2,aresample=44100"},
		{0.5, "asetrate=44100*0.5,aresample=44100"},
		{0.75, "asetrate=44100*0.75,aresample=44100"},
	}
	for _, tt := range tests {
		if got := rateFilter(tt.rate); got != tt.want {
			t.Errorf("rateFilter(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestClipArgs(t *testing.T) {
	t.Parallel()

	got := clipArgs("out.mp3", 1500*time.Millisecond, 4*time.Second)
	want := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", "pipe:0", "-ss", "1.500", "-to", "4.000", "-vn", "out.mp3"}
	if !slices.Equal(got, want) {
		t.Errorf("clipArgs = %v, want %v", got, want)
	}

	got = clipArgs("out.mp3", 0, 0)
	if slices.Contains(got, "-ss") || slices.Contains(got, "-to") {
		t.Errorf("clipArgs without range = %v, want no -ss/-to", got)
	}
}

func TestCachePath(t *testing.T) {
	t.Parallel()

	a := cachePath("/data/g1", "/data/g1/sounds/airhorn.mp3", rateFilter(2))
	b := cachePath("/data/g1", "/other/airhorn.mp3", rateFilter(2))
	c := cachePath("/data/g1", "/data/g1/sounds/airhorn.mp3", rateFilter(0.5))

	if a != b {
		t.Errorf("same base name and filter must share a cache entry: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different filters must not share a cache entry")
	}
	if filepath.Dir(a) != filepath.Join("/data/g1", "ffmpeg") || filepath.Ext(a) != ".mp3" {
		t.Errorf("cachePath = %q", a)
	}
}

func TestAdjustRate_UnitRateReturnsInput(t *testing.T) {
	t.Parallel()

	tc := New("/nonexistent/ffmpeg")
	got, err := tc.AdjustRate(t.Context(), "in.mp3", t.TempDir(), 1)
	if err != nil || got != "in.mp3" {
		t.Fatalf("AdjustRate = (%q, %v), want (in.mp3, nil)", got, err)
	}
}

func TestAdjustRate_ReusesCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "sounds", "bruh.ogg")
	cached := cachePath(dir, in, rateFilter(2))
	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cached, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The binary does not exist, so only a cache hit can succeed.
	got, err := New("/nonexistent/ffmpeg").AdjustRate(t.Context(), in, dir, 2)
	if err != nil || got != cached {
		t.Fatalf("AdjustRate = (%q, %v), want (%q, nil)", got, err, cached)
	}
}

func TestAdjustRate_RunsFFmpeg(t *testing.T) {
	t.Parallel()

	// The last argument is the output file.
	bin := fakeFFmpeg(t, `for a; do out="$a"; done; printf adjusted > "$out"`)
	dir := t.TempDir()
	in := filepath.Join(dir, "bruh.ogg")

	got, err := New(bin).AdjustRate(t.Context(), in, dir, 0.5)
	if err != nil {
		t.Fatalf("AdjustRate: %v", err)
	}
	if got != cachePath(dir, in, rateFilter(0.5)) {
		t.Errorf("path = %q", got)
	}
	b, err := os.ReadFile(got)
	if err != nil || string(b) != "adjusted" {
		t.Fatalf("cached file = (%q, %v)", b, err)
	}
}

func TestAdjustRate_InvalidRate(t *testing.T) {
	t.Parallel()

	if _, err := New("").AdjustRate(t.Context(), "in", t.TempDir(), 0); err == nil {
		t.Fatal("expected error for zero rate")
	}
}

func TestClip_InvalidRange(t *testing.T) {
	t.Parallel()

	err := New("/nonexistent/ffmpeg").Clip(t.Context(), strings.NewReader(""), filepath.Join(t.TempDir(), "x.mp3"), 5*time.Second, 2*time.Second)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}

func TestClip_WritesOutput(t *testing.T) {
	t.Parallel()

	bin := fakeFFmpeg(t, `for a; do out="$a"; done; cat > "$out"`)
	out := filepath.Join(t.TempDir(), "sounds", "clip.mp3")

	if err := New(bin).Clip(t.Context(), strings.NewReader("audio"), out, 0, 3*time.Second); err != nil {
		t.Fatalf("Clip: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil || string(b) != "audio" {
		t.Fatalf("clip = (%q, %v)", b, err)
	}
}

func TestDecodeFile_StreamsStdout(t *testing.T) {
	t.Parallel()

	bin := fakeFFmpeg(t, `printf pcmdata`)
	s, err := New(bin).DecodeFile(t.Context(), "in.mp3")
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	defer s.Close()

	b, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(b) != "pcmdata" {
		t.Errorf("stream = %q, want pcmdata", b)
	}
}

func TestDecodeFile_ReportsFailure(t *testing.T) {
	t.Parallel()

	bin := fakeFFmpeg(t, `echo "in.mp3: No such file" >&2; exit 1`)
	s, err := New(bin).DecodeFile(t.Context(), "in.mp3")
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	defer s.Close()

	_, err = io.ReadAll(s)
	if err == nil || !strings.Contains(err.Error(), "No such file") {
		t.Fatalf("err = %v, want ffmpeg stderr in error", err)
	}
}

func TestDecodeReader_ClosesSourceOnClose(t *testing.T) {
	t.Parallel()

	bin := fakeFFmpeg(t, `cat`)
	src := &closeTracker{Reader: strings.NewReader("encoded")}
	s, err := New(bin).DecodeReader(t.Context(), src)
	if err != nil {
		t.Fatalf("DecodeReader: %v", err)
	}
	b, _ := io.ReadAll(s)
	if string(b) != "encoded" {
		t.Errorf("stream = %q, want encoded", b)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.closed {
		t.Error("source not closed")
	}
	// Second close is a no-op.
	_ = s.Close()
}

func TestProbe_MissingBinary(t *testing.T) {
	t.Parallel()

	if err := New("/nonexistent/ffmpeg").Probe(t.Context()); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error { c.closed = true; return nil }
