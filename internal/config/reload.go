package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reloader keeps a config file in sync with the running bot. Each time the
// file holds a new valid config it computes the [ConfigDiff] against the
// active one and hands it to the apply callback. Invalid files are logged
// and ignored; the active config stays in place.
type Reloader struct {
	path     string
	interval time.Duration
	apply    func(ConfigDiff)

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte
}

// ReloaderOption configures a [Reloader].
type ReloaderOption func(*Reloader)

// WithInterval sets how often [Reloader.Run] stats the file. Defaults to
// 5 seconds.
func WithInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewReloader loads path once and returns a Reloader tracking it. apply may
// be nil.
func NewReloader(path string, apply func(ConfigDiff), opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{path: path, interval: 5 * time.Second, apply: apply}
	for _, o := range opts {
		o(r)
	}
	data, mtime, err := r.read()
	if err != nil {
		return nil, fmt.Errorf("config: reloader initial load: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: reloader initial load: %w", err)
	}
	r.current, r.mtime, r.sum = cfg, mtime, sha256.Sum256(data)
	return r, nil
}

// Current returns the active config.
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Run polls the file until ctx is done, reloading whenever its modification
// time moves.
func (r *Reloader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		info, err := os.Stat(r.path)
		if err != nil {
			slog.Warn("config: cannot stat file", "path", r.path, "err", err)
			continue
		}
		r.mu.Lock()
		moved := !info.ModTime().Equal(r.mtime)
		r.mu.Unlock()
		if !moved {
			continue
		}
		if _, err := r.Reload(); err != nil {
			slog.Warn("config: reload rejected, keeping active config", "path", r.path, "err", err)
		}
	}
}

// Reload reads the file now and activates it if its content changed. The
// returned diff is empty when nothing relevant changed; apply only sees
// non-empty diffs.
func (r *Reloader) Reload() (ConfigDiff, error) {
	data, mtime, err := r.read()
	if err != nil {
		return ConfigDiff{}, err
	}
	sum := sha256.Sum256(data)

	r.mu.Lock()
	r.mtime = mtime
	if sum == r.sum {
		r.mu.Unlock()
		return ConfigDiff{}, nil
	}
	r.mu.Unlock()

	cfg, err := parse(data)
	if err != nil {
		return ConfigDiff{}, err
	}

	r.mu.Lock()
	d := Diff(r.current, cfg)
	r.current, r.sum = cfg, sum
	r.mu.Unlock()

	if !d.Changed() {
		return d, nil
	}
	slog.Info("config: reloaded", "path", r.path, "restart_required", d.RestartRequired)
	if r.apply != nil {
		r.apply(d)
	}
	return d, nil
}

func (r *Reloader) read() ([]byte, time.Time, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}
