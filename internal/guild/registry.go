// Package guild keeps per-guild resources such as playback engines and
// sound effect libraries.
package guild

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownGuild is returned by [Registry.Get] for a guild that was never
// registered.
var ErrUnknownGuild = errors.New("guild: unknown guild")

// Registry maps guild IDs to one resource of type T. Entries are created
// once and live for the rest of the process.
//
// All methods are safe for concurrent use.
type Registry[T any] struct {
	name string

	mu      sync.RWMutex
	entries map[string]T

	// inflight collapses concurrent GetOrInit calls per guild.
	inflight singleflight.Group
}

// NewRegistry returns an empty registry. name appears in error messages.
func NewRegistry[T any](name string) *Registry[T] {
	return &Registry[T]{name: name, entries: make(map[string]T)}
}

// Get returns the resource of guildID.
func (r *Registry[T]) Get(guildID string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[guildID]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w %s", r.name, ErrUnknownGuild, guildID)
	}
	return v, nil
}

// Put stores v for guildID unless an entry already exists. It reports
// whether v was stored.
func (r *Registry[T]) Put(guildID string, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[guildID]; ok {
		return false
	}
	r.entries[guildID] = v
	return true
}

// GetOrInit returns the resource of guildID, creating it with init on
// first use. Concurrent callers for one guild share a single init; inits
// of different guilds run in parallel. A failed init stores nothing so a
// later call retries.
func (r *Registry[T]) GetOrInit(guildID string, init func() (T, error)) (T, error) {
	r.mu.RLock()
	v, ok := r.entries[guildID]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	res, err, _ := r.inflight.Do(guildID, func() (any, error) {
		r.mu.RLock()
		v, ok := r.entries[guildID]
		r.mu.RUnlock()
		if ok {
			return v, nil
		}
		v, err := init()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.entries[guildID]; ok {
			return existing, nil
		}
		r.entries[guildID] = v
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: init %s: %w", r.name, guildID, err)
	}
	return res.(T), nil
}

// Range calls fn for every entry in guild ID order until fn returns false.
func (r *Registry[T]) Range(fn func(guildID string, v T) bool) {
	r.mu.RLock()
	ids := slices.Sorted(maps.Keys(r.entries))
	snapshot := make([]T, len(ids))
	for i, id := range ids {
		snapshot[i] = r.entries[id]
	}
	r.mu.RUnlock()

	for i, id := range ids {
		if !fn(id, snapshot[i]) {
			return
		}
	}
}

// Len returns the number of registered guilds.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
