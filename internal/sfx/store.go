package sfx

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// StoreFile is the name of a guild's sound database inside its data
// directory.
const StoreFile = "sounds.yaml"

// guildData is the on-disk layout of a guild's database.
//
//	sfx:
//	  sounds:
//	    yay: data/1234/sounds/yay-0a1b2c3d.mp3
type guildData struct {
	SFX struct {
		Sounds map[string]string `yaml:"sounds"`
	} `yaml:"sfx"`
}

// Store maps a guild's aliases to sound files and persists the mapping as
// YAML. Every mutation is written through before it returns. Store is safe
// for concurrent use.
type Store struct {
	path string

	mu     sync.RWMutex
	sounds map[string]string
}

// OpenStore loads the database at path, creating an empty one when the file
// does not exist yet.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, sounds: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("sfx: creating sound database", "path", path)
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("sfx: read %s: %w", path, err)
	}

	var gd guildData
	if err := yaml.Unmarshal(data, &gd); err != nil {
		return nil, fmt.Errorf("sfx: parse %s: %w", path, err)
	}
	if gd.SFX.Sounds != nil {
		s.sounds = gd.SFX.Sounds
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Get returns the file stored for alias.
func (s *Store) Get(alias string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.sounds[alias]
	return p, ok
}

// Has reports whether alias is stored.
func (s *Store) Has(alias string) bool {
	_, ok := s.Get(alias)
	return ok
}

// Set stores file under alias and persists the database. The in-memory
// state is rolled back when the write fails.
func (s *Store) Set(alias, file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.sounds[alias]
	s.sounds[alias] = file
	if err := s.save(); err != nil {
		if had {
			s.sounds[alias] = prev
		} else {
			delete(s.sounds, alias)
		}
		return err
	}
	return nil
}

// Delete removes alias and persists the database. It returns the file that
// was stored for it.
func (s *Store) Delete(alias string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.sounds[alias]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
	}
	delete(s.sounds, alias)
	if err := s.save(); err != nil {
		s.sounds[alias] = file
		return "", err
	}
	return file, nil
}

// Aliases returns all stored aliases in sorted order.
func (s *Store) Aliases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.sounds))
}

// Len returns the number of stored sounds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sounds)
}

// save writes the database through a temporary file and rename so readers
// never observe a partial file. Callers hold s.mu or own s exclusively.
func (s *Store) save() error {
	var gd guildData
	gd.SFX.Sounds = s.sounds
	data, err := yaml.Marshal(&gd)
	if err != nil {
		return fmt.Errorf("sfx: encode database: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("sfx: create %s: %w", filepath.Dir(s.path), err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sfx: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sfx: replace %s: %w", s.path, err)
	}
	return nil
}
