// Package sfx manages a guild's library of short sound effects: named
// clips stored under the guild's data directory that can be played back
// at altered speeds and chained together.
package sfx

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Random is the reserved alias that plays a randomly chosen sound.
const Random = "random"

// MaxChain is the number of sounds a single chain may queue.
const MaxChain = 5

// maxModifiers is the number of modifiers applied to one sound.
const maxModifiers = 2

var (
	// ErrInvalidAlias is returned for aliases outside [a-z0-9]{1,32}.
	ErrInvalidAlias = errors.New("sfx: invalid alias")

	// ErrReservedAlias is returned when adding a sound under a reserved name.
	ErrReservedAlias = errors.New("sfx: reserved alias")

	// ErrUnknownAlias is returned for aliases the library does not hold.
	ErrUnknownAlias = errors.New("sfx: unknown alias")

	// ErrAliasExists is returned when adding a sound under a taken alias.
	ErrAliasExists = errors.New("sfx: alias already exists")

	// ErrEmptyChain is returned when a chain names no sounds.
	ErrEmptyChain = errors.New("sfx: empty chain")

	// ErrChainTooLong is returned when a chain names more than [MaxChain] sounds.
	ErrChainTooLong = fmt.Errorf("sfx: chain longer than %d", MaxChain)
)

var aliasPattern = regexp.MustCompile(`^[a-z0-9]{1,32}$`)

// ValidAlias reports whether alias may name a sound.
func ValidAlias(alias string) bool {
	return aliasPattern.MatchString(alias)
}

// Modifier changes how a sound is played back.
type Modifier string

const (
	Turbo  Modifier = "TURBO"
	Turbo2 Modifier = "TURBO2"
	Slow   Modifier = "SLOW"
	Slow2  Modifier = "SLOW2"
)

var modifierRates = map[Modifier]float64{
	Turbo:  4.0 / 3.0,
	Turbo2: 2,
	Slow:   3.0 / 4.0,
	Slow2:  0.5,
}

// ParseModifier parses a modifier name case-insensitively.
func ParseModifier(s string) (Modifier, bool) {
	m := Modifier(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := modifierRates[m]
	return m, ok
}

// Rate returns the playback rate factor of m.
func (m Modifier) Rate() float64 {
	if r, ok := modifierRates[m]; ok {
		return r
	}
	return 1
}

// Sound is a parsed play request: an alias and the modifiers to apply in
// order.
type Sound struct {
	Alias     string
	Modifiers []Modifier
}

// String formats s the way users type it, e.g. "yay#TURBO#SLOW".
func (s Sound) String() string {
	var b strings.Builder
	b.WriteString(s.Alias)
	for _, m := range s.Modifiers {
		b.WriteByte('#')
		b.WriteString(string(m))
	}
	return b.String()
}

// ParseAlias parses input of the form "alias#MOD#MOD". The alias is
// lower-cased; [Random] is accepted and resolved later by the library.
// Unknown modifiers are dropped and at most two are kept.
func ParseAlias(input string) (Sound, error) {
	parts := strings.Split(strings.TrimSpace(input), "#")
	alias := strings.ToLower(parts[0])
	if !ValidAlias(alias) {
		return Sound{}, fmt.Errorf("%w: %q", ErrInvalidAlias, input)
	}
	s := Sound{Alias: alias}
	for _, p := range parts[1:] {
		if len(s.Modifiers) == maxModifiers {
			break
		}
		if m, ok := ParseModifier(p); ok {
			s.Modifiers = append(s.Modifiers, m)
		}
	}
	return s, nil
}

var chainSeparator = regexp.MustCompile(`[ ,]+`)

// ParseChain parses a space or comma separated list of sounds.
func ParseChain(input string) ([]Sound, error) {
	var sounds []Sound
	for _, part := range chainSeparator.Split(strings.TrimSpace(input), -1) {
		if part == "" {
			continue
		}
		s, err := ParseAlias(part)
		if err != nil {
			return nil, err
		}
		sounds = append(sounds, s)
	}
	switch {
	case len(sounds) == 0:
		return nil, ErrEmptyChain
	case len(sounds) > MaxChain:
		return nil, ErrChainTooLong
	}
	return sounds, nil
}
