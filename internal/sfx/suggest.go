package sfx

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Suggester proposes the stored alias a mistyped one most likely meant.
//
// Candidates whose Double Metaphone codes overlap the input's are accepted
// at a Jaro-Winkler score of at least the phonetic threshold. When no
// phonetic candidate qualifies, any alias scoring at least the fuzzy
// threshold is accepted instead.
type Suggester struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// SuggestOption configures a [Suggester].
type SuggestOption func(*Suggester)

// WithPhoneticThreshold sets the minimum score for phonetic candidates.
// Default: 0.70.
func WithPhoneticThreshold(threshold float64) SuggestOption {
	return func(s *Suggester) { s.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum score for non-phonetic candidates.
// Default: 0.85.
func WithFuzzyThreshold(threshold float64) SuggestOption {
	return func(s *Suggester) { s.fuzzyThreshold = threshold }
}

// NewSuggester returns a [Suggester] with default thresholds unless
// overridden by opts.
func NewSuggester(opts ...SuggestOption) *Suggester {
	s := &Suggester{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Suggest returns the best match for input among aliases. An exact match
// is never suggested.
func (s *Suggester) Suggest(input string, aliases []string) (string, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" || len(aliases) == 0 {
		return "", false
	}
	inputCodes := codes(input)

	var (
		best      string
		bestScore float64
		phonetic  bool
	)
	for _, alias := range aliases {
		if alias == input {
			return "", false
		}
		score := matchr.JaroWinkler(input, alias, false)
		if overlaps(inputCodes, codes(alias)) {
			if score >= s.phoneticThreshold && (!phonetic || score > bestScore) {
				best, bestScore, phonetic = alias, score, true
			}
		} else if !phonetic && score >= s.fuzzyThreshold && score > bestScore {
			best, bestScore = alias, score
		}
	}
	return best, best != ""
}

// codes returns the non-empty Double Metaphone codes of word.
func codes(word string) []string {
	p, s := matchr.DoubleMetaphone(word)
	out := make([]string, 0, 2)
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
