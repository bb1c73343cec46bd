// Package phonetic snaps misheard transcript words onto the vocabulary of a
// grammar using Double Metaphone phonetic encoding combined with Jaro-Winkler
// string similarity.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input word and for every vocabulary word. A vocabulary word whose
//     codes overlap with the input's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the word with the
//     highest Jaro-Winkler similarity is selected, provided its score reaches
//     the phonetic threshold. When no phonetic candidate qualifies, pure
//     Jaro-Winkler similarity against all words is tested using the higher
//     fuzzy threshold.
//
// Ties are broken by vocabulary order, which is sorted, so the result is
// deterministic.
package phonetic

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically matching word to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Vocabulary is a prepared word list. Codes are computed once so matching a
// transcript does not re-encode the grammar for every word.
type Vocabulary struct {
	words []entry
	index map[string]struct{}
}

type entry struct {
	word  string
	codes map[string]struct{}
}

// Prepare lower-cases, deduplicates and encodes words.
func Prepare(words []string) *Vocabulary {
	v := &Vocabulary{index: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := v.index[w]; dup {
			continue
		}
		v.index[w] = struct{}{}
		v.words = append(v.words, entry{word: w, codes: codes(w)})
	}
	slices.SortFunc(v.words, func(a, b entry) int { return strings.Compare(a.word, b.word) })
	return v
}

// Len returns the number of distinct words.
func (v *Vocabulary) Len() int { return len(v.words) }

// Contains reports whether word is part of the vocabulary.
func (v *Vocabulary) Contains(word string) bool {
	_, ok := v.index[strings.ToLower(strings.TrimSpace(word))]
	return ok
}

// Match returns the vocabulary word most similar to word.
//
// A word already in the vocabulary matches itself with confidence 1. When
// matched is false, corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	lower := strings.ToLower(strings.TrimSpace(word))
	if v == nil || len(v.words) == 0 || lower == "" {
		return word, 0, false
	}
	if v.Contains(lower) {
		return lower, 1, true
	}

	input := codes(lower)

	var (
		best     string
		score    float64
		phonetic bool
	)
	for _, e := range v.words {
		jw := matchr.JaroWinkler(lower, e.word, false)
		if overlap(input, e.codes) {
			if jw >= m.phoneticThreshold && (!phonetic || jw > score) {
				best, score, phonetic = e.word, jw, true
			}
			continue
		}
		if !phonetic && jw >= m.fuzzyThreshold && jw > score {
			best, score = e.word, jw
		}
	}

	if best == "" {
		return word, 0, false
	}
	return best, score, true
}

// codes returns the Double Metaphone codes of word. Empty codes (produced
// when the word has no consonants) are excluded.
func codes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

// overlap returns true if the two code sets share at least one code.
func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
