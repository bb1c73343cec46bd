// Package splitter provides the threshold strategies that decide how much of a
// phrase has to be recognized before a partial result may be trusted.
//
// A [Splitter] divides text into countable units. Two strategies exist:
// [Words] counts words, [Vowels] counts vowel groups, which approximate
// syllables and predict how recognizable a phrase is better than word counts
// do in languages with long compound words. The strategy is selected once per
// candidate set, either explicitly or from the set's locale via [ForLocale].
package splitter

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/choicerec/pkg/choice"
)

// Default minimum unit counts before a partial result may be accepted.
const (
	DefaultMinimumWords  = 3
	DefaultMinimumVowels = 4
)

// Kind selects a threshold strategy.
type Kind int

const (
	// Words counts words.
	Words Kind = iota

	// Vowels counts vowel groups.
	Vowels
)

// String returns the lower-case strategy name.
func (k Kind) String() string {
	switch k {
	case Words:
		return "words"
	case Vowels:
		return "vowels"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a strategy name into a [Kind].
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "words":
		return Words, nil
	case "vowels":
		return Vowels, nil
	}
	return 0, fmt.Errorf("splitter: unknown strategy %q; valid values: words, vowels", s)
}

// Splitter counts the units of a text and derives the minimum number of units
// a partial result for a candidate set has to contain.
type Splitter interface {
	// Kind reports which strategy the splitter implements.
	Kind() Kind

	// Count returns the number of units in text.
	Count(text string) int

	// MinimumForSet returns the minimum unit count for results of the set.
	// Starting from the strategy default, it adds the units of the leading
	// word run that every phrase of the set shares, so that no result is
	// trusted before the phrases have diverged.
	MinimumForSet(c *choice.Choices) int
}

// New returns the splitter for kind. Unknown kinds fall back to [Words].
func New(kind Kind) Splitter {
	if kind == Vowels {
		return VowelSplitter{}
	}
	return WordSplitter{}
}

// ForLocale selects the strategy for a locale: word counting for scripts
// without alphabetic vowels, vowel counting otherwise.
func ForLocale(tag language.Tag) Kind {
	base, _ := tag.Base()
	switch base.String() {
	case "ja", "zh", "ko", "th", "lo", "km", "my":
		return Words
	}
	return Vowels
}

// WordSplitter counts words.
type WordSplitter struct{}

// Kind implements [Splitter].
func (WordSplitter) Kind() Kind { return Words }

// Count implements [Splitter].
func (WordSplitter) Count(text string) int { return len(choice.Words(text)) }

// MinimumForSet implements [Splitter].
func (s WordSplitter) MinimumForSet(c *choice.Choices) int {
	return DefaultMinimumWords + sharedUnits(s, c)
}

// VowelSplitter counts vowel groups: maximal runs of vowels after diacritics
// have been stripped. "waiting" holds two groups, "ai" and "i".
type VowelSplitter struct{}

// Kind implements [Splitter].
func (VowelSplitter) Kind() Kind { return Vowels }

// Count implements [Splitter].
func (VowelSplitter) Count(text string) int {
	n := 0
	for _, w := range choice.Words(text) {
		n += vowelGroups(w)
	}
	return n
}

// MinimumForSet implements [Splitter].
func (s VowelSplitter) MinimumForSet(c *choice.Choices) int {
	return DefaultMinimumVowels + sharedUnits(s, c)
}

func vowelGroups(word string) int {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), word)
	if err != nil {
		stripped = word
	}
	n := 0
	inGroup := false
	for _, r := range stripped {
		v := isVowel(r)
		if v && !inGroup {
			n++
		}
		inGroup = v
	}
	return n
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u', 'y', 'æ', 'ø', 'å', 'œ':
		return true
	}
	return false
}

// sharedUnits counts the units of the leading words shared by every phrase of
// every choice. A set with a single choice shares nothing.
func sharedUnits(s Splitter, c *choice.Choices) int {
	if c == nil || c.Len() < 2 {
		return 0
	}
	phrases := c.PhraseStrings()
	words := make([][]string, len(phrases))
	for i, p := range phrases {
		words[i] = p.Words()
	}
	prefix := choice.CommonPrefix(words...)
	if len(prefix) == 0 {
		return 0
	}
	return s.Count(strings.Join(prefix, " "))
}
