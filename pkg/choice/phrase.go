package choice

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// PhraseString is a phrase together with the indices it is consistent with.
type PhraseString struct {
	Phrase  string
	Indices Indices
}

// Words returns the normalised words of the phrase.
func (p PhraseString) Words() []string { return Words(p.Phrase) }

// IsEmpty reports whether the phrase contains no words.
func (p PhraseString) IsEmpty() bool { return len(p.Words()) == 0 }

// String returns the phrase text.
func (p PhraseString) String() string { return p.Phrase }

// Join concatenates the non-empty parts with single spaces. The resulting
// indices are the intersection of the parts' indices.
func Join(parts ...PhraseString) PhraseString {
	var texts []string
	var sets []Indices
	for _, p := range parts {
		if p.IsEmpty() {
			continue
		}
		texts = append(texts, strings.TrimSpace(p.Phrase))
		sets = append(sets, p.Indices)
	}
	return PhraseString{Phrase: strings.Join(texts, " "), Indices: Common(sets...)}
}

// Words splits text into normalised words: the text is NFKC-normalised and
// lower-cased, and everything but letters, digits and word-internal
// apostrophes is treated as a separator. "I'm waiting." yields
// ["i'm", "waiting"].
func Words(text string) []string {
	text = norm.NFKC.String(text)
	text = cases.Lower(language.Und).String(text)

	var words []string
	var current strings.Builder
	flush := func() {
		w := strings.Trim(current.String(), "'")
		if w != "" {
			words = append(words, w)
		}
		current.Reset()
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r):
			current.WriteRune(r)
		case r == '\'' || r == '’':
			current.WriteRune('\'')
		default:
			flush()
		}
	}
	flush()
	return words
}

// Normalize returns the words of text joined by single spaces.
func Normalize(text string) string {
	return strings.Join(Words(text), " ")
}

// CommonPrefix returns the longest run of leading words shared by all phrases.
func CommonPrefix(phrases ...[]string) []string {
	if len(phrases) == 0 {
		return nil
	}
	n := len(phrases[0])
	for _, p := range phrases[1:] {
		n = min(n, len(p))
	}
	for i := 0; i < n; i++ {
		w := phrases[0][i]
		for _, p := range phrases[1:] {
			if p[i] != w {
				return phrases[0][:i]
			}
		}
	}
	return phrases[0][:n]
}

// CommonSuffix returns the longest run of trailing words shared by all
// phrases, never overlapping the first skip words of any phrase.
func CommonSuffix(skip int, phrases ...[]string) []string {
	if len(phrases) == 0 {
		return nil
	}
	n := len(phrases[0]) - skip
	for _, p := range phrases[1:] {
		n = min(n, len(p)-skip)
	}
	first := phrases[0]
	for i := 1; i <= n; i++ {
		w := first[len(first)-i]
		for _, p := range phrases[1:] {
			if p[len(p)-i] != w {
				return first[len(first)-i+1:]
			}
		}
	}
	if n <= 0 {
		return nil
	}
	return first[len(first)-n:]
}
