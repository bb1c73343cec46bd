// Package choice models the candidate answers offered to a speech recognizer.
//
// A [Choices] value is an ordered set of [Choice] entries plus the locale the
// phrases are spoken in and an [Intention] that tells downstream consumers how
// much confidence a recognition result must carry before it is trusted. Every
// choice owns one or more phrases: alternate wordings that select the same
// answer.
//
// Construction validates the set eagerly. An invalid set indicates a
// programming or configuration mistake upstream and is reported through
// [New] as an error, or by [MustNew] as a panic.
package choice

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Intention describes what the prompt expects from the speaker. It selects the
// confidence tier a recognition result has to reach to be accepted.
type Intention int

const (
	// Chat is casual conversation; low confidence results are acceptable.
	Chat Intention = iota

	// Confirm asks for a confirmation; results need normal confidence.
	Confirm

	// Decide asks for a decision with consequences; results need high confidence.
	Decide
)

// String returns the lower-case name of the intention.
func (i Intention) String() string {
	switch i {
	case Chat:
		return "chat"
	case Confirm:
		return "confirm"
	case Decide:
		return "decide"
	default:
		return "unknown"
	}
}

// ParseIntention converts a name produced by [Intention.String] back into an
// [Intention].
func ParseIntention(s string) (Intention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat":
		return Chat, nil
	case "confirm", "":
		return Confirm, nil
	case "decide":
		return Decide, nil
	}
	return 0, fmt.Errorf("choice: unknown intention %q; valid values: chat, confirm, decide", s)
}

// Choice is one selectable answer.
type Choice struct {
	// Text identifies the answer. It must be unique within a [Choices] set.
	Text string

	// Display is the string shown to the user. Defaults to Text.
	Display string

	// Phrases are the spoken wordings that select this answer. Defaults to
	// a single phrase equal to Text.
	Phrases []string
}

// Choices is an ordered, validated candidate set.
type Choices struct {
	// Locale is the language the phrases are spoken in.
	Locale language.Tag

	// Intention selects the expected confidence of accepted results.
	Intention Intention

	// Items holds the choices in declaration order. The position of a choice
	// is its application-level choice index.
	Items []Choice
}

// New validates items and returns the resulting [Choices].
//
// The following conditions are reported as a joined error:
//   - the set is empty,
//   - a choice has no phrase containing at least one word,
//   - two choices share the same text or the same display string,
//   - the same phrase (after word normalisation) belongs to two choices.
func New(locale language.Tag, intention Intention, items ...Choice) (*Choices, error) {
	if len(items) == 0 {
		return nil, errors.New("choice: a choice set needs at least one choice")
	}

	var errs []error
	texts := make(map[string]int, len(items))
	displays := make(map[string]int, len(items))
	phrases := make(map[string]int)
	normalized := make([]Choice, 0, len(items))

	for i, item := range items {
		c := Choice{
			Text:    strings.TrimSpace(item.Text),
			Display: strings.TrimSpace(item.Display),
		}
		if c.Display == "" {
			c.Display = c.Text
		}
		if c.Text == "" {
			errs = append(errs, fmt.Errorf("choice: items[%d].text is required", i))
		} else if prev, ok := texts[c.Text]; ok {
			errs = append(errs, fmt.Errorf("choice: items[%d].text %q duplicates items[%d]", i, c.Text, prev))
		} else {
			texts[c.Text] = i
		}
		if prev, ok := displays[c.Display]; ok && c.Display != "" {
			errs = append(errs, fmt.Errorf("choice: items[%d].display %q duplicates items[%d]", i, c.Display, prev))
		} else {
			displays[c.Display] = i
		}

		source := item.Phrases
		if len(source) == 0 {
			source = []string{c.Text}
		}
		seen := make(map[string]struct{}, len(source))
		for _, p := range source {
			key := strings.Join(Words(p), " ")
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if prev, ok := phrases[key]; ok {
				errs = append(errs, fmt.Errorf("choice: phrase %q of items[%d] also belongs to items[%d]", p, i, prev))
				continue
			}
			phrases[key] = i
			c.Phrases = append(c.Phrases, strings.TrimSpace(p))
		}
		if len(c.Phrases) == 0 {
			errs = append(errs, fmt.Errorf("choice: items[%d] has no phrase containing words", i))
		}
		normalized = append(normalized, c)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Choices{Locale: locale, Intention: intention, Items: normalized}, nil
}

// MustNew is like [New] but panics on invalid input.
func MustNew(locale language.Tag, intention Intention, items ...Choice) *Choices {
	c, err := New(locale, intention, items...)
	if err != nil {
		panic(err)
	}
	return c
}

// FromTexts builds single-phrase choices from plain strings.
func FromTexts(texts ...string) []Choice {
	items := make([]Choice, len(texts))
	for i, t := range texts {
		items[i] = Choice{Text: t}
	}
	return items
}

// Len returns the number of choices in the set.
func (c *Choices) Len() int { return len(c.Items) }

// PhraseStrings returns every phrase of every choice in declaration order. The
// position in the returned slice is the phrase's grammar index; each entry's
// Indices holds the owning choice index.
func (c *Choices) PhraseStrings() []PhraseString {
	var out []PhraseString
	for i, item := range c.Items {
		for _, p := range item.Phrases {
			out = append(out, PhraseString{Phrase: p, Indices: NewIndices(i)})
		}
	}
	return out
}
