// Package grammar decomposes a candidate set into a compact sliced grammar and
// uses that decomposition to repair partial recognition results.
//
// The phrases of all choices are numbered in declaration order; that number
// is the phrase's grammar index. [New] splits the phrases into an ordered
// list of slices. Each slice holds the word alternatives valid at its
// position, and every phrase reads as the concatenation of at most one
// alternative per slice:
//
//	Yes, Miss  ─┐   slice 0: yes {0} | no {1}
//	No, Miss   ─┘   slice 1: miss {0,1}
//
// The compiled [Artifact] is handed to the recognizer, which reports results
// as rule trees whose children name the slice they matched. The [Mapper]
// translates grammar indices in those results back to choice indices.
package grammar

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/choicerec/pkg/choice"
)

// slicePrefix is the rule name prefix of slice rules in the compiled grammar.
const slicePrefix = "slice_"

// Slice is one position of the sliced grammar.
type Slice struct {
	// Alternatives holds the word runs valid at this position. Each
	// alternative's Indices are the grammar indices of the phrases using it.
	Alternatives []choice.PhraseString
}

// Indices returns the grammar indices of all phrases that use the slice.
func (s Slice) Indices() choice.Indices {
	var out choice.Indices
	for _, a := range s.Alternatives {
		out = out.Union(a.Indices)
	}
	return out
}

// find returns the alternative whose words equal words.
func (s Slice) find(words []string) (choice.PhraseString, bool) {
	for _, a := range s.Alternatives {
		if slices.Equal(a.Words(), words) {
			return a, true
		}
	}
	return choice.PhraseString{}, false
}

// prefixed returns the union of indices of all alternatives starting with
// words.
func (s Slice) prefixed(words []string) choice.Indices {
	var out choice.Indices
	for _, a := range s.Alternatives {
		aw := a.Words()
		if len(aw) > len(words) && slices.Equal(aw[:len(words)], words) {
			out = out.Union(a.Indices)
		}
	}
	return out
}

// alternativeFor returns the alternative used by phrase p.
func (s Slice) alternativeFor(p int) (choice.PhraseString, bool) {
	for _, a := range s.Alternatives {
		if a.Indices.Contains(p) {
			return a, true
		}
	}
	return choice.PhraseString{}, false
}

// Mapper maps grammar indices to choice indices: Mapper[p] is the choice that
// owns phrase p.
type Mapper []int

// Choices returns the choice indices of the given grammar indices. Indices
// outside the grammar are ignored.
func (m Mapper) Choices(indices choice.Indices) choice.Indices {
	out := make([]int, 0, len(indices))
	for _, p := range indices {
		if p >= 0 && p < len(m) {
			out = append(out, m[p])
		}
	}
	return choice.NewIndices(out...)
}

// Choice returns the single choice the grammar indices belong to. ok is false
// when they are ambiguous or empty.
func (m Mapper) Choice(indices choice.Indices) (int, bool) {
	return m.Choices(indices).Single()
}

// Sliced is the sliced decomposition of a candidate set. It is immutable and
// safe for concurrent use.
type Sliced struct {
	choices *choice.Choices
	phrases []choice.PhraseString
	words   [][]string
	slices  []Slice
	mapper  Mapper
}

// New decomposes the phrases of c into a [Sliced] grammar. It fails for an
// empty set and for sets in which two choices share a phrase.
func New(c *choice.Choices) (*Sliced, error) {
	if c == nil || c.Len() == 0 {
		return nil, errors.New("grammar: cannot slice an empty choice set")
	}

	phrases := c.PhraseStrings()
	s := &Sliced{
		choices: c,
		phrases: make([]choice.PhraseString, len(phrases)),
		words:   make([][]string, len(phrases)),
		mapper:  make(Mapper, len(phrases)),
	}

	owner := make(map[string]int, len(phrases))
	var errs []error
	for p, ps := range phrases {
		w := ps.Words()
		if len(w) == 0 {
			errs = append(errs, fmt.Errorf("grammar: phrase %q contains no words", ps.Phrase))
			continue
		}
		key := strings.Join(w, " ")
		ci, _ := ps.Indices.Single()
		if prev, ok := owner[key]; ok && prev != ci {
			errs = append(errs, fmt.Errorf("grammar: phrase %q belongs to choices %d and %d", ps.Phrase, prev, ci))
		}
		owner[key] = ci
		s.words[p] = w
		s.phrases[p] = choice.PhraseString{Phrase: key, Indices: choice.NewIndices(p)}
		s.mapper[p] = ci
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s.slices = decompose(s.words)
	for p := range s.words {
		if got := s.read(p); !slices.Equal(got, s.words[p]) {
			return nil, fmt.Errorf("grammar: phrase %q reads back as %q", s.phrases[p].Phrase, strings.Join(got, " "))
		}
	}
	return s, nil
}

// MustNew is like [New] but panics on error.
func MustNew(c *choice.Choices) *Sliced {
	s, err := New(c)
	if err != nil {
		panic(err)
	}
	return s
}

// decompose splits the phrase words into slices: the common leading and
// trailing words become single-alternative slices, the differing middles are
// aligned by word position and adjacent positions that partition the phrases
// identically are merged.
func decompose(words [][]string) []Slice {
	all := choice.Range(len(words))
	head := choice.CommonPrefix(words...)
	tail := choice.CommonSuffix(len(head), words...)

	var out []Slice
	if len(head) > 0 {
		out = append(out, Slice{Alternatives: []choice.PhraseString{{Phrase: strings.Join(head, " "), Indices: all}}})
	}

	first := len(out)
	middles := make([][]string, len(words))
	width := 0
	for p, w := range words {
		middles[p] = w[len(head) : len(w)-len(tail)]
		width = max(width, len(middles[p]))
	}
	for col := 0; col < width; col++ {
		var column Slice
		for p, m := range middles {
			if col >= len(m) {
				continue
			}
			column = column.with(m[col], p)
		}
		if n := len(out); n > first && samePartition(out[n-1], column) {
			out[n-1] = merge(out[n-1], column)
			continue
		}
		out = append(out, column)
	}

	if len(tail) > 0 {
		out = append(out, Slice{Alternatives: []choice.PhraseString{{Phrase: strings.Join(tail, " "), Indices: all}}})
	}
	return out
}

// with returns the slice with phrase p added to the alternative word,
// creating the alternative if needed.
func (s Slice) with(word string, p int) Slice {
	for i, a := range s.Alternatives {
		if a.Phrase == word {
			s.Alternatives[i].Indices = a.Indices.Union(choice.NewIndices(p))
			return s
		}
	}
	s.Alternatives = append(s.Alternatives, choice.PhraseString{Phrase: word, Indices: choice.NewIndices(p)})
	return s
}

func samePartition(a, b Slice) bool {
	if len(a.Alternatives) != len(b.Alternatives) {
		return false
	}
	for _, x := range a.Alternatives {
		found := false
		for _, y := range b.Alternatives {
			if x.Indices.Equal(y.Indices) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// merge appends the words of b's alternatives to a's alternatives with the
// same indices. a and b must partition the phrases identically.
func merge(a, b Slice) Slice {
	out := Slice{Alternatives: make([]choice.PhraseString, len(a.Alternatives))}
	for i, x := range a.Alternatives {
		for _, y := range b.Alternatives {
			if x.Indices.Equal(y.Indices) {
				x.Phrase = x.Phrase + " " + y.Phrase
				break
			}
		}
		out.Alternatives[i] = x
	}
	return out
}

// read reconstructs the words of phrase p from the slices.
func (s *Sliced) read(p int) []string {
	var out []string
	for _, sl := range s.slices {
		if a, ok := sl.alternativeFor(p); ok {
			out = append(out, a.Words()...)
		}
	}
	return out
}

// Choices returns the candidate set the grammar was built from.
func (s *Sliced) Choices() *choice.Choices { return s.choices }

// Mapper returns the grammar-index to choice-index mapping.
func (s *Sliced) Mapper() Mapper { return s.mapper }

// Slices returns the slices in order. The result must not be modified.
func (s *Sliced) Slices() []Slice { return s.slices }

// Len returns the number of phrases in the grammar.
func (s *Sliced) Len() int { return len(s.phrases) }

// Phrase returns the normalised phrase with grammar index p.
func (s *Sliced) Phrase(p int) choice.PhraseString { return s.phrases[p] }

// SliceName returns the rule name of slice i.
func SliceName(i int) string { return slicePrefix + strconv.Itoa(i) }

// SliceIndex parses a rule name produced by [SliceName].
func SliceIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, slicePrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Complete returns the full phrases a partial match may continue into: every
// phrase whose grammar index is in partial.Indices (or any phrase, when the
// indices are empty) and whose words contain the partial's words as a
// contiguous run. Results are ordered by grammar index.
func (s *Sliced) Complete(partial choice.PhraseString) []choice.PhraseString {
	want := partial.Words()
	candidates := partial.Indices
	if candidates.IsEmpty() {
		candidates = choice.Range(len(s.phrases))
	}
	var out []choice.PhraseString
	for _, p := range candidates {
		if p < 0 || p >= len(s.phrases) {
			continue
		}
		if containsRun(s.words[p], want) {
			out = append(out, s.phrases[p])
		}
	}
	return out
}

func containsRun(words, run []string) bool {
	if len(run) == 0 {
		return true
	}
	for i := 0; i+len(run) <= len(words); i++ {
		if slices.Equal(words[i:i+len(run)], run) {
			return true
		}
	}
	return false
}
