package grammar

import (
	"slices"
	"strings"

	"github.com/MrWong99/choicerec/pkg/choice"
	"github.com/MrWong99/choicerec/pkg/rule"
)

// maxReconstructions bounds the number of alternative combinations Repair
// tries for the null slots of a single rule.
const maxReconstructions = 64

// match is a slice position the recognizer matched words for.
type match struct {
	text        string
	words       []string
	indices     choice.Indices
	probability float64
	confidence  rule.Confidence
}

// Choice returns the single choice r belongs to.
func (s *Sliced) Choice(r *rule.Rule) (int, bool) {
	if r == nil {
		return 0, false
	}
	return s.mapper.Choice(r.Indices)
}

// Repair reconstructs distinct candidate rules from a possibly inconsistent
// recognition result, using the slices as ground truth.
//
// Children are assigned to slices by name (or by position when the name is
// not a slice name) and their indices are recomputed from the slice
// alternatives; words the grammar does not know turn a child into a null
// slot. Trailing null slots are dropped. A result that maps onto a single
// choice without gaps is returned as is. An ambiguous result is narrowed to
// the phrases that end with its last matched slot when those belong to a
// single choice (see [Sliced.FollowedByOmittable]). Otherwise the null slots are first
// read as skipped slices, then filled with the slice alternatives; a
// reconstruction is kept only if it maps onto exactly one choice and passes
// [rule.Rule.Validate], and only if all kept reconstructions agree on the
// choice. When nothing can be reconstructed the cleaned-up original is
// returned as the only candidate, so the caller can reject it explicitly.
//
// A blank result yields no candidates.
func (s *Sliced) Repair(r *rule.Rule) []*rule.Rule {
	if r.IsBlank() {
		return nil
	}
	slots := s.place(r)
	n := len(slots)
	for n > 0 && slots[n-1] == nil {
		n--
	}
	if n == 0 {
		return nil
	}
	slots = slots[:n]

	base := s.build(r, slots, nil)
	gaps := nullSlots(slots)
	if len(gaps) == 0 {
		if settled, ok := s.settle(base); ok {
			return []*rule.Rule{settled}
		}
	}
	if len(gaps) > 0 {
		if strict := s.build(r, slots, s.skipSets(slots)); strict.Valid() {
			if settled, ok := s.settle(strict); ok {
				return []*rule.Rule{settled}
			}
		}
		if out := s.reconstruct(r, slots, gaps); len(out) > 0 {
			return out
		}
	}
	return []*rule.Rule{base}
}

// settle returns r if it maps onto a single choice. Otherwise, when the
// phrases that end right after r's span all belong to one choice, it returns
// r narrowed to those phrases.
func (s *Sliced) settle(r *rule.Rule) (*rule.Rule, bool) {
	if _, ok := s.Choice(r); ok {
		return r, true
	}
	ending := s.endingAfter(r)
	if _, ok := s.mapper.Choice(ending); !ok {
		return r, false
	}
	narrowed := *r
	narrowed.Indices = ending
	return &narrowed, true
}

// FollowedByOmittable reports whether some phrase of r.Indices ends with the
// words r matched: the last matched slot holds that phrase's complete
// alternative and the phrase uses none of the slices after it.
func (s *Sliced) FollowedByOmittable(r *rule.Rule) bool {
	return !s.endingAfter(r).IsEmpty()
}

// endingAfter returns the phrases of r.Indices that FollowedByOmittable
// accepts.
func (s *Sliced) endingAfter(r *rule.Rule) choice.Indices {
	if r == nil || r.Indices.IsEmpty() {
		return choice.NoIndices
	}
	last, lastWords := -1, []string(nil)
	for i, c := range r.Children {
		if c.IsNull() {
			continue
		}
		idx, ok := SliceIndex(c.Name)
		if !ok {
			idx = i
		}
		if idx > last {
			last, lastWords = idx, choice.Words(c.Text)
		}
	}
	if last < 0 || last >= len(s.slices) {
		return choice.NoIndices
	}

	var out []int
	for _, p := range r.Indices {
		a, ok := s.slices[last].alternativeFor(p)
		if !ok || !slices.Equal(a.Words(), lastWords) {
			continue
		}
		omittable := true
		for _, sl := range s.slices[last+1:] {
			if sl.Indices().Contains(p) {
				omittable = false
				break
			}
		}
		if omittable {
			out = append(out, p)
		}
	}
	return choice.NewIndices(out...)
}

// Parse segments plain recognized text along the slices and returns the
// resulting rule tree. Words the grammar does not know are dropped.
func (s *Sliced) Parse(text string, probability float64, confidence rule.Confidence) *rule.Rule {
	root := &rule.Rule{Name: rule.MainName, Text: text, Probability: probability, Confidence: confidence}
	slots := s.segment(choice.Words(text), probability, confidence)
	n := len(slots)
	for n > 0 && slots[n-1] == nil {
		n--
	}
	return s.build(root, slots[:n], nil)
}

// place assigns the children of r to slice positions.
func (s *Sliced) place(r *rule.Rule) []*match {
	if len(r.Children) == 0 {
		return s.segment(choice.Words(r.Text), r.Probability, r.Confidence)
	}
	last := -1
	for i, c := range r.Children {
		if !c.IsNull() {
			last = i
		}
	}
	out := make([]*match, len(s.slices))
	for i, c := range r.Children {
		if c.IsNull() {
			continue
		}
		idx, ok := SliceIndex(c.Name)
		if !ok {
			idx = i
		}
		if idx >= len(out) || out[idx] != nil {
			continue
		}
		words := choice.Words(c.Text)
		indices := s.lookup(idx, words, i == last)
		if indices.IsEmpty() {
			continue
		}
		out[idx] = &match{
			text:        c.Text,
			words:       words,
			indices:     indices,
			probability: c.Probability,
			confidence:  c.Confidence,
		}
	}
	return out
}

// lookup returns the grammar indices of the alternative of slice idx matching
// words. With allowPrefix, words may also be the beginning of an alternative,
// as happens for the last matched slot of an unfinished utterance.
func (s *Sliced) lookup(idx int, words []string, allowPrefix bool) choice.Indices {
	if len(words) == 0 {
		return choice.NoIndices
	}
	sl := s.slices[idx]
	if a, ok := sl.find(words); ok {
		return a.Indices
	}
	if allowPrefix {
		return sl.prefixed(words)
	}
	return choice.NoIndices
}

// segment greedily assigns words to slices. A word that neither the current
// nor any later slice can start with is dropped.
func (s *Sliced) segment(words []string, probability float64, confidence rule.Confidence) []*match {
	out := make([]*match, len(s.slices))
	i, pos := 0, 0
	for i < len(s.slices) && pos < len(words) {
		if m := s.longest(i, words[pos:]); m != nil {
			m.probability, m.confidence = probability, confidence
			out[i] = m
			pos += len(m.words)
			i++
			continue
		}
		if s.matchesFrom(i+1, words[pos:]) {
			i++
			continue
		}
		pos++
	}
	return out
}

// longest returns the longest alternative of slice i that rest starts with,
// or a prefix match when rest ends inside an alternative.
func (s *Sliced) longest(i int, rest []string) *match {
	var best *match
	for _, a := range s.slices[i].Alternatives {
		aw := a.Words()
		if len(aw) <= len(rest) && slices.Equal(rest[:len(aw)], aw) {
			if best == nil || len(aw) > len(best.words) {
				best = &match{text: a.Phrase, words: aw, indices: a.Indices}
			}
		}
	}
	if best != nil {
		return best
	}
	if ix := s.slices[i].prefixed(rest); !ix.IsEmpty() {
		return &match{text: strings.Join(rest, " "), words: rest, indices: ix}
	}
	return nil
}

func (s *Sliced) matchesFrom(i int, rest []string) bool {
	for ; i < len(s.slices); i++ {
		if s.longest(i, rest) != nil {
			return true
		}
	}
	return false
}

// build creates the rule tree for slots. Null slots carry skip[i] as their
// indices when skip is non-nil.
func (s *Sliced) build(r *rule.Rule, slots []*match, skip []choice.Indices) *rule.Rule {
	name := r.Name
	if name == "" {
		name = rule.MainName
	}
	children := make([]*rule.Rule, len(slots))
	pos := 0
	for i, m := range slots {
		if m == nil {
			var ix choice.Indices
			if skip != nil {
				ix = skip[i]
			}
			children[i] = rule.Null(SliceName(i), pos, ix)
			continue
		}
		children[i] = rule.Leaf(SliceName(i), m.text, pos, m.indices, m.probability, m.confidence)
		pos += len(m.words)
	}
	return rule.New(name, r.Probability, r.Confidence, children...)
}

// skipSets returns, for every null slot, the phrases that do not use the
// slice at all.
func (s *Sliced) skipSets(slots []*match) []choice.Indices {
	all := choice.Range(len(s.phrases))
	out := make([]choice.Indices, len(slots))
	for i, m := range slots {
		if m != nil {
			continue
		}
		used := s.slices[i].Indices()
		var skipped []int
		for _, p := range all {
			if !used.Contains(p) {
				skipped = append(skipped, p)
			}
		}
		out[i] = choice.NewIndices(skipped...)
	}
	return out
}

// reconstruct fills the null slots with every combination of slice
// alternatives and returns the distinct reconstructions that map onto one
// and the same choice.
func (s *Sliced) reconstruct(r *rule.Rule, slots []*match, gaps []int) []*rule.Rule {
	radix := make([]int, len(gaps))
	total := 1
	for k, g := range gaps {
		radix[k] = len(s.slices[g].Alternatives)
		total *= radix[k]
		if total > maxReconstructions {
			total = maxReconstructions
			break
		}
	}

	var out []*rule.Rule
	seen := make(map[string]struct{})
	choiceIndex := -1
	counter := make([]int, len(gaps))
	filled := slices.Clone(slots)
	for range total {
		for k, g := range gaps {
			a := s.slices[g].Alternatives[counter[k]]
			filled[g] = &match{
				text:        a.Phrase,
				words:       a.Words(),
				indices:     a.Indices,
				probability: r.Probability,
				confidence:  r.Confidence,
			}
		}
		cand := s.build(r, filled, nil)
		if c, ok := s.Choice(cand); ok && cand.Valid() {
			if choiceIndex >= 0 && c != choiceIndex {
				return nil
			}
			choiceIndex = c
			if _, dup := seen[cand.Text]; !dup {
				seen[cand.Text] = struct{}{}
				out = append(out, cand)
			}
		}
		for k := range counter {
			counter[k]++
			if counter[k] < radix[k] {
				break
			}
			counter[k] = 0
		}
	}
	return out
}

func nullSlots(slots []*match) []int {
	var out []int
	for i, m := range slots {
		if m == nil {
			out = append(out, i)
		}
	}
	return out
}
