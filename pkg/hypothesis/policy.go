// Package hypothesis implements the early-acceptance state machine that turns
// a recognizer's event stream into decisions.
//
// While an utterance is in progress the recognizer reports intermediate
// results. The evaluator repairs them against the sliced grammar, keeps the
// best one as the current hypothesis and, when the recognizer finally gives
// up or commits to a weaker result, substitutes the hypothesis if it carries
// enough evidence. The decision logic is the pure [Policy.Transition]; the
// [Evaluator] adds locking, logging and metrics around it.
package hypothesis

import (
	"cmp"
	"slices"

	"github.com/MrWong99/choicerec/pkg/choice"
	"github.com/MrWong99/choicerec/pkg/grammar"
	"github.com/MrWong99/choicerec/pkg/recognition"
	"github.com/MrWong99/choicerec/pkg/rule"
	"github.com/MrWong99/choicerec/pkg/splitter"
)

// Phase is the position of the state machine within an utterance.
type Phase int

const (
	// Idle is the phase before the first utterance.
	Idle Phase = iota

	// Listening is the phase between Started and the terminal event.
	Listening

	// Completed is reached when the utterance ended with a result.
	Completed

	// Rejected is reached when the utterance ended without a result.
	Rejected
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Candidate is a repaired rule scored against the candidate set.
type Candidate struct {
	// Rule is the repaired rule tree.
	Rule *rule.Rule

	// Choice is the choice index the rule maps onto.
	Choice int

	// Units is the number of units the rule's text holds.
	Units int

	// Total is the unit count of the shortest full phrase the rule can
	// complete into.
	Total int

	// Weighted is the rule's probability scaled by Units/Total.
	Weighted float64
}

// State is the state threaded through [Policy.Transition].
type State struct {
	Phase Phase

	// Current is the retained hypothesis, nil when there is none.
	Current *Candidate

	// Candidates is the number of repaired candidates the last event yielded.
	Candidates int
}

// Policy holds the per-set context of the state machine. It is immutable and
// safe for concurrent use.
type Policy struct {
	grammar  *grammar.Sliced
	splitter splitter.Splitter
	expected rule.Confidence
	minimum  int
}

// NewPolicy returns the policy for g using the splitter s and the expected
// confidence tier.
func NewPolicy(g *grammar.Sliced, s splitter.Splitter, expected rule.Confidence) *Policy {
	return &Policy{
		grammar:  g,
		splitter: s,
		expected: expected,
		minimum:  s.MinimumForSet(g.Choices()),
	}
}

// Grammar returns the grammar the policy evaluates against.
func (p *Policy) Grammar() *grammar.Sliced { return p.grammar }

// Expected returns the confidence tier accepted results are elevated to.
func (p *Policy) Expected() rule.Confidence { return p.expected }

// Minimum returns the minimum unit count of the set.
func (p *Policy) Minimum() int { return p.minimum }

// Splitter returns the threshold strategy in use.
func (p *Policy) Splitter() splitter.Splitter { return p.splitter }

// Score evaluates a repaired rule. ok is false when the rule is not eligible:
// it is blank, or it does not map onto exactly one choice.
func (p *Policy) Score(r *rule.Rule) (c Candidate, ok bool) {
	if r.IsBlank() {
		return Candidate{}, false
	}
	ci, ok := p.grammar.Choice(r)
	if !ok {
		return Candidate{}, false
	}

	units := p.splitter.Count(r.Text)
	total := 0
	for _, full := range p.grammar.Complete(choice.PhraseString{Phrase: r.Text, Indices: r.Indices}) {
		n := p.splitter.Count(full.Phrase)
		if total == 0 || n < total {
			total = n
		}
	}
	if total == 0 {
		total = units
	}
	if units == 0 {
		return Candidate{}, false
	}

	return Candidate{
		Rule:     r,
		Choice:   ci,
		Units:    units,
		Total:    total,
		Weighted: r.Probability * min(1, float64(units)/float64(total)),
	}, true
}

// Acceptable reports whether c carries enough evidence to be elevated.
//
// The minimum unit count is capped at the length of the completed phrase, so
// a phrase shorter than the set minimum is acceptable once it was heard in
// full. At exactly the minimum the reduced threshold of the expected tier
// applies; above it the threshold of the next lower tier does.
func (p *Policy) Acceptable(c Candidate) bool {
	m := min(p.minimum, c.Total)
	switch {
	case c.Units < m:
		return false
	case c.Units == m:
		return c.Weighted >= p.expected.Reduced()
	default:
		return c.Weighted >= p.expected.Lower().Probability()
	}
}

// Best repairs rules and returns the best eligible candidate, ordered by unit
// count, then weighted probability, then lowest choice index. n is the number
// of repaired candidates considered.
func (p *Policy) Best(rules []*rule.Rule) (best Candidate, n int, ok bool) {
	var scored []Candidate
	for _, r := range rules {
		for _, repaired := range p.grammar.Repair(r) {
			n++
			if c, eligible := p.Score(repaired); eligible {
				scored = append(scored, c)
			}
		}
	}
	if len(scored) == 0 {
		return Candidate{}, n, false
	}
	slices.SortStableFunc(scored, func(a, b Candidate) int {
		if c := cmp.Compare(b.Units, a.Units); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Weighted, a.Weighted); c != 0 {
			return c
		}
		return cmp.Compare(a.Choice, b.Choice)
	})
	return scored[0], n, true
}

// replaces reports whether next should replace the current hypothesis.
func replaces(current *Candidate, next Candidate) bool {
	switch {
	case current == nil:
		return true
	case next.Choice != current.Choice:
		return true
	case next.Units > current.Units:
		return true
	default:
		return next.Weighted > current.Weighted
	}
}

// Transition applies ev to s and returns the new state together with the
// events to forward downstream.
func (p *Policy) Transition(s State, ev recognition.Event) (State, []recognition.Event) {
	switch ev := ev.(type) {
	case recognition.Started:
		return State{Phase: Listening}, []recognition.Event{ev}

	case recognition.Detected:
		var out []recognition.Event
		if s.Phase != Listening {
			s = State{Phase: Listening}
			out = append(out, recognition.Started{})
		}
		best, n, ok := p.Best(ev.Rules)
		s.Candidates = n
		if ok && replaces(s.Current, best) {
			s.Current = &best
		}
		return s, append(out, ev)

	case recognition.Rejected:
		current := s.Current
		if current != nil && p.Acceptable(*current) {
			return State{Phase: Completed}, []recognition.Event{recognition.Completed{Rule: current.Rule.Elevated(p.expected)}}
		}
		return State{Phase: Rejected}, []recognition.Event{ev}

	case recognition.Completed:
		current := s.Current
		if current != nil && ev.Rule != nil && ev.Rule.Confidence < p.expected &&
			p.refersTo(ev.Rule, current.Choice) && p.Acceptable(*current) {
			return State{Phase: Completed}, []recognition.Event{recognition.Completed{Rule: current.Rule.Elevated(p.expected)}}
		}
		return State{Phase: Completed}, []recognition.Event{ev}
	}
	return s, nil
}

// refersTo reports whether the final result r selects choice ci, either
// directly or after repair.
func (p *Policy) refersTo(r *rule.Rule, ci int) bool {
	if got, ok := p.grammar.Choice(r); ok {
		return got == ci
	}
	for _, repaired := range p.grammar.Repair(r) {
		if got, ok := p.grammar.Choice(repaired); ok && got == ci {
			return true
		}
	}
	return false
}
