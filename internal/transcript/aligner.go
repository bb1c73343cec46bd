// Package transcript aligns free-form speech-to-text output with a sliced
// grammar and turns it into recognition events.
//
// STT providers know nothing about the candidate phrases: they transcribe
// whatever they hear and may mishear the words the grammar expects. The
// [Aligner] snaps every transcript word onto the grammar vocabulary with a
// phonetic matcher, segments the corrected text along the grammar slices and
// emits the resulting rule trees:
//
//   - the first partial of an utterance emits [recognition.Started],
//   - every partial with recognizable words emits [recognition.Detected],
//   - a segment final commits its text and emits [recognition.Detected] for
//     everything heard so far; later transcripts of the utterance continue
//     after it,
//   - a final emits [recognition.Completed] if its repaired rule maps onto
//     exactly one choice, and [recognition.Rejected] otherwise.
package transcript

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/choicerec/internal/transcript/phonetic"
	"github.com/MrWong99/choicerec/pkg/choice"
	"github.com/MrWong99/choicerec/pkg/grammar"
	"github.com/MrWong99/choicerec/pkg/recognition"
	"github.com/MrWong99/choicerec/pkg/rule"
	"github.com/MrWong99/choicerec/pkg/types"
)

// Correction captures a single word substitution.
type Correction struct {
	// Original is the word as produced by the STT provider.
	Original string

	// Corrected is the grammar word that replaced it.
	Corrected string

	// Confidence is the similarity score of the substitution in [0, 1].
	Confidence float64
}

// Option is a functional option for [NewAligner].
type Option func(*Aligner)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(a *Aligner) { a.matcher = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *Aligner) { a.log = l }
}

// Aligner converts transcripts into recognition events for one stream. It is
// safe for concurrent use, but transcripts must be delivered in order.
type Aligner struct {
	matcher *phonetic.Matcher
	log     *slog.Logger

	mu       sync.Mutex
	grammar  *grammar.Sliced
	vocab    *phonetic.Vocabulary
	speaking bool
	segments []string

	// emitted counts the events returned by Align and Onset.
	emitted uint64
}

// NewAligner returns an aligner for g.
func NewAligner(g *grammar.Sliced, opts ...Option) *Aligner {
	a := &Aligner{
		matcher: phonetic.New(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	a.grammar = g
	a.vocab = vocabularyOf(g)
	return a
}

// Reload switches to a new grammar. Any utterance in progress is abandoned.
func (a *Aligner) Reload(g *grammar.Sliced) { a.Swap(g, nil) }

// Swap is Reload with fn run in the same critical section, so no transcript
// is aligned between the switch and fn. Consumers of the events use fn to
// switch to g themselves. fn receives the number of events emitted so far:
// those were aligned with the previous grammar, all later ones with g. fn
// must not call back into the aligner.
func (a *Aligner) Swap(g *grammar.Sliced, fn func(emitted uint64)) {
	v := vocabularyOf(g)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grammar = g
	a.vocab = v
	a.speaking = false
	a.segments = nil
	if fn != nil {
		fn(a.emitted)
	}
}

// Grammar returns the grammar transcripts are aligned with.
func (a *Aligner) Grammar() *grammar.Sliced {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grammar
}

// SetMatcher replaces the phonetic matcher for subsequent transcripts.
func (a *Aligner) SetMatcher(m *phonetic.Matcher) {
	a.mu.Lock()
	a.matcher = m
	a.mu.Unlock()
}

// Reset abandons the utterance in progress. The next transcript starts a new
// one.
func (a *Aligner) Reset() {
	a.mu.Lock()
	a.speaking = false
	a.segments = nil
	a.mu.Unlock()
}

// Onset marks the start of speech detected ahead of the first transcript.
// It returns Started unless an utterance is already in progress.
func (a *Aligner) Onset() []recognition.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.speaking {
		return nil
	}
	a.speaking = true
	a.emitted++
	return []recognition.Event{recognition.Started{}}
}

// Correct snaps the words of text onto the grammar vocabulary. The returned
// text holds the normalised words; unknown words without a close match are
// kept as they are.
func (a *Aligner) Correct(text string) (string, []Correction) {
	a.mu.Lock()
	vocab, m := a.vocab, a.matcher
	a.mu.Unlock()
	return correct(text, vocab, m)
}

func correct(text string, vocab *phonetic.Vocabulary, m *phonetic.Matcher) (string, []Correction) {
	words := choice.Words(text)
	var corrections []Correction
	for i, w := range words {
		if vocab.Contains(w) {
			continue
		}
		snapped, conf, ok := m.Match(w, vocab)
		if !ok {
			continue
		}
		corrections = append(corrections, Correction{Original: w, Corrected: snapped, Confidence: conf})
		words[i] = snapped
	}
	return strings.Join(words, " "), corrections
}

// Align turns one transcript into the events it causes.
func (a *Aligner) Align(t types.Transcript) []recognition.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.align(t)
	a.emitted += uint64(len(out))
	return out
}

func (a *Aligner) align(t types.Transcript) []recognition.Event {
	var out []recognition.Event
	if !a.speaking {
		a.speaking = true
		out = append(out, recognition.Started{})
	}

	text := t.Text
	if len(a.segments) > 0 {
		text = strings.TrimSpace(strings.Join(a.segments, " ") + " " + t.Text)
	}
	p := probabilityOf(t)
	rules := a.parse(text, p)

	if !t.IsFinal || t.Segment {
		if t.IsFinal && strings.TrimSpace(t.Text) != "" {
			a.segments = append(a.segments, t.Text)
		}
		if len(rules) > 0 {
			out = append(out, recognition.Detected{Rules: rules})
		}
		return out
	}

	a.speaking = false
	a.segments = nil
	if len(rules) == 0 {
		a.log.Debug("transcript: nothing recognizable in final", "text", text)
		return append(out, recognition.Rejected{})
	}
	for _, r := range rules {
		candidates := a.grammar.Repair(r)
		if len(candidates) != 1 {
			continue
		}
		if _, ok := a.grammar.Choice(candidates[0]); ok {
			if _, single := a.grammar.Choice(r); !single && a.grammar.FollowedByOmittable(r) {
				a.log.Debug("transcript: final ends where a longer phrase continues", "text", r.Text)
			}
			return append(out, recognition.Completed{Rule: candidates[0]})
		}
	}
	return append(out, recognition.Rejected{Rule: rules[0]})
}

// parse returns the rule of the corrected text and, when the correction
// changed anything the grammar knows, the rule of the raw text as a second
// alternative.
func (a *Aligner) parse(text string, p float64) []*rule.Rule {
	c := rule.FromProbability(p)
	corrected, corrections := correct(text, a.vocab, a.matcher)
	for _, cr := range corrections {
		a.log.Debug("transcript: corrected word",
			"original", cr.Original,
			"corrected", cr.Corrected,
			"confidence", cr.Confidence,
		)
	}

	var rules []*rule.Rule
	if r := a.grammar.Parse(corrected, p, c); !r.IsBlank() {
		rules = append(rules, r)
	}
	if len(corrections) > 0 {
		if raw := a.grammar.Parse(text, p, c); !raw.IsBlank() && (len(rules) == 0 || raw.Text != rules[0].Text) {
			rules = append(rules, raw)
		}
	}
	return rules
}

// Run aligns transcripts from partials and finals and writes the resulting
// events to out until both channels are closed or ctx is done. It returns nil
// when the channels were closed and ctx.Err() otherwise. Run does not close
// out.
func (a *Aligner) Run(ctx context.Context, partials, finals <-chan types.Transcript, out chan<- recognition.Event) error {
	return a.RunWithOnsets(ctx, nil, partials, finals, out)
}

// RunWithOnsets is Run with an additional channel of speech onsets, each of
// which is handled like a call to Onset. Onsets and transcripts share one
// loop, so a Started event never trails the events of its own utterance.
// Closing onsets does not end the loop.
func (a *Aligner) RunWithOnsets(ctx context.Context, onsets <-chan struct{}, partials, finals <-chan types.Transcript, out chan<- recognition.Event) error {
	for partials != nil || finals != nil {
		var events []recognition.Event
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-onsets:
			if !ok {
				onsets = nil
				continue
			}
			events = a.Onset()
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			events = a.Align(t)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			events = a.Align(t)
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// probabilityOf returns the transcript confidence, falling back to the mean
// word confidence when the provider reports no overall score.
func probabilityOf(t types.Transcript) float64 {
	if t.Confidence > 0 || len(t.Words) == 0 {
		return t.Confidence
	}
	var sum float64
	for _, w := range t.Words {
		sum += w.Confidence
	}
	return sum / float64(len(t.Words))
}

func vocabularyOf(g *grammar.Sliced) *phonetic.Vocabulary {
	var words []string
	for p := range g.Len() {
		words = append(words, g.Phrase(p).Words()...)
	}
	return phonetic.Prepare(words)
}
