package hypothesis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/choicerec/pkg/grammar"
	"github.com/MrWong99/choicerec/pkg/recognition"
	"github.com/MrWong99/choicerec/pkg/rule"
	"github.com/MrWong99/choicerec/pkg/splitter"
)

// Observer receives measurements from an [Evaluator]. Implementations must be
// safe for concurrent use.
type Observer interface {
	// ObserveEvent is called for every event the evaluator forwards.
	ObserveEvent(ctx context.Context, kind recognition.Kind)

	// ObserveCandidates is called with the number of repaired candidates of
	// every Detected event.
	ObserveCandidates(ctx context.Context, n int)

	// ObserveReplacement is called when the retained hypothesis changes.
	ObserveReplacement(ctx context.Context)

	// ObserveElevation is called when a hypothesis is substituted for the
	// recognizer's terminal event of the given kind.
	ObserveElevation(ctx context.Context, trigger recognition.Kind)

	// ObserveUtterance is called when an utterance ends.
	ObserveUtterance(ctx context.Context, d time.Duration, outcome recognition.Kind)
}

type nopObserver struct{}

func (nopObserver) ObserveEvent(context.Context, recognition.Kind)                    {}
func (nopObserver) ObserveCandidates(context.Context, int)                            {}
func (nopObserver) ObserveReplacement(context.Context)                                {}
func (nopObserver) ObserveElevation(context.Context, recognition.Kind)                {}
func (nopObserver) ObserveUtterance(context.Context, time.Duration, recognition.Kind) {}

// Option is a functional option for [New].
type Option func(*Evaluator)

// WithSplitter forces the threshold strategy instead of selecting it from
// the locale of the candidate set.
func WithSplitter(kind splitter.Kind) Option {
	return func(e *Evaluator) {
		e.kind = kind
		e.kindSet = true
	}
}

// WithExpected overrides the expected confidence tier derived from the
// intention of the candidate set.
func WithExpected(c rule.Confidence) Option {
	return func(e *Evaluator) {
		e.expected = c
		e.expectedSet = true
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// WithObserver sets the measurement hook.
func WithObserver(o Observer) Option {
	return func(e *Evaluator) { e.obs = o }
}

// Evaluator runs the hypothesis state machine for one recognizer.
//
// Events must be delivered in utterance order from a single goroutine, either
// through [Evaluator.Handle] or [Evaluator.Run]. [Evaluator.Hypothesis] and
// [Evaluator.State] may be called concurrently from any goroutine.
type Evaluator struct {
	kind        splitter.Kind
	kindSet     bool
	expected    rule.Confidence
	expectedSet bool
	log         *slog.Logger
	obs         Observer
	now         func() time.Time

	mu      sync.Mutex
	policy  *Policy
	state   State
	started time.Time
}

// New returns an evaluator for the grammar g.
func New(g *grammar.Sliced, opts ...Option) *Evaluator {
	e := &Evaluator{
		log: slog.Default(),
		obs: nopObserver{},
		now: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	e.policy = e.newPolicy(g)
	return e
}

func (e *Evaluator) newPolicy(g *grammar.Sliced) *Policy {
	kind := e.kind
	if !e.kindSet {
		kind = splitter.ForLocale(g.Choices().Locale)
	}
	expected := e.expected
	if !e.expectedSet {
		expected = rule.Expected(g.Choices().Intention)
	}
	return NewPolicy(g, splitter.New(kind), expected)
}

// Reload switches the evaluator to a new grammar. Any utterance in progress
// is abandoned.
func (e *Evaluator) Reload(g *grammar.Sliced) {
	p := e.newPolicy(g)
	e.mu.Lock()
	e.policy = p
	e.state = State{}
	e.mu.Unlock()
	e.log.Info("hypothesis: grammar reloaded",
		"choices", g.Choices().Len(),
		"splitter", p.Splitter().Kind(),
		"minimum", p.Minimum(),
		"expected", p.Expected(),
	)
}

// Policy returns the policy currently in use.
func (e *Evaluator) Policy() *Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// Hypothesis returns the retained hypothesis of the utterance in progress, or
// nil when there is none.
func (e *Evaluator) Hypothesis() *rule.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Current == nil {
		return nil
	}
	return e.state.Current.Rule
}

// State returns a snapshot of the state machine.
func (e *Evaluator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Handle applies ev and returns the events to forward downstream.
func (e *Evaluator) Handle(ctx context.Context, ev recognition.Event) []recognition.Event {
	if ev == nil {
		return nil
	}
	e.mu.Lock()
	prev := e.state
	next, out := e.policy.Transition(prev, ev)
	e.state = next
	now := e.now()
	started := e.started
	if next.Phase == Listening && prev.Phase != Listening {
		e.started = now
		started = now
	}
	e.mu.Unlock()

	e.observe(ctx, ev, prev, next, out, now.Sub(started))
	return out
}

func (e *Evaluator) observe(ctx context.Context, in recognition.Event, prev, next State, out []recognition.Event, elapsed time.Duration) {
	if in.Kind() == recognition.KindDetected {
		e.obs.ObserveCandidates(ctx, next.Candidates)
		if next.Current != nil && next.Current != prev.Current {
			e.obs.ObserveReplacement(ctx)
			e.log.Debug("hypothesis: retained",
				"text", next.Current.Rule.Text,
				"choice", next.Current.Choice,
				"units", next.Current.Units,
				"total", next.Current.Total,
				"weighted", next.Current.Weighted,
			)
		}
	}
	for _, ev := range out {
		e.obs.ObserveEvent(ctx, ev.Kind())
		if !ev.Kind().IsTerminal() {
			continue
		}
		if ev.Kind() == recognition.KindCompleted && recognition.Result(ev) != recognition.Result(in) {
			e.obs.ObserveElevation(ctx, in.Kind())
			e.log.Info("hypothesis: elevated",
				"trigger", in.Kind(),
				"text", recognition.Result(ev).Text,
				"choice", prev.Current.Choice,
			)
		}
		if prev.Phase == Listening {
			e.obs.ObserveUtterance(ctx, elapsed, ev.Kind())
		}
	}
}

// Run reads events from in, applies them and writes the resulting events to
// out until in is closed or ctx is done. It returns nil when in was closed
// and ctx.Err() otherwise. Run does not close out.
func (e *Evaluator) Run(ctx context.Context, in <-chan recognition.Event, out chan<- recognition.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			for _, o := range e.Handle(ctx, ev) {
				select {
				case out <- o:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
