// Package recognition defines the events a speech recognizer emits for an
// utterance and a line-delimited JSON codec for recording and replaying them.
//
// For every utterance a recognizer delivers exactly one [Started] event,
// zero or more [Detected] events and finally one [Rejected] or [Completed]
// event, strictly in that order. [Event] is a closed sum type; consumers
// dispatch with a type switch:
//
//	switch ev := ev.(type) {
//	case recognition.Started:
//	case recognition.Detected:
//		use(ev.Rules)
//	case recognition.Rejected, recognition.Completed:
//	}
package recognition

import (
	"fmt"
	"strings"

	"github.com/MrWong99/choicerec/pkg/rule"
)

// Kind identifies the type of an [Event].
type Kind int

const (
	// KindStarted marks the beginning of an utterance.
	KindStarted Kind = iota + 1

	// KindDetected carries intermediate results.
	KindDetected

	// KindRejected ends an utterance without a result.
	KindRejected

	// KindCompleted ends an utterance with a final result.
	KindCompleted
)

var kindNames = map[Kind]string{
	KindStarted:   "started",
	KindDetected:  "detected",
	KindRejected:  "rejected",
	KindCompleted: "completed",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsTerminal reports whether the kind ends an utterance.
func (k Kind) IsTerminal() bool { return k == KindRejected || k == KindCompleted }

// MarshalText implements [encoding.TextMarshaler].
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("recognition: invalid event kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (k *Kind) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for kind, s := range kindNames {
		if s == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("recognition: unknown event kind %q", string(b))
}

// Event is one recognizer event. The concrete types are [Started],
// [Detected], [Rejected] and [Completed].
type Event interface {
	Kind() Kind
	event()
}

// Started begins an utterance. It discards all state of the previous one.
type Started struct{}

// Detected carries the intermediate results the recognizer currently
// considers, best first.
type Detected struct {
	Rules []*rule.Rule
}

// Rejected ends an utterance without an accepted result. Rule holds the
// recognizer's best guess and may be nil, for example when a watchdog timed
// the utterance out.
type Rejected struct {
	Rule *rule.Rule
}

// Completed ends an utterance with a final result.
type Completed struct {
	Rule *rule.Rule
}

func (Started) Kind() Kind   { return KindStarted }
func (Detected) Kind() Kind  { return KindDetected }
func (Rejected) Kind() Kind  { return KindRejected }
func (Completed) Kind() Kind { return KindCompleted }

func (Started) event()   {}
func (Detected) event()  {}
func (Rejected) event()  {}
func (Completed) event() {}

// Result returns the rule an event carries: the final rule of a terminal
// event, the first rule of a [Detected] event, or nil.
func Result(ev Event) *rule.Rule {
	switch ev := ev.(type) {
	case Detected:
		if len(ev.Rules) > 0 {
			return ev.Rules[0]
		}
	case Rejected:
		return ev.Rule
	case Completed:
		return ev.Rule
	}
	return nil
}
