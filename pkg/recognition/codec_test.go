package recognition_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrWong99/choicerec/pkg/choice"
	"github.com/MrWong99/choicerec/pkg/recognition"
	"github.com/MrWong99/choicerec/pkg/rule"
)

const replay = `{"kind":"started"}
{"kind":"detected","rules":[{"name":"Main","text":"no","from":0,"to":1,"indices":[1],"probability":0.4,"confidence":"low"}]}
{"kind":"detected","rules":[{"name":"Main","text":"no miss","from":0,"to":2,"indices":[1],"probability":0.9,"confidence":"high"}]}
{"kind":"rejected"}
`

func TestDecodeAll(t *testing.T) {
	t.Parallel()

	events, err := recognition.DecodeAll(strings.NewReader(replay))
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	wantKinds := []recognition.Kind{
		recognition.KindStarted,
		recognition.KindDetected,
		recognition.KindDetected,
		recognition.KindRejected,
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("DecodeAll returned %d events, want %d", len(events), len(wantKinds))
	}
	for i, ev := range events {
		if ev.Kind() != wantKinds[i] {
			t.Errorf("event %d kind = %v, want %v", i, ev.Kind(), wantKinds[i])
		}
	}

	d, ok := events[2].(recognition.Detected)
	if !ok || len(d.Rules) != 1 {
		t.Fatalf("event 2 = %#v, want Detected with one rule", events[2])
	}
	if d.Rules[0].Text != "no miss" || d.Rules[0].Confidence != rule.High {
		t.Errorf("event 2 rule = %s", d.Rules[0])
	}
	if r := recognition.Result(events[3]); r != nil {
		t.Errorf("Result(rejected) = %s, want nil", r)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"unknown kind", `{"kind":"paused"}`},
		{"missing kind", `{}`},
		{"unknown field", `{"kind":"started","extra":1}`},
		{"completed without rule", `{"kind":"completed"}`},
		{"not json", `kind=started`},
	}
	for _, tc := range tests {
		if _, err := recognition.DecodeAll(strings.NewReader(tc.in)); err == nil {
			t.Errorf("DecodeAll(%s): expected error", tc.name)
		}
	}
}

func TestEncoder(t *testing.T) {
	t.Parallel()

	r := rule.New(rule.MainName, 0.9, rule.High,
		rule.Leaf("slice_0", "no", 0, choice.NewIndices(1), 0.9, rule.High))

	var buf bytes.Buffer
	enc := recognition.NewEncoder(&buf)
	for _, ev := range []recognition.Event{
		recognition.Started{},
		recognition.Completed{Rule: r},
	} {
		if err := enc.Encode(ev); err != nil {
			t.Fatalf("Encode(%v): %v", ev.Kind(), err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if lines[0] != `{"kind":"started"}` {
		t.Errorf("line 0 = %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], `{"kind":"completed","rule":{"name":"Main","text":"no"`) {
		t.Errorf("line 1 = %s", lines[1])
	}

	if err := enc.Encode(nil); err == nil {
		t.Error("Encode(nil): expected error")
	}
}

func TestKind(t *testing.T) {
	t.Parallel()

	if !recognition.KindRejected.IsTerminal() || !recognition.KindCompleted.IsTerminal() {
		t.Error("rejected and completed must be terminal")
	}
	if recognition.KindDetected.IsTerminal() {
		t.Error("detected must not be terminal")
	}
	if got := recognition.Kind(42).String(); got != "kind(42)" {
		t.Errorf("Kind(42).String() = %q", got)
	}
}
