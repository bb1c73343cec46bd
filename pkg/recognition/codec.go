package recognition

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/choicerec/pkg/rule"
)

// envelope is the wire form of an [Event], one JSON object per line:
//
//	{"kind":"started"}
//	{"kind":"detected","rules":[{"name":"Main","text":"no miss",...}]}
//	{"kind":"completed","rule":{"name":"Main","text":"no miss",...}}
type envelope struct {
	Kind  Kind         `json:"kind"`
	Rules []*rule.Rule `json:"rules,omitempty"`
	Rule  *rule.Rule   `json:"rule,omitempty"`
}

// Encoder writes events as line-delimited JSON.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an [Encoder] writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes ev followed by a newline.
func (e *Encoder) Encode(ev Event) error {
	if ev == nil {
		return errors.New("recognition: encode nil event")
	}
	env := envelope{Kind: ev.Kind()}
	switch ev := ev.(type) {
	case Detected:
		env.Rules = ev.Rules
	case Rejected:
		env.Rule = ev.Rule
	case Completed:
		env.Rule = ev.Rule
	}
	if err := e.enc.Encode(env); err != nil {
		return fmt.Errorf("recognition: encode %s event: %w", env.Kind, err)
	}
	return nil
}

// Decoder reads line-delimited JSON events.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a [Decoder] reading from r.
func NewDecoder(r io.Reader) *Decoder {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return &Decoder{dec: dec}
}

// Decode reads the next event. It returns [io.EOF] when the input is
// exhausted.
func (d *Decoder) Decode() (Event, error) {
	var env envelope
	if err := d.dec.Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("recognition: decode event: %w", err)
	}
	switch env.Kind {
	case KindStarted:
		return Started{}, nil
	case KindDetected:
		return Detected{Rules: env.Rules}, nil
	case KindRejected:
		return Rejected{Rule: env.Rule}, nil
	case KindCompleted:
		if env.Rule == nil {
			return nil, errors.New("recognition: completed event without rule")
		}
		return Completed{Rule: env.Rule}, nil
	}
	return nil, errors.New("recognition: event without kind")
}

// DecodeAll reads every event from r.
func DecodeAll(r io.Reader) ([]Event, error) {
	d := NewDecoder(r)
	var out []Event
	for {
		ev, err := d.Decode()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
