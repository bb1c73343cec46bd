package rule

import (
	"fmt"
	"strings"

	"github.com/MrWong99/choicerec/pkg/choice"
)

// Confidence is an ordered recognition confidence tier. Each tier carries the
// probability a result must reach to be reported at that tier.
type Confidence int

const (
	// Noise marks results that should not be trusted at all.
	Noise Confidence = iota

	// Low is acceptable for casual conversation.
	Low

	// Normal is the default tier for confirmations.
	Normal

	// High is required for decisions.
	High
)

var probabilities = [...]float64{
	Noise:  0.0,
	Low:    0.45,
	Normal: 0.65,
	High:   0.85,
}

// Probability returns the threshold probability of the tier.
func (c Confidence) Probability() float64 {
	if c < Noise {
		return probabilities[Noise]
	}
	if c > High {
		return probabilities[High]
	}
	return probabilities[c]
}

// Lower returns the tier one step below c. Noise is its own lower tier.
func (c Confidence) Lower() Confidence {
	if c <= Noise {
		return Noise
	}
	if c > High {
		return Normal
	}
	return c - 1
}

// Reduced returns the relaxed threshold of the tier: halfway between its own
// probability and that of [Confidence.Lower]. It applies only when a result
// carries exactly the minimum amount of evidence.
func (c Confidence) Reduced() float64 {
	return (c.Probability() + c.Lower().Probability()) / 2
}

// String returns the lower-case tier name.
func (c Confidence) String() string {
	switch c {
	case Noise:
		return "noise"
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	default:
		return fmt.Sprintf("confidence(%d)", int(c))
	}
}

// ParseConfidence converts a tier name back into a [Confidence].
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "noise":
		return Noise, nil
	case "low":
		return Low, nil
	case "normal", "default":
		return Normal, nil
	case "high":
		return High, nil
	}
	return Noise, fmt.Errorf("rule: unknown confidence %q; valid values: noise, low, normal, high", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (c Confidence) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (c *Confidence) UnmarshalText(b []byte) error {
	v, err := ParseConfidence(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Expected returns the tier a result must reach for prompts with the given
// intention.
func Expected(i choice.Intention) Confidence {
	switch i {
	case choice.Chat:
		return Low
	case choice.Decide:
		return High
	default:
		return Normal
	}
}

// FromProbability returns the highest tier whose threshold p reaches.
func FromProbability(p float64) Confidence {
	for c := High; c > Noise; c-- {
		if p >= c.Probability() {
			return c
		}
	}
	return Noise
}
