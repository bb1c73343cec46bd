package grammar_test

import (
	"testing"

	"github.com/MrWong99/choicerec/pkg/choice"
	"github.com/MrWong99/choicerec/pkg/grammar"
	"github.com/MrWong99/choicerec/pkg/rule"
)

// result builds a recognizer result from slice texts; an empty text is a
// null rule. The child indices are deliberately wrong so that Repair has to
// recompute them.
func result(texts ...string) *rule.Rule {
	children := make([]*rule.Rule, len(texts))
	pos := 0
	for i, text := range texts {
		if text == "" {
			children[i] = rule.Null(grammar.SliceName(i), pos, nil)
			continue
		}
		children[i] = rule.Leaf(grammar.SliceName(i), text, pos, choice.NewIndices(99), 0.5, rule.Low)
		pos = children[i].To
	}
	root := rule.New(rule.MainName, 0.5, rule.Low, children...)
	return root
}

func TestRepair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		choices []string
		in      *rule.Rule
		want    []string
		choice  int // -1 when the result stays ambiguous
	}{
		{
			name:    "unique result is kept",
			choices: []string{"Yes, Miss", "No, Miss"},
			in:      result("No", "Miss"),
			want:    []string{"No Miss"},
			choice:  1,
		},
		{
			name:    "trailing null slots are dropped",
			choices: []string{"Yes, Miss", "No, Miss"},
			in:      result("No", ""),
			want:    []string{"No"},
			choice:  1,
		},
		{
			name:    "skipped optional slice",
			choices: []string{"Yes Miss", "Yes please Miss"},
			in:      result("yes", "", "miss"),
			want:    []string{"yes miss"},
			choice:  0,
		},
		{
			name:    "elided words are reconstructed",
			choices: []string{"Close the red door", "Open the window"},
			in:      result("close", "", "red", "door"),
			want:    []string{"close the red door"},
			choice:  0,
		},
		{
			name:    "reconstructions disagreeing on the choice",
			choices: []string{"Close the red door", "Close the blue door"},
			in:      result("close the", "", "door"),
			want:    []string{"close the door"},
			choice:  -1,
		},
		{
			name:    "ambiguous prefix",
			choices: []string{"Red door", "Red window"},
			in:      result("red"),
			want:    []string{"red"},
			choice:  -1,
		},
		{
			name:    "phrase that is a prefix of another",
			choices: []string{"Yes", "Yes Miss"},
			in:      result("Yes"),
			want:    []string{"yes"},
			choice:  0,
		},
		{
			name:    "longer phrase sharing the prefix",
			choices: []string{"Yes", "Yes Miss"},
			in:      result("Yes", "Miss"),
			want:    []string{"yes miss"},
			choice:  1,
		},
		{
			name:    "flat prefix phrase",
			choices: []string{"Please stop now", "Please stop now and wait"},
			in:      &rule.Rule{Name: rule.MainName, Text: "please stop now", Probability: 0.95, Confidence: rule.High},
			want:    []string{"please stop now"},
			choice:  0,
		},
		{
			name:    "flat result is segmented",
			choices: []string{"I'm waiting at the bar.", "I'm waiting in front of the house."},
			in:      &rule.Rule{Name: rule.MainName, Text: "I'm waiting in front", Probability: 0.4, Confidence: rule.Low},
			want:    []string{"i'm waiting in front"},
			choice:  1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := sliced(t, tc.choices...)
			got := s.Repair(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("Repair(%s) returned %d candidates, want %d: %v", tc.in, len(got), len(tc.want), got)
			}
			for i, r := range got {
				if choice.Normalize(r.Text) != choice.Normalize(tc.want[i]) {
					t.Errorf("candidate %d text = %q, want %q", i, r.Text, tc.want[i])
				}
				c, ok := s.Choice(r)
				switch {
				case tc.choice < 0 && ok:
					t.Errorf("candidate %d maps to choice %d, want ambiguous", i, c)
				case tc.choice >= 0 && (!ok || c != tc.choice):
					t.Errorf("candidate %d maps to (%d, %v), want %d", i, c, ok, tc.choice)
				}
				if len(r.Children) > 0 && r.Children[len(r.Children)-1].IsNull() {
					t.Errorf("candidate %d ends in a null rule", i)
				}
			}
		})
	}
}

func TestRepair_Blank(t *testing.T) {
	t.Parallel()

	s := sliced(t, "Yes, Miss", "No, Miss")
	if got := s.Repair(nil); got != nil {
		t.Errorf("Repair(nil) = %v, want nil", got)
	}
	if got := s.Repair(result("", "")); got != nil {
		t.Errorf("Repair(blank) = %v, want nil", got)
	}
	if got := s.Repair(&rule.Rule{Name: rule.MainName, Text: "hello there"}); got != nil {
		t.Errorf("Repair(unknown words) = %v, want nil", got)
	}
}

func TestRepair_ReconstructionsAreValid(t *testing.T) {
	t.Parallel()

	s := sliced(t, "Close the red door", "Open the window")
	for _, r := range s.Repair(result("close", "", "red", "door")) {
		if err := r.Validate(); err != nil {
			t.Errorf("Validate(%s): %v", r, err)
		}
		if r.Probability != 0.5 || r.Confidence != rule.Low {
			t.Errorf("reconstruction changed probability or confidence: %s", r)
		}
	}
}

func TestFollowedByOmittable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		choices []string
		text    string
		want    bool
	}{
		{"phrase ends before optional words", []string{"Yes", "Yes Miss"}, "yes", true},
		{"phrase ends at the last slice", []string{"Yes", "Yes Miss"}, "yes miss", true},
		{"required words follow", []string{"Yes, Miss", "No, Miss"}, "no", false},
		{"ambiguous prefix", []string{"Red door", "Red window"}, "red", false},
		{"multi-word prefix", []string{"Please stop now", "Please stop now and wait"}, "please stop now", true},
		{"unfinished alternative", []string{"Please stop now", "Please stop now and wait"}, "please stop", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := sliced(t, tc.choices...)
			r := s.Parse(tc.text, 0.9, rule.High)
			if got := s.FollowedByOmittable(r); got != tc.want {
				t.Errorf("FollowedByOmittable(%s) = %v, want %v", r, got, tc.want)
			}
		})
	}
}
