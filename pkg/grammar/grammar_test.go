package grammar_test

import (
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/MrWong99/choicerec/pkg/choice"
	"github.com/MrWong99/choicerec/pkg/grammar"
	"github.com/MrWong99/choicerec/pkg/rule"
)

func sliced(t *testing.T, texts ...string) *grammar.Sliced {
	t.Helper()
	c, err := choice.New(language.English, choice.Confirm, choice.FromTexts(texts...)...)
	if err != nil {
		t.Fatalf("choice.New: %v", err)
	}
	s, err := grammar.New(c)
	if err != nil {
		t.Fatalf("grammar.New: %v", err)
	}
	return s
}

// alternatives renders the slices as "a{0}|b{1} / c{0,1}".
func alternatives(s *grammar.Sliced) string {
	var out []string
	for _, sl := range s.Slices() {
		var alts []string
		for _, a := range sl.Alternatives {
			alts = append(alts, a.Phrase+a.Indices.String())
		}
		out = append(out, strings.Join(alts, "|"))
	}
	return strings.Join(out, " / ")
}

func TestNew_Slices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{
			name:  "common suffix",
			texts: []string{"Yes, Miss", "No, Miss"},
			want:  "yes{0}|no{1} / miss{0,1}",
		},
		{
			name:  "common prefix and merged middle",
			texts: []string{"I'm waiting at the bar.", "I'm waiting in front of the house."},
			want:  "i'm waiting{0,1} / at the bar{0}|in front of{1} / the house{1}",
		},
		{
			name:  "optional middle",
			texts: []string{"Yes Miss", "Yes please Miss"},
			want:  "yes{0,1} / please{1} / miss{0,1}",
		},
		{
			name:  "single phrase",
			texts: []string{"Open the door"},
			want:  "open the door{0}",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := sliced(t, tc.texts...)
			if got := alternatives(s); got != tc.want {
				t.Errorf("slices = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := grammar.New(nil); err == nil {
		t.Error("New(nil): expected error")
	}
}

func TestMapper(t *testing.T) {
	t.Parallel()

	c := choice.MustNew(language.English, choice.Confirm,
		choice.Choice{Text: "yes", Phrases: []string{"yes", "yeah"}},
		choice.Choice{Text: "no", Phrases: []string{"no", "nope"}},
	)
	s := grammar.MustNew(c)
	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}

	m := s.Mapper()
	if got := m.Choices(choice.NewIndices(0, 1)); !got.Equal(choice.NewIndices(0)) {
		t.Errorf("Choices({0,1}) = %v, want {0}", got)
	}
	if got, ok := m.Choice(choice.NewIndices(2, 3)); !ok || got != 1 {
		t.Errorf("Choice({2,3}) = (%d, %v), want (1, true)", got, ok)
	}
	if _, ok := m.Choice(choice.NewIndices(1, 2)); ok {
		t.Error("Choice({1,2}): expected ambiguous result")
	}
	if got := m.Choices(choice.NewIndices(7)); !got.IsEmpty() {
		t.Errorf("Choices({7}) = %v, want empty", got)
	}
}

func TestSliceName(t *testing.T) {
	t.Parallel()

	for i := range 12 {
		got, ok := grammar.SliceIndex(grammar.SliceName(i))
		if !ok || got != i {
			t.Errorf("SliceIndex(SliceName(%d)) = (%d, %v)", i, got, ok)
		}
	}
	for _, name := range []string{"Main", "slice_", "slice_x", "slice_-1"} {
		if _, ok := grammar.SliceIndex(name); ok {
			t.Errorf("SliceIndex(%q): expected failure", name)
		}
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	s := sliced(t, "I'm waiting at the bar.", "I'm waiting in front of the house.")

	tests := []struct {
		partial choice.PhraseString
		want    []string
	}{
		{choice.PhraseString{Phrase: "I'm waiting"}, []string{"i'm waiting at the bar", "i'm waiting in front of the house"}},
		{choice.PhraseString{Phrase: "waiting at"}, []string{"i'm waiting at the bar"}},
		{choice.PhraseString{Phrase: "the house"}, []string{"i'm waiting in front of the house"}},
		{choice.PhraseString{Phrase: "I'm waiting", Indices: choice.NewIndices(1)}, []string{"i'm waiting in front of the house"}},
		{choice.PhraseString{Phrase: "at the house"}, nil},
	}
	for _, tc := range tests {
		var got []string
		for _, p := range s.Complete(tc.partial) {
			got = append(got, p.Phrase)
		}
		if strings.Join(got, ";") != strings.Join(tc.want, ";") {
			t.Errorf("Complete(%q %v) = %q, want %q", tc.partial.Phrase, tc.partial.Indices, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	s := sliced(t, "I'm waiting at the bar.", "I'm waiting in front of the house.")

	tests := []struct {
		text    string
		want    string
		indices choice.Indices
	}{
		{"I'm waiting", "I'm waiting", choice.NewIndices(0, 1)},
		{"I'm waiting at the", "I'm waiting at the", choice.NewIndices(0)},
		{"uh I'm waiting in front of the house", "I'm waiting in front of the house", choice.NewIndices(1)},
	}
	for _, tc := range tests {
		r := s.Parse(tc.text, 0.6, rule.Low)
		if !strings.EqualFold(r.Text, tc.want) {
			t.Errorf("Parse(%q).Text = %q, want %q", tc.text, r.Text, tc.want)
		}
		if !r.Indices.Equal(tc.indices) {
			t.Errorf("Parse(%q).Indices = %v, want %v", tc.text, r.Indices, tc.indices)
		}
		if err := r.Validate(); err != nil {
			t.Errorf("Parse(%q).Validate: %v", tc.text, err)
		}
	}
}

func TestCompile(t *testing.T) {
	t.Parallel()

	s := sliced(t, "Yes please Miss", "No thanks Miss")
	a, err := s.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	srgs := string(a.SRGS)
	for _, want := range []string{
		`root="Main"`,
		`xml:lang="en"`,
		`<rule id="Main" scope="public">`,
		`<rule id="slice_0">`,
		`yes please`,
		`<tag>0</tag>`,
		`<tag>0,1</tag>`,
		`<ruleref uri="#slice_1"></ruleref>`,
	} {
		if !strings.Contains(srgs, want) {
			t.Errorf("SRGS does not contain %s:\n%s", want, srgs)
		}
	}
	if strings.Contains(srgs, `repeat="0-1"`) {
		t.Errorf("SRGS marks a mandatory slice optional:\n%s", srgs)
	}

	boosts := make(map[string]float64)
	for _, k := range a.Keywords {
		boosts[k.Keyword] = k.Boost
	}
	if boosts["please"] != grammar.DistinctBoost || boosts["miss"] != grammar.SharedBoost {
		t.Errorf("Keywords = %+v", a.Keywords)
	}
}

func TestCompile_OptionalSlice(t *testing.T) {
	t.Parallel()

	s := sliced(t, "Yes Miss", "Yes please Miss")
	a, err := s.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if n := strings.Count(string(a.SRGS), `repeat="0-1"`); n != 1 {
		t.Errorf("SRGS has %d optional items, want 1:\n%s", n, a.SRGS)
	}
}
