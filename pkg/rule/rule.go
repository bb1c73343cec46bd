// Package rule implements the rule tree, the structured result a speech
// recognizer reports for an utterance.
//
// The root of a tree (the main rule) spans the whole utterance. Its children
// correspond to positions in the compiled grammar; a child for which the
// recognizer matched no word is a null rule. Every node carries the set of
// grammar indices it is consistent with, a probability in [0, 1] and a
// [Confidence] tier.
//
// Rules are immutable once constructed. Trees are built bottom-up: [Leaf] and
// [Null] create terminal nodes, [New] creates a parent from fully known
// children and derives its text, word span and indices from them.
package rule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/choicerec/pkg/choice"
)

// MainName is the name of the root rule of every recognition result.
const MainName = "Main"

// Rule is a node of a recognition result tree.
type Rule struct {
	// Name identifies the grammar rule this node matched.
	Name string `json:"name"`

	// Text is the recognized text of this node.
	Text string `json:"text"`

	// From and To delimit the half-open word span [From, To) of the node
	// within the utterance.
	From int `json:"from"`
	To   int `json:"to"`

	// Indices holds the grammar indices this node is consistent with. A nil
	// set on a null rule means the node does not constrain its parent.
	Indices choice.Indices `json:"indices"`

	// Probability is the recognizer's probability for this node, in [0, 1].
	Probability float64 `json:"probability"`

	// Confidence is the recognizer's confidence tier for this node.
	Confidence Confidence `json:"confidence"`

	// Children holds the sub-rules in utterance order.
	Children []*Rule `json:"children,omitempty"`
}

// Leaf returns a terminal rule for text starting at word position from.
func Leaf(name, text string, from int, indices choice.Indices, probability float64, confidence Confidence) *Rule {
	return &Rule{
		Name:        name,
		Text:        strings.TrimSpace(text),
		From:        from,
		To:          from + len(choice.Words(text)),
		Indices:     indices,
		Probability: probability,
		Confidence:  confidence,
	}
}

// Null returns a rule that matched no words at word position at. indices is
// usually nil; a non-nil set restricts the parent to the given indices.
func Null(name string, at int, indices choice.Indices) *Rule {
	return &Rule{Name: name, From: at, To: at, Indices: indices}
}

// New returns a parent rule over children. The parent's text is the
// concatenation of its non-null children, its span runs from the first
// child's start to the last non-null child's end, and its indices are the
// intersection of all children that carry indices.
func New(name string, probability float64, confidence Confidence, children ...*Rule) *Rule {
	r := &Rule{
		Name:        name,
		Probability: probability,
		Confidence:  confidence,
		Children:    children,
	}

	var texts []string
	var sets []choice.Indices
	if len(children) > 0 {
		r.From = children[0].From
		r.To = r.From
	}
	for _, c := range children {
		if c.Indices != nil {
			sets = append(sets, c.Indices)
		}
		if c.IsNull() {
			continue
		}
		texts = append(texts, c.Text)
		r.To = c.To
	}
	r.Text = strings.Join(texts, " ")
	r.Indices = choice.Common(sets...)
	return r
}

// IsNull reports whether the rule matched no words.
func (r *Rule) IsNull() bool {
	return r.From == r.To && strings.TrimSpace(r.Text) == ""
}

// IsBlank reports whether the rule carries no recognized text.
func (r *Rule) IsBlank() bool {
	return r == nil || strings.TrimSpace(r.Text) == ""
}

// WithoutTrailingNulls returns the rule with null children at the end of the
// child list removed. The receiver is returned unchanged when there are none.
func (r *Rule) WithoutTrailingNulls() *Rule {
	n := len(r.Children)
	for n > 0 && r.Children[n-1].IsNull() {
		n--
	}
	if n == len(r.Children) {
		return r
	}
	return New(r.Name, r.Probability, r.Confidence, r.Children[:n]...)
}

// Elevated returns a copy of the root rule raised to confidence c. The
// probability is raised to the tier's threshold when it is lower.
func (r *Rule) Elevated(c Confidence) *Rule {
	cp := *r
	cp.Confidence = c
	cp.Probability = max(r.Probability, c.Probability())
	return &cp
}

// Validate checks the structural invariants of the tree: sibling spans are
// contiguous and non-overlapping, every non-null node spans as many words as
// its text holds, and the root's indices are not empty.
func (r *Rule) Validate() error {
	if r.Indices.IsEmpty() {
		return fmt.Errorf("rule: %s %q has no indices", r.Name, r.Text)
	}
	return r.validateSpans()
}

// Valid reports whether [Rule.Validate] succeeds.
func (r *Rule) Valid() bool { return r.Validate() == nil }

func (r *Rule) validateSpans() error {
	var errs []error
	if r.To < r.From {
		errs = append(errs, fmt.Errorf("rule: %s span [%d,%d) is inverted", r.Name, r.From, r.To))
	}
	if len(r.Children) == 0 {
		if n := len(choice.Words(r.Text)); n != r.To-r.From {
			errs = append(errs, fmt.Errorf("rule: %s %q spans %d words but holds %d", r.Name, r.Text, r.To-r.From, n))
		}
		return errors.Join(errs...)
	}
	pos := r.From
	for i, c := range r.Children {
		if c.From != pos {
			errs = append(errs, fmt.Errorf("rule: %s child %d starts at %d, want %d", r.Name, i, c.From, pos))
		}
		if err := c.validateSpans(); err != nil {
			errs = append(errs, err)
		}
		pos = c.To
	}
	if pos != r.To {
		errs = append(errs, fmt.Errorf("rule: %s ends at %d but children end at %d", r.Name, r.To, pos))
	}
	return errors.Join(errs...)
}

// String returns a compact single-line description, mainly for logs.
func (r *Rule) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %q [%d,%d) %s p=%.2f %s", r.Name, r.Text, r.From, r.To, r.Indices, r.Probability, r.Confidence)
}
