package grammar

import (
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/MrWong99/choicerec/pkg/rule"
	"github.com/MrWong99/choicerec/pkg/types"
)

// Keyword boost intensities for [Artifact.Keywords].
const (
	// SharedBoost applies to words every phrase of a slice shares.
	SharedBoost = 1.0

	// DistinctBoost applies to words that tell choices apart.
	DistinctBoost = 2.0
)

const srgsNamespace = "http://www.w3.org/2001/06/grammar"

// Artifact is the compiled form of a [Sliced] grammar, ready to be handed to
// a recognizer.
type Artifact struct {
	// Locale is the language of the candidate set.
	Locale language.Tag

	// SRGS is an SRGS 1.0 XML grammar with one rule per slice. The main rule
	// references the slices in order; slices not used by every phrase are
	// optional. Every item carries the grammar indices of its phrases as a
	// comma separated tag.
	SRGS []byte

	// Keywords lists the distinct words of the grammar as vocabulary hints
	// for recognizers that do not accept grammars.
	Keywords []types.KeywordBoost
}

type srgsGrammar struct {
	XMLName   xml.Name   `xml:"grammar"`
	Namespace string     `xml:"xmlns,attr"`
	Version   string     `xml:"version,attr"`
	Lang      string     `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Root      string     `xml:"root,attr"`
	TagFormat string     `xml:"tag-format,attr"`
	Rules     []srgsRule `xml:"rule"`
}

type srgsRule struct {
	ID    string     `xml:"id,attr"`
	Scope string     `xml:"scope,attr,omitempty"`
	Items []srgsItem `xml:"item,omitempty"`
	OneOf *srgsOneOf `xml:"one-of,omitempty"`
}

type srgsOneOf struct {
	Items []srgsItem `xml:"item"`
}

type srgsItem struct {
	Repeat  string   `xml:"repeat,attr,omitempty"`
	Text    string   `xml:",chardata"`
	RuleRef *srgsRef `xml:"ruleref,omitempty"`
	Tag     string   `xml:"tag,omitempty"`
}

type srgsRef struct {
	URI string `xml:"uri,attr"`
}

// Compile renders the grammar as an [Artifact].
func (s *Sliced) Compile() (*Artifact, error) {
	locale := language.Und
	if s.choices != nil {
		locale = s.choices.Locale
	}

	all := len(s.phrases)
	main := srgsRule{ID: rule.MainName, Scope: "public"}
	rules := make([]srgsRule, 0, len(s.slices)+1)
	for i, sl := range s.slices {
		item := srgsItem{RuleRef: &srgsRef{URI: "#" + SliceName(i)}}
		if len(sl.Indices()) < all {
			item.Repeat = "0-1"
		}
		main.Items = append(main.Items, item)

		r := srgsRule{ID: SliceName(i), OneOf: &srgsOneOf{}}
		for _, a := range sl.Alternatives {
			r.OneOf.Items = append(r.OneOf.Items, srgsItem{Text: a.Phrase, Tag: tagOf(a.Indices)})
		}
		rules = append(rules, r)
	}

	doc := srgsGrammar{
		Namespace: srgsNamespace,
		Version:   "1.0",
		Lang:      locale.String(),
		Root:      rule.MainName,
		TagFormat: "semantics/1.0-literals",
		Rules:     append([]srgsRule{main}, rules...),
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("grammar: render srgs: %w", err)
	}

	return &Artifact{
		Locale:   locale,
		SRGS:     append([]byte(xml.Header), out...),
		Keywords: s.keywords(),
	}, nil
}

// keywords returns every distinct word of the grammar once, boosted more
// strongly when it occurs in a slice with several alternatives.
func (s *Sliced) keywords() []types.KeywordBoost {
	var out []types.KeywordBoost
	pos := make(map[string]int)
	for _, sl := range s.slices {
		boost := SharedBoost
		if len(sl.Alternatives) > 1 {
			boost = DistinctBoost
		}
		for _, a := range sl.Alternatives {
			for _, w := range a.Words() {
				if i, ok := pos[w]; ok {
					out[i].Boost = max(out[i].Boost, boost)
					continue
				}
				pos[w] = len(out)
				out = append(out, types.KeywordBoost{Keyword: w, Boost: boost})
			}
		}
	}
	return out
}

func tagOf(indices []int) string {
	parts := make([]string, len(indices))
	for i, p := range indices {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ",")
}
