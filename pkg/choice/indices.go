package choice

import (
	"slices"
	"strconv"
	"strings"
)

// Indices is a sorted, duplicate-free set of indices. Depending on context the
// values are application choice indices or grammar phrase indices.
//
// The zero value is an empty set. Methods never modify the receiver.
type Indices []int

// NoIndices is the empty set. It marks a result that cannot be narrowed down to
// a single choice, either because it is consistent with several choices or with
// none at all.
var NoIndices = Indices{}

// NewIndices returns the set containing values.
func NewIndices(values ...int) Indices {
	out := slices.Clone(values)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		return NoIndices
	}
	return Indices(out)
}

// Range returns the set {0, 1, …, n-1}.
func Range(n int) Indices {
	out := make(Indices, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Contains reports whether v is in the set.
func (ix Indices) Contains(v int) bool {
	_, ok := slices.BinarySearch(ix, v)
	return ok
}

// IsEmpty reports whether the set has no elements.
func (ix Indices) IsEmpty() bool { return len(ix) == 0 }

// Single returns the only element of the set. ok is false when the set is
// empty or holds more than one element.
func (ix Indices) Single() (v int, ok bool) {
	if len(ix) != 1 {
		return 0, false
	}
	return ix[0], true
}

// Intersect returns the elements present in both sets.
func (ix Indices) Intersect(other Indices) Indices {
	out := make(Indices, 0, min(len(ix), len(other)))
	i, j := 0, 0
	for i < len(ix) && j < len(other) {
		switch {
		case ix[i] == other[j]:
			out = append(out, ix[i])
			i++
			j++
		case ix[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// Union returns the elements present in either set.
func (ix Indices) Union(other Indices) Indices {
	merged := make([]int, 0, len(ix)+len(other))
	merged = append(merged, ix...)
	merged = append(merged, other...)
	return NewIndices(merged...)
}

// Equal reports whether both sets hold the same elements. A nil set equals
// [NoIndices].
func (ix Indices) Equal(other Indices) bool {
	return slices.Equal(ix, other)
}

// String formats the set as "{1,2,3}".
func (ix Indices) String() string {
	parts := make([]string, len(ix))
	for i, v := range ix {
		parts[i] = strconv.Itoa(v)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Common returns the intersection of all sets. With no sets it returns
// [NoIndices].
func Common(sets ...Indices) Indices {
	if len(sets) == 0 {
		return NoIndices
	}
	out := sets[0]
	for _, s := range sets[1:] {
		out = out.Intersect(s)
		if out.IsEmpty() {
			return NoIndices
		}
	}
	return NewIndices(out...)
}

// Distinct returns the single value present in every set. ok is false when
// the sets share no value or share more than one.
func Distinct(sets ...Indices) (v int, ok bool) {
	return Common(sets...).Single()
}
