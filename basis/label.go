package basis

import (
	"slices"
	"strconv"
	"strings"
)

// Label is a normal-ordered monomial of ladder operators.
// I holds the sites of the creation operators, and J the sites of the annihilation operators.
// Both are sorted in ascending order.
type Label struct {
	I []int
	J []int
}

// NewLabel returns the label of the monomial that creates at i and annihilates at j.
// The arguments are copied and sorted, so that permutations of the same multiset give the same label.
func NewLabel(i, j []int) Label {
	l := Label{I: slices.Clone(i), J: slices.Clone(j)}
	if l.I == nil {
		l.I = []int{}
	}
	if l.J == nil {
		l.J = []int{}
	}
	slices.Sort(l.I)
	slices.Sort(l.J)
	return l
}

// Conj returns the hermitian conjugate, which swaps the creation and annihilation sites.
func (l Label) Conj() Label {
	return Label{I: l.J, J: l.I}
}

func (l Label) Equal(o Label) bool {
	return slices.Equal(l.I, o.I) && slices.Equal(l.J, o.J)
}

// Key returns a string that uniquely identifies the label, suitable as a map key.
func (l Label) Key() string {
	b := make([]byte, 0, 2*(len(l.I)+len(l.J))+1)
	for k, s := range l.I {
		if k > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(s), 10)
	}
	b = append(b, '|')
	for k, s := range l.J {
		if k > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(s), 10)
	}
	return string(b)
}

func (l Label) String() string {
	return "(" + join(l.I) + "|" + join(l.J) + ")"
}

func join(seq []int) string {
	ss := make([]string, 0, len(seq))
	for _, s := range seq {
		ss = append(ss, strconv.Itoa(s))
	}
	return strings.Join(ss, " ")
}

// Compare orders labels lexicographically by I, and then by J.
func Compare(a, b Label) int {
	if c := slices.Compare(a.I, b.I); c != 0 {
		return c
	}
	return slices.Compare(a.J, b.J)
}

// Count returns the number of occurrences of site in seq.
func Count(seq []int, site int) int {
	var n int
	for _, s := range seq {
		if s == site {
			n++
		}
	}
	return n
}

// Replace returns a sorted copy of seq with one occurrence of from replaced by to.
// ok is false if from does not occur in seq.
func Replace(seq []int, from, to int) (replaced []int, ok bool) {
	idx := slices.Index(seq, from)
	if idx < 0 {
		return nil, false
	}
	replaced = slices.Clone(seq)
	replaced[idx] = to
	slices.Sort(replaced)
	return replaced, true
}

// Remove returns a copy of seq with one occurrence of site removed.
// ok is false if site does not occur in seq.
func Remove(seq []int, site int) (removed []int, ok bool) {
	idx := slices.Index(seq, site)
	if idx < 0 {
		return nil, false
	}
	removed = make([]int, 0, len(seq)-1)
	removed = append(removed, seq[:idx]...)
	removed = append(removed, seq[idx+1:]...)
	return removed, true
}
