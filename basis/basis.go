// Package basis enumerates the truncated operator basis of a bosonic system.
//
// A basis element is a normal-ordered monomial a†_{i1}...a†_{ip} a_{j1}...a_{jq}
// with p, q no larger than the truncation order.
// The basis is independent of the number of particles, which only enters through the initial condition.
package basis

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/combin"
)

var (
	ErrInvalidSize    = errors.New("invalid system size")
	ErrUnknownLabel   = errors.New("label not in basis")
	ErrDuplicateLabel = errors.New("duplicate label")
)

// Entry is a single coefficient of a sparse initial state.
type Entry struct {
	Label Label
	Value complex128
}

// Basis is the ordered set of labels with at most KMax creation and at most KMax annihilation operators.
// A Basis is immutable once constructed.
type Basis struct {
	// L is the number of modes.
	L int
	// N is the number of particles.
	N int
	// KMax is the truncation order.
	KMax int

	labels []Label
	index  map[string]int
}

// New returns the basis of a system with l modes, n particles, and truncation order kMax.
func New(l, n, kMax int) (*Basis, error) {
	if l < 1 || n < 0 || kMax < 0 {
		return nil, errors.Wrap(ErrInvalidSize, fmt.Sprintf("L=%d N=%d kMax=%d", l, n, kMax))
	}

	multisets := make([][][]int, kMax+1)
	for p := range multisets {
		multisets[p] = Multisets(l, p)
	}

	b := &Basis{L: l, N: n, KMax: kMax, index: make(map[string]int)}
	for p := 0; p <= kMax; p++ {
		for q := 0; q <= kMax; q++ {
			for _, i := range multisets[p] {
				for _, j := range multisets[q] {
					b.labels = append(b.labels, Label{I: i, J: j})
				}
			}
		}
	}
	slices.SortFunc(b.labels, Compare)
	b.labels = slices.CompactFunc(b.labels, func(x, y Label) bool { return x.Equal(y) })

	for i, lb := range b.labels {
		b.index[lb.Key()] = i
	}
	return b, nil
}

// Multisets returns the ascending sequences of length p with entries in [0, l), in lexicographic order.
func Multisets(l, p int) [][]int {
	// A multiset m of size p over l symbols is in bijection with
	// the combination c of size p over l+p-1 symbols with c[k] = m[k] + k.
	combs := combin.Combinations(l+p-1, p)
	for _, c := range combs {
		for k := range c {
			c[k] -= k
		}
	}
	return combs
}

// Size returns the number of labels in the basis of l modes and truncation order kMax.
func Size(l, kMax int) int {
	var sum int
	for p := 0; p <= kMax; p++ {
		sum += combin.Binomial(l+p-1, p)
	}
	return sum * sum
}

func (b *Basis) Len() int { return len(b.labels) }

// Label returns the i-th label.
// The returned label must not be modified.
func (b *Basis) Label(i int) Label { return b.labels[i] }

// Labels returns all labels in canonical order.
func (b *Basis) Labels() []Label { return slices.Clone(b.labels) }

// Index returns the position of l in the basis.
func (b *Basis) Index(l Label) (int, bool) {
	i, ok := b.index[l.Key()]
	return i, ok
}

// Encode converts a sparse initial state into a full coefficient vector.
func (b *Basis) Encode(entries []Entry) ([]complex128, error) {
	c := make([]complex128, b.Len())
	seen := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		lb := NewLabel(e.Label.I, e.Label.J)
		i, ok := b.Index(lb)
		if !ok {
			return nil, errors.Wrap(ErrUnknownLabel, lb.String())
		}
		if _, ok := seen[i]; ok {
			return nil, errors.Wrap(ErrDuplicateLabel, lb.String())
		}
		seen[i] = struct{}{}
		c[i] = e.Value
	}
	return c, nil
}
