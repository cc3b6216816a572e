// Package hamiltonian computes the generator of Heisenberg evolution on a truncated operator basis.
//
// The coefficients c of an operator expanded in the basis evolve as dc/dt = i H c,
// where H[i, j] is the component of [Hamiltonian, basis[j]] along basis[i].
// The Hamiltonian is the Bose-Hubbard model with nearest neighbour hopping, see Params.
package hamiltonian

import (
	"fmt"

	"github.com/pkg/errors"
	gmat "gonum.org/v1/gonum/mat"

	"github.com/fumin/boson/basis"
	"github.com/fumin/boson/mat"
)

// Model holds the commutator matrix of every Hamiltonian term over a basis.
// The matrices depend only on the basis, so that the generator at any time is a linear combination of them.
type Model struct {
	basis *basis.Basis

	// forward[s] is a†_s a_{s+1}, and backward[s] is a†_{s+1} a_s.
	forward     []*mat.COO
	backward    []*mat.COO
	number      []*mat.COO
	interaction []*mat.COO
}

// NewModel computes the commutator matrices of all terms over b.
func NewModel(b *basis.Basis) *Model {
	m := &Model{basis: b}
	for s := 0; s < b.L-1; s++ {
		m.forward = append(m.forward, termMatrix(b, Hopping{Create: s, Annihilate: s + 1}))
		m.backward = append(m.backward, termMatrix(b, Hopping{Create: s + 1, Annihilate: s}))
	}
	for s := 0; s < b.L; s++ {
		m.number = append(m.number, termMatrix(b, Number{Site: s}))
		m.interaction = append(m.interaction, termMatrix(b, Interaction{Site: s}))
	}
	return m
}

func (m *Model) Basis() *basis.Basis { return m.basis }

// Term returns the commutator matrix of term.
func (m *Model) Term(term Term) *mat.COO {
	return termMatrix(m.basis, term)
}

func termMatrix(b *basis.Basis, term Term) *mat.COO {
	n := b.Len()
	t := mat.COOZeros(n, n)
	for j := 0; j < n; j++ {
		for _, c := range Column(b.Label(j), term) {
			i, ok := b.Index(c.Label)
			if !ok {
				panic(fmt.Sprintf("%s of %s not in basis", c.Label, term))
			}
			t.Accumulate(i, j, c.Value)
		}
	}
	return t
}

// Generator writes the generator for parameters p into dst, and returns it.
// If dst is nil, a new matrix is allocated.
func (m *Model) Generator(dst *gmat.CDense, p Params) (*gmat.CDense, error) {
	if err := p.Validate(m.basis.L); err != nil {
		return nil, errors.Wrap(err, "")
	}
	n := m.basis.Len()
	switch {
	case dst == nil:
		dst = gmat.NewCDense(n, n, nil)
	default:
		if r, c := dst.Dims(); r != n || c != n {
			return nil, errors.Errorf("%d %d, expected %d", r, c, n)
		}
		dst.Zero()
	}

	m.do(p, func(c float64, t *mat.COO) { t.AddTo(dst, complex(c, 0)) })
	return dst, nil
}

// Sparse returns the generator for parameters p in coordinate format.
func (m *Model) Sparse(p Params) (*mat.COO, error) {
	if err := p.Validate(m.basis.L); err != nil {
		return nil, errors.Wrap(err, "")
	}
	n := m.basis.Len()
	h := mat.COOZeros(n, n)
	m.do(p, func(c float64, t *mat.COO) { h.Add(complex(c, 0), t) })
	return h, nil
}

func (m *Model) do(p Params, fn func(float64, *mat.COO)) {
	for s, j := range p.Hopping {
		if j == 0 {
			continue
		}
		fn(j, m.forward[s])
		fn(j, m.backward[s])
	}
	for s, d := range p.Detuning {
		if d == 0 {
			continue
		}
		fn(d, m.number[s])
	}
	for s, u := range p.Interaction {
		if u == 0 {
			continue
		}
		fn(u, m.interaction[s])
	}
}

// Assemble returns the generator of b for parameters p.
func Assemble(b *basis.Basis, p Params) (*gmat.CDense, error) {
	h, err := NewModel(b).Generator(nil, p)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}
