// Package observable extracts mode occupations from coefficient vectors of the truncated operator basis.
package observable

import (
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/boson/basis"
)

// Evaluator is a solution that can be evaluated at arbitrary times, such as *ode.Solution.
type Evaluator interface {
	At(t float64, dst []complex128) ([]complex128, error)
}

// Projector maps coefficient vectors to occupations.
type Projector struct {
	basis *basis.Basis

	// occupation[s] are the basis indices that contribute to the occupation of site s.
	occupation [][]int
	// diagonal are the indices of labels with equal creation and annihilation sites.
	diagonal []int
}

// NewProjector returns the projector of basis b.
func NewProjector(b *basis.Basis) *Projector {
	p := &Projector{basis: b, occupation: make([][]int, b.L)}
	for i, lb := range b.Labels() {
		if len(lb.I) != len(lb.J) {
			continue
		}
		if len(lb.I) > 0 && slices.Equal(lb.I, lb.J) {
			p.diagonal = append(p.diagonal, i)
		}
		for s := range p.occupation {
			if isNumberMonomial(lb, s) {
				p.occupation[s] = append(p.occupation[s], i)
			}
		}
	}
	return p
}

// isNumberMonomial reports whether lb becomes diagonal after removing one a†_s and one a_s.
func isNumberMonomial(lb basis.Label, s int) bool {
	i, ok := basis.Remove(lb.I, s)
	if !ok {
		return false
	}
	j, ok := basis.Remove(lb.J, s)
	if !ok {
		return false
	}
	return slices.Equal(i, j)
}

// Occupations writes the occupation of each site for coefficients c into dst.
// Every label that is a number monomial at a site contributes |c|^2 to that site.
// If dst is nil, a new slice is allocated.
func (p *Projector) Occupations(c []complex128, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, p.basis.L)
	}
	for s, indices := range p.occupation {
		var n float64
		for _, i := range indices {
			n += real(c[i])*real(c[i]) + imag(c[i])*imag(c[i])
		}
		dst[s] = n
	}
	return dst
}

// Populations writes the linear population Σ_I count_s(I) Re c_(I, I) of each site into dst.
// Unlike Occupations, it is linear in c, so its total is conserved by the hopping dynamics.
// If dst is nil, a new slice is allocated.
func (p *Projector) Populations(c []complex128, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, p.basis.L)
	}
	clear(dst)
	for _, i := range p.diagonal {
		v := real(c[i])
		for _, s := range p.basis.Label(i).I {
			dst[s] += v
		}
	}
	return dst
}

// Table returns the occupations of sol at times, indexed by site and time.
func (p *Projector) Table(sol Evaluator, times []float64) (*mat.Dense, error) {
	tbl, err := p.table(sol, times, p.Occupations)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return tbl, nil
}

// PopulationTable returns the populations of sol at times, indexed by site and time.
func (p *Projector) PopulationTable(sol Evaluator, times []float64) (*mat.Dense, error) {
	tbl, err := p.table(sol, times, p.Populations)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return tbl, nil
}

func (p *Projector) table(sol Evaluator, times []float64, project func([]complex128, []float64) []float64) (*mat.Dense, error) {
	if len(times) == 0 {
		return nil, errors.Errorf("no times")
	}
	tbl := mat.NewDense(p.basis.L, len(times), nil)
	c := make([]complex128, p.basis.Len())
	n := make([]float64, p.basis.L)
	for j, t := range times {
		if _, err := sol.At(t, c); err != nil {
			return nil, errors.Wrap(err, "")
		}
		tbl.SetCol(j, project(c, n))
	}
	return tbl, nil
}

// Moments returns Sz = Σ_s s n_s and Sz2 = Σ_s s^2 n_s for each time column of occ.
func Moments(occ *mat.Dense) (sz, sz2 []float64) {
	l, numT := occ.Dims()
	w1, w2 := make([]float64, l), make([]float64, l)
	for s := range w1 {
		w1[s] = float64(s)
		w2[s] = float64(s * s)
	}

	sz, sz2 = make([]float64, numT), make([]float64, numT)
	col := make([]float64, l)
	for j := 0; j < numT; j++ {
		mat.Col(col, j, occ)
		sz[j] = floats.Dot(w1, col)
		sz2[j] = floats.Dot(w2, col)
	}
	return sz, sz2
}

// Totals returns the sum over sites for each time column of occ.
func Totals(occ *mat.Dense) []float64 {
	l, numT := occ.Dims()
	totals := make([]float64, numT)
	col := make([]float64, l)
	for j := range totals {
		mat.Col(col, j, occ)
		totals[j] = floats.Sum(col)
	}
	return totals
}

// Times returns n evenly spaced times from t0 to t1 inclusive.
func Times(t0, t1 float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{t0}
	}
	return floats.Span(make([]float64, n), t0, t1)
}
