// Package boson simulates the Heisenberg evolution of bosons hopping on a chain of modes.
//
// Operators are expanded in the truncated basis of normal-ordered monomials,
// whose coefficients evolve linearly under the Bose-Hubbard Hamiltonian.
// Mode occupations are read off the evolved coefficients.
package boson

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	gmat "gonum.org/v1/gonum/mat"

	"github.com/fumin/boson/basis"
	"github.com/fumin/boson/config"
	"github.com/fumin/boson/hamiltonian"
	"github.com/fumin/boson/observable"
	"github.com/fumin/boson/ode"
)

var (
	ErrInvalidSize = basis.ErrInvalidSize
)

// System is a system of N bosons on L modes, truncated at order KMax.
type System struct {
	basis     *basis.Basis
	model     *hamiltonian.Model
	projector *observable.Projector
}

// New returns the system of n particles on l modes, with operators truncated at order kMax.
func New(l, n, kMax int) (*System, error) {
	b, err := basis.New(l, n, kMax)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	s := &System{basis: b, model: hamiltonian.NewModel(b), projector: observable.NewProjector(b)}
	return s, nil
}

func (s *System) Basis() *basis.Basis { return s.basis }

// Assemble returns the generator for parameters p.
func (s *System) Assemble(p hamiltonian.Params) (*gmat.CDense, error) {
	h, err := s.model.Generator(nil, p)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}

// Integrate evolves the operator init over span under the Hamiltonian given by src.
// The returned solution can be evaluated at any time in span.
// If the integration stops early, the partial solution is returned together with the error.
func (s *System) Integrate(ctx context.Context, span [2]float64, src hamiltonian.Source, init []basis.Entry, options ...ode.Options) (*ode.Solution, error) {
	c0, err := s.basis.Encode(init)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	n := s.basis.Len()
	h := gmat.NewCDense(n, n, nil)
	// Constant parameters need only one generator.
	p, constant := src.(hamiltonian.Params)
	if constant {
		if _, err := s.model.Generator(h, p); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	f := func(t float64, c, dcdt []complex128) error {
		if !constant {
			p, err := src.At(t)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("t=%v", t))
			}
			if _, err := s.model.Generator(h, p); err != nil {
				return errors.Wrap(err, fmt.Sprintf("t=%v", t))
			}
		}
		x := cblas128.Vector{N: n, Inc: 1, Data: c}
		y := cblas128.Vector{N: n, Inc: 1, Data: dcdt}
		cblas128.Gemv(blas.NoTrans, 1i, h.RawCMatrix(), x, 0, y)
		return nil
	}

	sol, err := ode.Solve(ctx, f, span, c0, options...)
	if err != nil {
		return sol, errors.Wrap(err, "")
	}
	return sol, nil
}

// Project returns the mode occupations of sol at times, indexed by mode and time.
func (s *System) Project(sol observable.Evaluator, times []float64) (*gmat.Dense, error) {
	occ, err := s.projector.Table(sol, times)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return occ, nil
}

// Populations returns the linear mode populations of sol at times, indexed by mode and time.
func (s *System) Populations(sol observable.Evaluator, times []float64) (*gmat.Dense, error) {
	pop, err := s.projector.PopulationTable(sol, times)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return pop, nil
}

// ExportGenerator writes the sparse generator at time t into dir, in the format of mat.WriteCOO.
func (s *System) ExportGenerator(dir string, t float64, src hamiltonian.Source) error {
	p, err := src.At(t)
	if err != nil {
		return errors.Wrap(err, "")
	}
	h, err := s.model.Sparse(p)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "")
	}
	if err := h.WriteCOO(dir); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Result are the observables of a run.
type Result struct {
	Times []float64
	// Occupations and Populations are indexed by mode and time.
	Occupations *gmat.Dense
	Populations *gmat.Dense
	// Sz and Sz2 are the first and second moments of the occupations over the mode index.
	Sz  []float64
	Sz2 []float64
	// Totals are the occupations summed over modes.
	Totals []float64

	Solution *ode.Solution
}

// Run simulates the system described by cfg, and samples its observables at cfg.Times.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	s, err := New(cfg.Modes, cfg.Particles, cfg.Truncation)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	log.Debug("system", "name", cfg.Name, "L", cfg.Modes, "N", cfg.Particles, "kMax", cfg.Truncation, "basis", s.basis.Len())

	sol, err := s.Integrate(ctx, cfg.Span(), cfg.Schedule(), cfg.InitialState(), cfg.Options())
	if err != nil {
		return nil, errors.Wrap(err, cfg.String())
	}

	res := &Result{Times: cfg.Times(), Solution: sol}
	res.Occupations, err = s.Project(sol, res.Times)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	res.Populations, err = s.Populations(sol, res.Times)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	res.Sz, res.Sz2 = observable.Moments(res.Occupations)
	res.Totals = observable.Totals(res.Occupations)

	log.Info("run", "name", cfg.Name, "basis", s.basis.Len(), "steps", sol.NSteps, "rejected", sol.NRejected, "nfev", sol.NFev)
	return res, nil
}
