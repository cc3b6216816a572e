package ode

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Solution is the dense output of an integration.
// It can be evaluated at any time between the initial time and the last accepted step.
type Solution struct {
	// T are the times of the accepted steps, starting with the initial time.
	T []float64
	// Success is false if the integration stopped before reaching the end of the interval.
	Success bool
	// Message describes why the integration stopped.
	Message string
	// NFev is the number of derivative evaluations.
	NFev int
	// NSteps and NRejected are the numbers of accepted and rejected steps.
	NSteps    int
	NRejected int

	y0        []complex128
	direction float64
	segments  []segment
}

// segment interpolates the solution between two consecutive accepted steps.
type segment struct {
	tOld float64
	h    float64
	yOld []complex128
	// f are the coefficients of the interpolating polynomial.
	f [interpolatorPow][]complex128
}

func (s *segment) eval(t float64, dst []complex128) {
	x := (t - s.tOld) / s.h
	clear(dst)
	for i := range interpolatorPow {
		f := s.f[interpolatorPow-1-i]
		w := 1 - x
		if i%2 == 0 {
			w = x
		}
		for k := range dst {
			dst[k] = (dst[k] + f[k]) * complex(w, 0)
		}
	}
	for k := range dst {
		dst[k] += s.yOld[k]
	}
}

// Interval returns the times covered by the solution.
func (sol *Solution) Interval() (float64, float64) {
	return sol.T[0], sol.T[len(sol.T)-1]
}

// At writes the solution at time t into dst and returns it.
// If dst is nil, a new slice is allocated.
func (sol *Solution) At(t float64, dst []complex128) ([]complex128, error) {
	if dst == nil {
		dst = make([]complex128, len(sol.y0))
	}
	if len(dst) != len(sol.y0) {
		return nil, errors.Errorf("%d, expected %d", len(dst), len(sol.y0))
	}

	t0, t1 := sol.Interval()
	if sol.direction*(t-t0) < 0 || sol.direction*(t-t1) > 0 {
		return nil, errors.Wrap(ErrOutOfRange, fmt.Sprintf("%v not in [%v, %v]", t, t0, t1))
	}
	if len(sol.segments) == 0 {
		copy(dst, sol.y0)
		return dst, nil
	}

	// Find the first step ending at or after t.
	i := sort.Search(len(sol.segments), func(i int) bool {
		return sol.direction*(sol.T[i+1]-t) >= 0
	})
	i = min(i, len(sol.segments)-1)
	sol.segments[i].eval(t, dst)
	return dst, nil
}

// Last returns the state at the last accepted step.
func (sol *Solution) Last() []complex128 {
	_, t1 := sol.Interval()
	y, _ := sol.At(t1, nil)
	return y
}
