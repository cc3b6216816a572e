// Package ode integrates complex valued ordinary differential equations with the explicit Runge-Kutta method DOP853.
//
// The step size is controlled adaptively with the combined 5th and 3rd order error estimator of Hairer and Wanner,
// and every accepted step carries a 7th order interpolant, so that the solution can be evaluated at any time.
package ode

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/cmplxs"
)

// Func computes the derivative of y at time t into dydt.
type Func func(t float64, y, dydt []complex128) error

// Options are options for Solve.
type Options struct {
	rtol      float64
	atol      float64
	maxStep   float64
	firstStep float64
	logger    *log.Logger
}

// NewOptions returns the default options, which aim at near machine precision.
func NewOptions() Options {
	opt := Options{}
	opt.rtol = 1e-12
	opt.atol = 1e-14
	opt.maxStep = math.Inf(1)
	return opt
}

// RTol sets the relative tolerance.
func (opt Options) RTol(rtol float64) Options {
	opt.rtol = rtol
	return opt
}

// ATol sets the absolute tolerance.
func (opt Options) ATol(atol float64) Options {
	opt.atol = atol
	return opt
}

// MaxStep sets the maximum step size.
func (opt Options) MaxStep(h float64) Options {
	opt.maxStep = h
	return opt
}

// FirstStep sets the initial step size. Zero selects it automatically.
func (opt Options) FirstStep(h float64) Options {
	opt.firstStep = h
	return opt
}

// Logger sets the logger. The default is log.Default().
func (opt Options) Logger(l *log.Logger) Options {
	opt.logger = l
	return opt
}

func (opt Options) validate() error {
	if !(opt.rtol > 0) || !(opt.atol >= 0) {
		return errors.Errorf("rtol %v atol %v", opt.rtol, opt.atol)
	}
	if !(opt.maxStep > 0) || opt.firstStep < 0 {
		return errors.Errorf("maxStep %v firstStep %v", opt.maxStep, opt.firstStep)
	}
	return nil
}

// Solve integrates dy/dt = f(t, y) from span[0] to span[1] starting at y0.
// span[1] may be smaller than span[0], in which case the integration runs backwards in time.
//
// If the integration cannot reach span[1], Solve returns the solution up to the last accepted step
// with Success set to false, together with an error describing the failure.
func Solve(ctx context.Context, f Func, span [2]float64, y0 []complex128, options ...Options) (*Solution, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if err := opt.validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	logger := opt.logger
	if logger == nil {
		logger = log.Default()
	}
	if len(y0) == 0 {
		return nil, errors.Errorf("empty state")
	}
	if hasNonFinite(y0) {
		return nil, errors.Wrap(ErrNonFinite, "y0")
	}

	s := newSolver(f, span, y0, opt)
	sol := &Solution{T: []float64{span[0]}, y0: append([]complex128(nil), y0...), direction: s.direction}
	err := s.run(ctx, sol)
	sol.NFev = s.nfev
	if err != nil {
		sol.Success = false
		sol.Message = err.Error()
		logger.Warn("integration failed", "t", s.t, "tEnd", span[1], "steps", sol.NSteps, "nfev", sol.NFev, "err", err)
		return sol, err
	}
	sol.Success = true
	sol.Message = "The solver successfully reached the end of the integration interval."
	logger.Debug("integration done", "span", span, "steps", sol.NSteps, "rejected", sol.NRejected, "nfev", sol.NFev)
	return sol, nil
}

type solver struct {
	fun       Func
	n         int
	rtol      float64
	atol      float64
	maxStep   float64
	firstStep float64
	direction float64
	tBound    float64

	t    float64
	y    []complex128
	dydt []complex128
	hAbs float64

	k    [nStagesExtended][]complex128
	yNew []complex128
	tmp  []complex128
	nfev int
}

func newSolver(f Func, span [2]float64, y0 []complex128, opt Options) *solver {
	n := len(y0)
	s := &solver{
		fun:       f,
		n:         n,
		rtol:      opt.rtol,
		atol:      opt.atol,
		maxStep:   opt.maxStep,
		firstStep: opt.firstStep,
		direction: 1,
		tBound:    span[1],
		t:         span[0],
		y:         append([]complex128(nil), y0...),
		dydt:      make([]complex128, n),
		yNew:      make([]complex128, n),
		tmp:       make([]complex128, n),
	}
	if span[1] < span[0] {
		s.direction = -1
	}
	for i := range s.k {
		s.k[i] = make([]complex128, n)
	}
	return s
}

func (s *solver) eval(t float64, y, dydt []complex128) error {
	s.nfev++
	if err := s.fun(t, y, dydt); err != nil {
		return errors.Wrap(err, fmt.Sprintf("t=%v", t))
	}
	return nil
}

func (s *solver) run(ctx context.Context, sol *Solution) error {
	if s.t == s.tBound {
		return nil
	}
	if err := s.eval(s.t, s.y, s.dydt); err != nil {
		return errors.Wrap(err, "")
	}
	if hasNonFinite(s.dydt) {
		return errors.Wrap(ErrNonFinite, fmt.Sprintf("derivative at t=%v", s.t))
	}

	switch {
	case s.firstStep > 0:
		s.hAbs = s.firstStep
	default:
		var err error
		s.hAbs, err = s.initialStep()
		if err != nil {
			return errors.Wrap(err, "")
		}
	}

	for s.direction*(s.t-s.tBound) < 0 {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), fmt.Sprintf("t=%v", s.t))
		default:
		}

		tOld := s.t
		rejected, err := s.step()
		sol.NRejected += rejected
		if err != nil {
			return errors.Wrap(err, "")
		}

		seg, err := s.denseOutput(tOld)
		if err != nil {
			return errors.Wrap(err, "")
		}
		sol.segments = append(sol.segments, seg)
		sol.T = append(sol.T, s.t)
		sol.NSteps++
	}
	return nil
}

// initialStep estimates a first step size.
// E. Hairer, S. P. Norsett, G. Wanner, "Solving Ordinary Differential Equations I: Nonstiff Problems", Sec. II.4.
func (s *solver) initialStep() (float64, error) {
	interval := math.Abs(s.tBound - s.t)
	scale := make([]float64, s.n)
	for i, v := range s.y {
		scale[i] = s.atol + cmplx.Abs(v)*s.rtol
	}
	d0 := rmsScaled(s.y, scale)
	d1 := rmsScaled(s.dydt, scale)

	h0 := 0.01 * d0 / d1
	if d0 < 1e-5 || d1 < 1e-5 {
		h0 = 1e-6
	}
	h0 = math.Min(h0, interval)

	y1, f1 := s.yNew, s.tmp
	cmplxs.AddScaledTo(y1, s.y, complex(h0*s.direction, 0), s.dydt)
	if err := s.eval(s.t+h0*s.direction, y1, f1); err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	cmplxs.Sub(f1, s.dydt)
	d2 := rmsScaled(f1, scale) / h0

	var h1 float64
	switch {
	case d1 <= 1e-15 && d2 <= 1e-15:
		h1 = math.Max(1e-6, h0*1e-3)
	default:
		h1 = math.Pow(0.01/math.Max(d1, d2), -errExponent)
	}
	return math.Min(math.Min(100*h0, h1), interval), nil
}

// step advances the solver by one accepted step, and returns the number of rejected trials.
func (s *solver) step() (int, error) {
	t := s.t
	minStep := 10 * math.Abs(math.Nextafter(t, s.direction*math.Inf(1))-t)
	hAbs := s.hAbs
	switch {
	case hAbs > s.maxStep:
		hAbs = s.maxStep
	case hAbs < minStep:
		hAbs = minStep
	}

	var rejected int
	for {
		if hAbs < minStep {
			return rejected, errors.Wrap(ErrStepTooSmall, fmt.Sprintf("t=%v h=%v", t, hAbs))
		}

		h := hAbs * s.direction
		tNew := t + h
		if s.direction*(tNew-s.tBound) > 0 {
			tNew = s.tBound
		}
		h = tNew - t
		hAbs = math.Abs(h)

		if err := s.rkStep(t, h); err != nil {
			return rejected, errors.Wrap(err, "")
		}
		errNorm := s.errorNorm(h)

		if errNorm < 1 {
			factor := float64(maxFactor)
			if errNorm > 0 {
				factor = math.Min(maxFactor, safety*math.Pow(errNorm, errExponent))
			}
			if rejected > 0 {
				factor = math.Min(1, factor)
			}
			s.hAbs = hAbs * factor
			s.t = tNew
			return rejected, nil
		}

		// NaN error norms also end up here, and shrink the step until it is too small.
		hAbs *= math.Max(minFactor, safety*math.Pow(errNorm, errExponent))
		if math.IsNaN(hAbs) {
			hAbs = 0
		}
		rejected++
	}
}

// rkStep computes the stages of a step of size h from time t into s.k and the new state into s.yNew.
func (s *solver) rkStep(t, h float64) error {
	copy(s.k[0], s.dydt)
	for i := 1; i < nStages; i++ {
		s.stage(i, h)
		if err := s.eval(t+dopC[i]*h, s.tmp, s.k[i]); err != nil {
			return errors.Wrap(err, "")
		}
	}

	copy(s.yNew, s.y)
	for j, b := range dopB {
		if b != 0 {
			cmplxs.AddScaled(s.yNew, complex(h*b, 0), s.k[j])
		}
	}
	if err := s.eval(t+h, s.yNew, s.k[nStages]); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// stage sets s.tmp to the state at which the i-th stage is evaluated.
func (s *solver) stage(i int, h float64) {
	copy(s.tmp, s.y)
	for j, a := range dopA[i][:i] {
		if a != 0 {
			cmplxs.AddScaled(s.tmp, complex(h*a, 0), s.k[j])
		}
	}
}

func (s *solver) errorNorm(h float64) float64 {
	var err5, err3 float64
	for i := range s.y {
		scale := s.atol + math.Max(cmplx.Abs(s.y[i]), cmplx.Abs(s.yNew[i]))*s.rtol
		var e5, e3 complex128
		for j := 0; j <= nStages; j++ {
			e5 += complex(dopE5[j], 0) * s.k[j][i]
			e3 += complex(dopE3[j], 0) * s.k[j][i]
		}
		e5 /= complex(scale, 0)
		e3 /= complex(scale, 0)
		err5 += real(e5)*real(e5) + imag(e5)*imag(e5)
		err3 += real(e3)*real(e3) + imag(e3)*imag(e3)
	}
	if err5 == 0 && err3 == 0 {
		return 0
	}
	denom := err5 + 0.01*err3
	return math.Abs(h) * err5 / math.Sqrt(denom*float64(s.n))
}

// denseOutput builds the interpolant of the step just accepted from tOld, and moves the solver to the new state.
func (s *solver) denseOutput(tOld float64) (segment, error) {
	h := s.t - tOld
	for i := nStages + 1; i < nStagesExtended; i++ {
		s.stage(i, h)
		if err := s.eval(tOld+dopC[i]*h, s.tmp, s.k[i]); err != nil {
			return segment{}, errors.Wrap(err, "")
		}
	}

	seg := segment{tOld: tOld, h: h, yOld: append([]complex128(nil), s.y...)}
	for i := range seg.f {
		seg.f[i] = make([]complex128, s.n)
	}
	fOld, fNew := s.k[0], s.k[nStages]
	for k := range s.y {
		dy := s.yNew[k] - s.y[k]
		seg.f[0][k] = dy
		seg.f[1][k] = complex(h, 0)*fOld[k] - dy
		seg.f[2][k] = 2*dy - complex(h, 0)*(fNew[k]+fOld[k])
	}
	for r, d := range dopD {
		for j, c := range d {
			if c != 0 {
				cmplxs.AddScaled(seg.f[3+r], complex(h*c, 0), s.k[j])
			}
		}
	}

	copy(s.y, s.yNew)
	copy(s.dydt, fNew)
	return seg, nil
}

func rmsScaled(v []complex128, scale []float64) float64 {
	var sum float64
	for i, x := range v {
		a := cmplx.Abs(x) / scale[i]
		sum += a * a
	}
	return math.Sqrt(sum / float64(len(v)))
}

func hasNonFinite(v []complex128) bool {
	for _, x := range v {
		if cmplx.IsNaN(x) || cmplx.IsInf(x) {
			return true
		}
	}
	return false
}
