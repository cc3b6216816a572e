package hamiltonian

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

var (
	ErrParamLength = errors.New("wrong parameter length")
)

// Params are the instantaneous coefficients of the Hamiltonian
//
//	H = Σ_s Hopping[s] (a†_s a_{s+1} + a†_{s+1} a_s) + Σ_s Detuning[s] n_s + Σ_s Interaction[s] n_s (n_s - 1)
//
// A nil field means all of its coefficients are zero.
type Params struct {
	// Hopping has length L-1.
	Hopping []float64
	// Detuning has length L.
	Detuning []float64
	// Interaction has length L.
	Interaction []float64
}

// Validate checks the lengths of p for a system of l modes.
func (p Params) Validate(l int) error {
	if p.Hopping != nil && len(p.Hopping) != l-1 {
		return errors.Wrap(ErrParamLength, fmt.Sprintf("hopping %d, expected %d", len(p.Hopping), l-1))
	}
	if p.Detuning != nil && len(p.Detuning) != l {
		return errors.Wrap(ErrParamLength, fmt.Sprintf("detuning %d, expected %d", len(p.Detuning), l))
	}
	if p.Interaction != nil && len(p.Interaction) != l {
		return errors.Wrap(ErrParamLength, fmt.Sprintf("interaction %d, expected %d", len(p.Interaction), l))
	}
	return nil
}

// At returns p, so that constant parameters can be used as a Source.
func (p Params) At(float64) (Params, error) { return p, nil }

// Source provides the parameters at time t.
// Implementations must be pure functions of t.
type Source interface {
	At(t float64) (Params, error)
}

// Profile is a time dependent array of coefficients.
type Profile interface {
	At(t float64) []float64
}

// Constant is a time independent Profile.
type Constant []float64

func (c Constant) At(float64) []float64 { return c }

// Func adapts a function of time to a Profile.
type Func func(t float64) []float64

func (f Func) At(t float64) []float64 { return f(t) }

// Sinusoid is the Profile Base[i] + Amplitude[i] sin(Frequency t + Phase).
// A nil Amplitude leaves Base unmodulated.
type Sinusoid struct {
	Base      []float64
	Amplitude []float64
	Frequency float64
	Phase     float64
}

func (s Sinusoid) At(t float64) []float64 {
	v := make([]float64, len(s.Base))
	sin := math.Sin(s.Frequency*t + s.Phase)
	for i, b := range s.Base {
		v[i] = b
		if i < len(s.Amplitude) {
			v[i] += s.Amplitude[i] * sin
		}
	}
	return v
}

// Schedule is a Source whose three kinds of coefficients vary independently.
// A nil Profile means zero coefficients.
type Schedule struct {
	Hopping     Profile
	Detuning    Profile
	Interaction Profile
}

func (s Schedule) At(t float64) (Params, error) {
	var p Params
	if s.Hopping != nil {
		p.Hopping = s.Hopping.At(t)
	}
	if s.Detuning != nil {
		p.Detuning = s.Detuning.At(t)
	}
	if s.Interaction != nil {
		p.Interaction = s.Interaction.At(t)
	}
	return p, nil
}
