package ode

import (
	"github.com/pkg/errors"
)

var (
	// ErrStepTooSmall is returned when the adaptive step falls below the resolution of the time axis.
	ErrStepTooSmall = errors.New("ode: required step size is less than spacing between numbers")
	// ErrNonFinite is returned when the initial state or its derivative contains NaN or Inf.
	ErrNonFinite = errors.New("ode: non-finite value")
	// ErrOutOfRange is returned when a solution is evaluated outside its interval.
	ErrOutOfRange = errors.New("ode: time outside solution interval")
)
