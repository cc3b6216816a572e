package boson

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/cmplxs"
	gmat "gonum.org/v1/gonum/mat"

	"github.com/fumin/boson/basis"
	"github.com/fumin/boson/config"
	"github.com/fumin/boson/hamiltonian"
	"github.com/fumin/boson/mat"
	"github.com/fumin/boson/observable"
)

func entry(i, j []int, v complex128) basis.Entry {
	return basis.Entry{Label: basis.NewLabel(i, j), Value: v}
}

func TestRabi(t *testing.T) {
	t.Parallel()
	s, err := New(2, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// theta is the integrated hopping up to time t.
	tests := []struct {
		name  string
		src   hamiltonian.Source
		theta func(t float64) float64
	}{
		{
			name:  "constant",
			src:   hamiltonian.Params{Hopping: []float64{1}},
			theta: func(t float64) float64 { return t },
		},
		{
			name: "modulated",
			src: hamiltonian.Schedule{
				Hopping: hamiltonian.Sinusoid{Base: []float64{1}, Amplitude: []float64{0.5}, Frequency: 1},
			},
			theta: func(t float64) float64 { return t + 0.5*(1-math.Cos(t)) },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			init := []basis.Entry{entry([]int{0}, []int{0}, 1)}
			sol, err := s.Integrate(context.Background(), [2]float64{0, 2 * math.Pi}, test.src, init)
			if err != nil {
				t.Fatalf("%+v", err)
			}

			labels := []basis.Label{
				basis.NewLabel([]int{0}, []int{0}),
				basis.NewLabel([]int{1}, []int{1}),
				basis.NewLabel([]int{0}, []int{1}),
				basis.NewLabel([]int{1}, []int{0}),
			}
			indices := make([]int, len(labels))
			for k, lb := range labels {
				indices[k], _ = s.Basis().Index(lb)
			}

			times := observable.Times(0, 2*math.Pi, 64)
			c := make([]complex128, s.Basis().Len())
			for _, tt := range times {
				if _, err := sol.At(tt, c); err != nil {
					t.Fatalf("%+v", err)
				}
				th := test.theta(tt)
				cos, sin := math.Cos(th), math.Sin(th)
				expected := []complex128{
					complex(cos*cos, 0),
					complex(sin*sin, 0),
					complex(0, -sin*cos),
					complex(0, sin*cos),
				}
				for k, i := range indices {
					if cmplx.Abs(c[i]-expected[k]) > 1e-6 {
						t.Fatalf("t=%v %s %v, expected %v", tt, labels[k], c[i], expected[k])
					}
				}
			}

			occ, err := s.Project(sol, times)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			pop, err := s.Populations(sol, times)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			for j, tt := range times {
				cos2 := math.Pow(math.Cos(test.theta(tt)), 2)
				if math.Abs(pop.At(0, j)-cos2) > 1e-6 || math.Abs(pop.At(1, j)-(1-cos2)) > 1e-6 {
					t.Fatalf("t=%v %v %v, expected %v", tt, pop.At(0, j), pop.At(1, j), cos2)
				}
				if math.Abs(occ.At(0, j)-cos2*cos2) > 1e-6 || math.Abs(occ.At(1, j)-(1-cos2)*(1-cos2)) > 1e-6 {
					t.Fatalf("t=%v %v %v", tt, occ.At(0, j), occ.At(1, j))
				}
			}
		})
	}
}

func TestConservation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		l, n, kMax int
		p          hamiltonian.Params
		init       []basis.Entry
	}{
		{
			l: 2, n: 2, kMax: 2,
			p:    hamiltonian.Params{Hopping: []float64{1}, Interaction: []float64{0.2, 0.2}},
			init: []basis.Entry{entry([]int{0, 0}, []int{0, 0}, 1)},
		},
		{
			l: 3, n: 2, kMax: 2,
			p:    hamiltonian.Params{Hopping: []float64{1, 0.7}, Detuning: []float64{0, 0.3, -0.2}, Interaction: []float64{0.1, 0.4, 0}},
			init: []basis.Entry{entry([]int{0, 2}, []int{0, 2}, 1), entry([]int{1}, []int{0}, 0.5i)},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %d %d", test.l, test.n, test.kMax), func(t *testing.T) {
			t.Parallel()
			s, err := New(test.l, test.n, test.kMax)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			sol, err := s.Integrate(context.Background(), [2]float64{0, 5}, test.p, test.init)
			if err != nil {
				t.Fatalf("%+v", err)
			}

			times := observable.Times(0, 5, 20)
			pop, err := s.Populations(sol, times)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			total := observable.Totals(pop)

			c := make([]complex128, s.Basis().Len())
			norm0 := cmplxs.Norm(must(sol.At(0, c)), 2)
			for j, tt := range times {
				if _, err := sol.At(tt, c); err != nil {
					t.Fatalf("%+v", err)
				}
				if norm := cmplxs.Norm(c, 2); math.Abs(norm-norm0) > 1e-9 {
					t.Fatalf("t=%v %v, expected %v", tt, norm, norm0)
				}
				if math.Abs(total[j]-total[0]) > 1e-9 {
					t.Fatalf("t=%v %v, expected %v", tt, total[j], total[0])
				}
			}
		})
	}
}

func must(c []complex128, err error) []complex128 {
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return c
}

func TestInteraction(t *testing.T) {
	t.Parallel()
	s, err := New(2, 2, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	init := []basis.Entry{entry([]int{0, 0}, []int{0, 0}, 1)}
	times := observable.Times(0, 5, 20)

	occupations := make([]*gmat.Dense, 0)
	for _, u := range []float64{0, 0.2} {
		p := hamiltonian.Params{Hopping: []float64{1}, Interaction: []float64{u, u}}
		sol, err := s.Integrate(context.Background(), [2]float64{0, 5}, p, init)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		occ, err := s.Project(sol, times)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		occupations = append(occupations, occ)

		sz, sz2 := observable.Moments(occ)
		for j := range times {
			if sz2[j] < sz[j]*sz[j]-1e-12 {
				t.Fatalf("U=%v t=%v %v < %v", u, times[j], sz2[j], sz[j]*sz[j])
			}
		}
	}

	last := len(times) - 1
	if d := math.Abs(occupations[0].At(0, last) - occupations[1].At(0, last)); d < 1e-3 {
		t.Fatalf("%v %v", occupations[0].At(0, last), occupations[1].At(0, last))
	}
}

func TestIntegrateErrors(t *testing.T) {
	t.Parallel()
	if _, err := New(0, 1, 1); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("%+v, expected %v", err, ErrInvalidSize)
	}
	if _, err := New(2, -1, 1); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("%+v, expected %v", err, ErrInvalidSize)
	}

	s, err := New(2, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	span := [2]float64{0, 1}
	p := hamiltonian.Params{Hopping: []float64{1}}
	tests := []struct {
		src  hamiltonian.Source
		init []basis.Entry
		err  error
	}{
		{src: p, init: []basis.Entry{entry([]int{0, 0}, []int{0}, 1)}, err: basis.ErrUnknownLabel},
		{src: p, init: []basis.Entry{entry([]int{0}, []int{1}, 1), entry([]int{0}, []int{1}, 2)}, err: basis.ErrDuplicateLabel},
		{src: hamiltonian.Params{Hopping: []float64{1, 1}}, init: []basis.Entry{entry([]int{0}, []int{1}, 1)}, err: hamiltonian.ErrParamLength},
		{
			src:  hamiltonian.Schedule{Detuning: hamiltonian.Func(func(t float64) []float64 { return make([]float64, 3) })},
			init: []basis.Entry{entry([]int{0}, []int{1}, 1)},
			err:  hamiltonian.ErrParamLength,
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			if _, err := s.Integrate(context.Background(), span, test.src, test.init); !errors.Is(err, test.err) {
				t.Fatalf("%+v, expected %v", err, test.err)
			}
		})
	}
}

func TestExportGenerator(t *testing.T) {
	t.Parallel()
	s, err := New(3, 2, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	src := hamiltonian.Schedule{
		Hopping:     hamiltonian.Sinusoid{Base: []float64{1, 1}, Amplitude: []float64{0.1, 0}, Frequency: 1},
		Interaction: hamiltonian.Constant{0.05, 0.1, 0.05},
	}

	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)
	const tt = 0.7
	if err := s.ExportGenerator(dir, tt, src); err != nil {
		t.Fatalf("%+v", err)
	}
	h, err := mat.ReadCOO(dir)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	p, _ := src.At(tt)
	expected, err := s.Assemble(p)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !h.EqualApprox(mat.FromCDense(expected), 1e-15) {
		t.Fatalf("%s, expected %s", h, mat.FromCDense(expected))
	}
}

func TestRun(t *testing.T) {
	t.Parallel()
	for _, name := range config.PresetNames() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.Preset(name)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			cfg.Samples = 11
			res, err := Run(context.Background(), cfg)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !res.Solution.Success {
				t.Fatalf("%s", res.Solution.Message)
			}
			if r, c := res.Occupations.Dims(); r != cfg.Modes || c != cfg.Samples {
				t.Fatalf("%d %d", r, c)
			}
			if len(res.Sz) != cfg.Samples || len(res.Totals) != cfg.Samples {
				t.Fatalf("%d %d", len(res.Sz), len(res.Totals))
			}

			// Every preset starts from a number operator of all particles.
			totals := observable.Totals(res.Populations)
			for j, v := range totals {
				if math.Abs(v-float64(cfg.Particles)) > 1e-8 {
					t.Fatalf("t=%v %v, expected %d", res.Times[j], v, cfg.Particles)
				}
			}
		})
	}

	cfg := config.Default()
	cfg.Samples = 1
	if _, err := Run(context.Background(), cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetLevel(log.DebugLevel)
	log.SetReportCaller(true)

	os.Exit(m.Run())
}
