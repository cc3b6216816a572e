package observable

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/boson/basis"
)

type evaluator func(t float64) []complex128

func (e evaluator) At(t float64, dst []complex128) ([]complex128, error) {
	if t < 0 {
		return nil, errors.Errorf("%v", t)
	}
	copy(dst, e(t))
	return dst, nil
}

func coefficients(t *testing.T, b *basis.Basis, m map[string]complex128) []complex128 {
	c := make([]complex128, b.Len())
	for i, lb := range b.Labels() {
		c[i] = m[lb.String()]
	}
	var found int
	for _, lb := range b.Labels() {
		if _, ok := m[lb.String()]; ok {
			found++
		}
	}
	if found != len(m) {
		t.Fatalf("%d labels found, expected %d", found, len(m))
	}
	return c
}

func TestProjector(t *testing.T) {
	t.Parallel()
	b, err := basis.New(2, 2, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	p := NewProjector(b)

	labels := func(indices []int) []string {
		var ss []string
		for _, i := range indices {
			ss = append(ss, b.Label(i).String())
		}
		return ss
	}
	if got, expected := labels(p.occupation[0]), []string{"(0|0)", "(0 0|0 0)", "(0 1|0 1)"}; !slices.Equal(got, expected) {
		t.Fatalf("%v, expected %v", got, expected)
	}
	if got, expected := labels(p.occupation[1]), []string{"(0 1|0 1)", "(1|1)", "(1 1|1 1)"}; !slices.Equal(got, expected) {
		t.Fatalf("%v, expected %v", got, expected)
	}

	tests := []struct {
		c           map[string]complex128
		occupations []float64
		populations []float64
	}{
		{
			c:           map[string]complex128{"(0|0)": 0.5, "(1|1)": 0.5i},
			occupations: []float64{0.25, 0.25},
			populations: []float64{0.5, 0},
		},
		{
			c:           map[string]complex128{"(0 0|0 0)": 1, "(0 1|0 1)": 1 + 1i, "(0|1)": 3, "(0 0|0 1)": 2},
			occupations: []float64{3, 2},
			populations: []float64{3, 1},
		},
		{
			c:           map[string]complex128{"(1 1|1 1)": -2, "(|)": 7, "(1|)": 1},
			occupations: []float64{0, 4},
			populations: []float64{0, -4},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.c), func(t *testing.T) {
			t.Parallel()
			c := coefficients(t, b, test.c)
			if n := p.Occupations(c, nil); !floats.EqualApprox(n, test.occupations, 1e-15) {
				t.Fatalf("%v, expected %v", n, test.occupations)
			}
			if n := p.Populations(c, nil); !floats.EqualApprox(n, test.populations, 1e-15) {
				t.Fatalf("%v, expected %v", n, test.populations)
			}
		})
	}
}

func TestTable(t *testing.T) {
	t.Parallel()
	b, err := basis.New(3, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	p := NewProjector(b)
	i0, _ := b.Index(basis.NewLabel([]int{0}, []int{0}))
	i2, _ := b.Index(basis.NewLabel([]int{2}, []int{2}))
	sol := evaluator(func(t float64) []complex128 {
		c := make([]complex128, b.Len())
		c[i0] = complex(math.Cos(t), 0)
		c[i2] = complex(0, math.Sin(t))
		return c
	})

	times := Times(0, math.Pi/2, 5)
	if !floats.EqualApprox(times, []float64{0, math.Pi / 8, math.Pi / 4, 3 * math.Pi / 8, math.Pi / 2}, 1e-15) {
		t.Fatalf("%v", times)
	}
	occ, err := p.Table(sol, times)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if r, c := occ.Dims(); r != 3 || c != len(times) {
		t.Fatalf("%d %d", r, c)
	}
	for j, tt := range times {
		expected := []float64{math.Pow(math.Cos(tt), 2), 0, math.Pow(math.Sin(tt), 2)}
		for s, v := range expected {
			if math.Abs(occ.At(s, j)-v) > 1e-15 {
				t.Fatalf("%d %d %v, expected %v", s, j, occ.At(s, j), v)
			}
		}
	}

	totals := Totals(occ)
	for _, v := range totals {
		if math.Abs(v-1) > 1e-15 {
			t.Fatalf("%v", totals)
		}
	}
	sz, sz2 := Moments(occ)
	for j, tt := range times {
		s2 := math.Pow(math.Sin(tt), 2)
		if math.Abs(sz[j]-2*s2) > 1e-15 || math.Abs(sz2[j]-4*s2) > 1e-15 {
			t.Fatalf("%d %v %v", j, sz[j], sz2[j])
		}
		if sz2[j] < sz[j]*sz[j]-1e-12 {
			t.Fatalf("%d %v < %v", j, sz2[j], sz[j]*sz[j])
		}
	}

	pop, err := p.PopulationTable(sol, times)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if v := pop.At(0, 0); v != 1 {
		t.Fatalf("%v", v)
	}
	if v := pop.At(2, 4); v != 0 {
		t.Fatalf("%v", v)
	}

	if _, err := p.Table(sol, []float64{0, -1}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := p.Table(sol, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTimes(t *testing.T) {
	t.Parallel()
	if ts := Times(1, 2, 0); ts != nil {
		t.Fatalf("%v", ts)
	}
	if ts := Times(1, 2, 1); !slices.Equal(ts, []float64{1}) {
		t.Fatalf("%v", ts)
	}
	if ts := Times(0, 1, 3); !slices.Equal(ts, []float64{0, 0.5, 1}) {
		t.Fatalf("%v", ts)
	}
}
