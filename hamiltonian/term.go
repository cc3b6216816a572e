package hamiltonian

import (
	"fmt"

	"github.com/fumin/boson/basis"
)

// Term is a single term of the Bose-Hubbard Hamiltonian.
// It is one of Hopping, Number, or Interaction.
type Term interface {
	term()
}

// Hopping is a†_Create a_Annihilate, which moves a particle from site Annihilate to site Create.
type Hopping struct {
	Create     int
	Annihilate int
}

// Number is the on-site number operator n_Site.
type Number struct {
	Site int
}

// Interaction is the on-site interaction n_Site (n_Site - 1).
type Interaction struct {
	Site int
}

func (Hopping) term()     {}
func (Number) term()      {}
func (Interaction) term() {}

func (h Hopping) String() string     { return fmt.Sprintf("a†%d a%d", h.Create, h.Annihilate) }
func (n Number) String() string      { return fmt.Sprintf("n%d", n.Site) }
func (n Interaction) String() string { return fmt.Sprintf("n%d(n%d-1)", n.Site, n.Site) }

// Contribution is a non-zero matrix element of a commutator, in the row of Label.
type Contribution struct {
	Label basis.Label
	Value complex128
}

// Commutator returns the component of [term, source] along target.
//
// For hopping, the leading single particle transfer is kept:
// the creation part gains the moved particle with coefficient +1,
// and the annihilation part loses it with coefficient -1.
// Normal ordering corrections from [a, a†] = 1 are not included.
func Commutator(target, source basis.Label, term Term) complex128 {
	var v complex128
	for _, c := range Column(source, term) {
		if c.Label.Equal(target) {
			v += c.Value
		}
	}
	return v
}

// Column returns the non-zero components of [term, source].
// There are at most two of them.
func Column(source basis.Label, term Term) []Contribution {
	switch t := term.(type) {
	case Hopping:
		cs := make([]Contribution, 0, 2)
		if k, ok := basis.Replace(source.I, t.Annihilate, t.Create); ok {
			cs = append(cs, Contribution{Label: basis.Label{I: k, J: source.J}, Value: 1})
		}
		if l, ok := basis.Replace(source.J, t.Create, t.Annihilate); ok {
			cs = append(cs, Contribution{Label: basis.Label{I: source.I, J: l}, Value: -1})
		}
		return cs
	case Number:
		v := basis.Count(source.I, t.Site) - basis.Count(source.J, t.Site)
		return diagonal(source, v)
	case Interaction:
		k := basis.Count(source.I, t.Site)
		l := basis.Count(source.J, t.Site)
		return diagonal(source, k*(k-1)-l*(l-1))
	}
	panic(fmt.Sprintf("unknown term %#v", term))
}

func diagonal(source basis.Label, v int) []Contribution {
	if v == 0 {
		return nil
	}
	return []Contribution{{Label: source, Value: complex(float64(v), 0)}}
}
