// Package config describes a simulation run, and reads and writes it as yaml or toml.
package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/fumin/boson/basis"
	"github.com/fumin/boson/hamiltonian"
	"github.com/fumin/boson/ode"
)

const (
	DefaultRTol    = 1e-12
	DefaultATol    = 1e-14
	DefaultSamples = 101
)

// Entry is a coefficient of the initial operator.
type Entry struct {
	// Create and Annihilate are the sites of the creation and annihilation operators.
	Create     []int   `yaml:"create" toml:"create"`
	Annihilate []int   `yaml:"annihilate" toml:"annihilate"`
	Re         float64 `yaml:"re" toml:"re"`
	Im         float64 `yaml:"im,omitempty" toml:"im,omitempty"`
}

// Modulation adds Amplitude[i] sin(Frequency t + Phase) to a coefficient array.
type Modulation struct {
	Amplitude []float64 `yaml:"amplitude" toml:"amplitude"`
	Frequency float64   `yaml:"frequency" toml:"frequency"`
	Phase     float64   `yaml:"phase,omitempty" toml:"phase,omitempty"`
}

type Config struct {
	Name string `yaml:"name" toml:"name"`

	Modes      int `yaml:"modes" toml:"modes"`
	Particles  int `yaml:"particles" toml:"particles"`
	Truncation int `yaml:"truncation" toml:"truncation"`

	Start   float64 `yaml:"start" toml:"start"`
	End     float64 `yaml:"end" toml:"end"`
	Samples int     `yaml:"samples" toml:"samples"`

	Hopping           []float64   `yaml:"hopping" toml:"hopping"`
	HoppingModulation *Modulation `yaml:"hopping_modulation,omitempty" toml:"hopping_modulation,omitempty"`
	Detuning          []float64   `yaml:"detuning,omitempty" toml:"detuning,omitempty"`
	Interaction       []float64   `yaml:"interaction,omitempty" toml:"interaction,omitempty"`

	Initial []Entry `yaml:"initial" toml:"initial"`

	RTol    float64 `yaml:"rtol" toml:"rtol"`
	ATol    float64 `yaml:"atol" toml:"atol"`
	MaxStep float64 `yaml:"max_step,omitempty" toml:"max_step,omitempty"`
}

// Default returns a single particle oscillating between two modes.
func Default() *Config {
	return &Config{
		Name:       "rabi",
		Modes:      2,
		Particles:  1,
		Truncation: 1,
		Start:      0,
		End:        2 * math.Pi,
		Samples:    DefaultSamples,
		Hopping:    []float64{1},
		Initial:    []Entry{{Create: []int{0}, Annihilate: []int{0}, Re: 1}},
		RTol:       DefaultRTol,
		ATol:       DefaultATol,
	}
}

var presets = map[string]func() *Config{
	"rabi": Default,
	"interaction": func() *Config {
		return &Config{
			Name:        "interaction",
			Modes:       2,
			Particles:   2,
			Truncation:  2,
			End:         5,
			Samples:     DefaultSamples,
			Hopping:     []float64{1},
			Interaction: []float64{0.2, 0.2},
			Initial:     []Entry{{Create: []int{0, 0}, Annihilate: []int{0, 0}, Re: 1}},
			RTol:        DefaultRTol,
			ATol:        DefaultATol,
		}
	},
	"modulated": func() *Config {
		return &Config{
			Name:              "modulated",
			Modes:             3,
			Particles:         3,
			Truncation:        3,
			End:               10,
			Samples:           DefaultSamples,
			Hopping:           []float64{1, 1},
			HoppingModulation: &Modulation{Amplitude: []float64{0.1, 0}, Frequency: 1},
			Detuning:          []float64{0, 0.1, 0},
			Interaction:       []float64{0.05, 0.1, 0.05},
			Initial:           []Entry{{Create: []int{0, 0, 0}, Annihilate: []int{0, 0, 0}, Re: 1}},
			RTol:              DefaultRTol,
			ATol:              DefaultATol,
		}
	},
}

// Preset returns a new copy of the named preset.
func Preset(name string) (*Config, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, errors.Errorf("unknown preset %q, expected one of %v", name, PresetNames())
	}
	return fn(), nil
}

// PresetNames returns the names of all presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Load reads a configuration from path.
// The format is decided by the file extension, which is one of .yaml, .yml, and .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	cfg := &Config{Samples: DefaultSamples, RTol: DefaultRTol, ATol: DefaultATol}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, path)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, path)
		}
	default:
		return nil, errors.Errorf("unknown extension %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Save writes cfg to path in the format given by the file extension.
func (cfg *Config) Save(path string) error {
	var data []byte
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "")
		}
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return errors.Wrap(err, "")
		}
		data = buf.Bytes()
	default:
		return errors.Errorf("unknown extension %q", ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Validate checks that cfg describes a runnable simulation.
func (cfg *Config) Validate() error {
	if cfg.Modes < 1 || cfg.Particles < 0 || cfg.Truncation < 0 {
		return errors.Errorf("modes %d particles %d truncation %d", cfg.Modes, cfg.Particles, cfg.Truncation)
	}
	if !isFinite(cfg.Start) || !isFinite(cfg.End) {
		return errors.Errorf("start %v end %v", cfg.Start, cfg.End)
	}
	if cfg.Samples < 2 {
		return errors.Errorf("samples %d, expected at least 2", cfg.Samples)
	}
	if !(cfg.RTol > 0) || !(cfg.ATol >= 0) || cfg.MaxStep < 0 {
		return errors.Errorf("rtol %v atol %v max_step %v", cfg.RTol, cfg.ATol, cfg.MaxStep)
	}

	if err := checkLength("hopping", cfg.Hopping, cfg.Modes-1); err != nil {
		return errors.Wrap(err, "")
	}
	if err := checkLength("detuning", cfg.Detuning, cfg.Modes); err != nil {
		return errors.Wrap(err, "")
	}
	if err := checkLength("interaction", cfg.Interaction, cfg.Modes); err != nil {
		return errors.Wrap(err, "")
	}
	if m := cfg.HoppingModulation; m != nil {
		if err := checkLength("hopping_modulation.amplitude", m.Amplitude, cfg.Modes-1); err != nil {
			return errors.Wrap(err, "")
		}
		if !isFinite(m.Frequency) || !isFinite(m.Phase) {
			return errors.Errorf("hopping_modulation frequency %v phase %v", m.Frequency, m.Phase)
		}
	}

	if len(cfg.Initial) == 0 {
		return errors.Errorf("no initial entries")
	}
	for i, e := range cfg.Initial {
		for _, s := range slices.Concat(e.Create, e.Annihilate) {
			if s < 0 || s >= cfg.Modes {
				return errors.Errorf("initial[%d] site %d, expected [0, %d)", i, s, cfg.Modes)
			}
		}
		if len(e.Create) > cfg.Truncation || len(e.Annihilate) > cfg.Truncation {
			return errors.Errorf("initial[%d] %v %v exceeds truncation %d", i, e.Create, e.Annihilate, cfg.Truncation)
		}
	}
	return nil
}

func checkLength(name string, v []float64, n int) error {
	if v == nil {
		return nil
	}
	if len(v) != n {
		return errors.Errorf("%s length %d, expected %d", name, len(v), n)
	}
	for i, x := range v {
		if !isFinite(x) {
			return errors.Errorf("%s[%d] %v", name, i, x)
		}
	}
	return nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Schedule returns the time dependent Hamiltonian parameters.
func (cfg *Config) Schedule() hamiltonian.Schedule {
	var s hamiltonian.Schedule
	switch m := cfg.HoppingModulation; {
	case m != nil:
		base := cfg.Hopping
		if base == nil {
			base = make([]float64, cfg.Modes-1)
		}
		s.Hopping = hamiltonian.Sinusoid{Base: base, Amplitude: m.Amplitude, Frequency: m.Frequency, Phase: m.Phase}
	case cfg.Hopping != nil:
		s.Hopping = hamiltonian.Constant(cfg.Hopping)
	}
	if cfg.Detuning != nil {
		s.Detuning = hamiltonian.Constant(cfg.Detuning)
	}
	if cfg.Interaction != nil {
		s.Interaction = hamiltonian.Constant(cfg.Interaction)
	}
	return s
}

// InitialState returns the initial operator as basis entries.
func (cfg *Config) InitialState() []basis.Entry {
	entries := make([]basis.Entry, 0, len(cfg.Initial))
	for _, e := range cfg.Initial {
		entries = append(entries, basis.Entry{Label: basis.NewLabel(e.Create, e.Annihilate), Value: complex(e.Re, e.Im)})
	}
	return entries
}

// Options returns the integrator options.
func (cfg *Config) Options() ode.Options {
	opt := ode.NewOptions().RTol(cfg.RTol).ATol(cfg.ATol)
	if cfg.MaxStep > 0 {
		opt = opt.MaxStep(cfg.MaxStep)
	}
	return opt
}

// Span returns the integration interval.
func (cfg *Config) Span() [2]float64 {
	return [2]float64{cfg.Start, cfg.End}
}

// Times returns the times at which observables are sampled.
func (cfg *Config) Times() []float64 {
	return floats.Span(make([]float64, cfg.Samples), cfg.Start, cfg.End)
}

func (cfg *Config) String() string {
	return fmt.Sprintf("%s L=%d N=%d kMax=%d t=[%v, %v]", cfg.Name, cfg.Modes, cfg.Particles, cfg.Truncation, cfg.Start, cfg.End)
}
