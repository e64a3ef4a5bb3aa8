// Package space describes the searchable configuration space and converts
// configurations to and from the dense vectors the optimizer works on.
//
// Every float or int parameter takes one dimension scaled to [0, 1],
// optionally on a log scale. A categorical parameter takes one dimension per
// choice (one-hot); decoding picks the largest entry.
package space

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/haskel/bore/internal/optimize"
)

// Parameter types.
const (
	TypeFloat       = "float"
	TypeInt         = "int"
	TypeCategorical = "categorical"
)

// Config is a configuration in semantic form: parameter name to value.
// Float parameters decode to float64, int parameters to int and categorical
// parameters to string.
type Config map[string]any

// Parameter defines one hyperparameter.
type Parameter struct {
	Name    string   `yaml:"name" json:"name"`
	Type    string   `yaml:"type" json:"type"`
	Lower   float64  `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper   float64  `yaml:"upper,omitempty" json:"upper,omitempty"`
	Log     bool     `yaml:"log,omitempty" json:"log,omitempty"`
	Choices []string `yaml:"choices,omitempty" json:"choices,omitempty"`
	Default any      `yaml:"default,omitempty" json:"default,omitempty"`
}

// Validate checks the parameter definition.
func (p Parameter) Validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	switch p.Type {
	case TypeFloat, TypeInt:
		if math.IsNaN(p.Lower) || math.IsNaN(p.Upper) || p.Lower >= p.Upper {
			errs = append(errs, fmt.Errorf("lower (%v) must be less than upper (%v)", p.Lower, p.Upper))
		}
		if p.Log && p.Lower <= 0 {
			errs = append(errs, fmt.Errorf("log scale requires positive lower bound, got %v", p.Lower))
		}
		if p.Type == TypeInt && (p.Lower != math.Trunc(p.Lower) || p.Upper != math.Trunc(p.Upper)) {
			errs = append(errs, fmt.Errorf("int bounds must be whole numbers, got [%v, %v]", p.Lower, p.Upper))
		}
		if len(p.Choices) > 0 {
			errs = append(errs, fmt.Errorf("choices are only valid for categorical parameters"))
		}
	case TypeCategorical:
		if len(p.Choices) < 2 {
			errs = append(errs, fmt.Errorf("categorical parameter needs at least 2 choices, got %d", len(p.Choices)))
		}
		seen := make(map[string]bool, len(p.Choices))
		for _, c := range p.Choices {
			if seen[c] {
				errs = append(errs, fmt.Errorf("duplicate choice %q", c))
			}
			seen[c] = true
		}
		if p.Log {
			errs = append(errs, fmt.Errorf("log scale is not valid for categorical parameters"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown type %q (must be float, int or categorical)", p.Type))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("parameter %q: %w", p.Name, err)
	}
	return nil
}

// dims returns the number of dense dimensions the parameter occupies.
func (p Parameter) dims() int {
	if p.Type == TypeCategorical {
		return len(p.Choices)
	}
	return 1
}

// Space is an ordered set of parameters. Parameters are laid out in the
// dense vector in the order given.
type Space struct {
	params  []Parameter
	offsets []int
	index   map[string]int
	dim     int
}

// New creates a space from parameter definitions.
func New(params []Parameter) (*Space, error) {
	if len(params) == 0 {
		return nil, errors.New("space needs at least one parameter")
	}

	var errs []error
	index := make(map[string]int, len(params))
	for i, p := range params {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := index[p.Name]; ok {
			errs = append(errs, fmt.Errorf("duplicate parameter name %q", p.Name))
			continue
		}
		index[p.Name] = i
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s := &Space{
		params:  make([]Parameter, len(params)),
		offsets: make([]int, len(params)),
		index:   index,
	}
	copy(s.params, params)
	for i, p := range s.params {
		s.offsets[i] = s.dim
		s.dim += p.dims()
	}

	for _, p := range s.params {
		if p.Default == nil {
			continue
		}
		if _, err := s.encodeValue(p, p.Default); err != nil {
			return nil, fmt.Errorf("parameter %q: invalid default: %w", p.Name, err)
		}
	}

	return s, nil
}

// Parameters returns the parameter definitions in layout order.
func (s *Space) Parameters() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)
	return out
}

// Dimensions returns the length of the dense vector.
func (s *Space) Dimensions() int {
	return s.dim
}

// Bounds returns the box of the dense vector: [0, 1] in every dimension.
func (s *Space) Bounds() optimize.Bounds {
	return optimize.UnitBounds(s.dim)
}

// Sample draws a configuration uniformly (uniform in log space for log
// parameters) and returns it in both forms.
func (s *Space) Sample(rng *rand.Rand) (Config, []float64) {
	x := make([]float64, s.dim)
	for i, p := range s.params {
		off := s.offsets[i]
		if p.Type == TypeCategorical {
			x[off+rng.IntN(len(p.Choices))] = 1
			continue
		}
		x[off] = rng.Float64()
	}

	cfg := s.decode(x)
	// Snap ints to their grid so the returned vector re-encodes exactly.
	x, _ = s.Encode(cfg)
	return cfg, x
}

// Encode converts a configuration to its dense vector. Missing parameters
// take their default; a missing parameter without default is an error.
func (s *Space) Encode(cfg Config) ([]float64, error) {
	x := make([]float64, s.dim)
	var errs []error

	for i, p := range s.params {
		v, ok := cfg[p.Name]
		if !ok || v == nil {
			if p.Default == nil {
				errs = append(errs, fmt.Errorf("missing value for parameter %q", p.Name))
				continue
			}
			v = p.Default
		}
		enc, err := s.encodeValue(p, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("parameter %q: %w", p.Name, err))
			continue
		}
		copy(x[s.offsets[i]:], enc)
	}

	for name := range cfg {
		if _, ok := s.index[name]; !ok {
			errs = append(errs, fmt.Errorf("unknown parameter %q", name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return x, nil
}

// Decode converts a dense vector to a configuration. Values outside [0, 1]
// are clipped.
func (s *Space) Decode(x []float64) (Config, error) {
	if len(x) != s.dim {
		return nil, fmt.Errorf("vector has %d dimensions, space has %d", len(x), s.dim)
	}
	for i, v := range x {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("dimension %d is NaN", i)
		}
	}
	return s.decode(x), nil
}

func (s *Space) decode(x []float64) Config {
	cfg := make(Config, len(s.params))
	for i, p := range s.params {
		off := s.offsets[i]
		switch p.Type {
		case TypeCategorical:
			best := 0
			for j := 1; j < len(p.Choices); j++ {
				if x[off+j] > x[off+best] {
					best = j
				}
			}
			cfg[p.Name] = p.Choices[best]
		case TypeInt:
			v := math.Round(p.fromUnit(x[off]))
			cfg[p.Name] = int(math.Min(math.Max(v, p.Lower), p.Upper))
		default:
			cfg[p.Name] = p.fromUnit(x[off])
		}
	}
	return cfg
}

func (s *Space) encodeValue(p Parameter, v any) ([]float64, error) {
	if p.Type == TypeCategorical {
		str, ok := v.(string)
		if !ok {
			str = fmt.Sprint(v)
		}
		for j, c := range p.Choices {
			if c == str {
				enc := make([]float64, len(p.Choices))
				enc[j] = 1
				return enc, nil
			}
		}
		return nil, fmt.Errorf("value %q is not one of %v", str, p.Choices)
	}

	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	if f < p.Lower || f > p.Upper {
		return nil, fmt.Errorf("value %v outside [%v, %v]", f, p.Lower, p.Upper)
	}
	if p.Type == TypeInt && f != math.Trunc(f) {
		return nil, fmt.Errorf("value %v is not a whole number", f)
	}
	return []float64{p.toUnit(f)}, nil
}

func (p Parameter) toUnit(v float64) float64 {
	var u float64
	if p.Log {
		u = (math.Log(v) - math.Log(p.Lower)) / (math.Log(p.Upper) - math.Log(p.Lower))
	} else {
		u = (v - p.Lower) / (p.Upper - p.Lower)
	}
	return math.Min(math.Max(u, 0), 1)
}

func (p Parameter) fromUnit(u float64) float64 {
	u = math.Min(math.Max(u, 0), 1)
	var v float64
	if p.Log {
		lo, hi := math.Log(p.Lower), math.Log(p.Upper)
		v = math.Exp(lo + u*(hi-lo))
	} else {
		v = p.Lower + u*(p.Upper-p.Lower)
	}
	return math.Min(math.Max(v, p.Lower), p.Upper)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case interface{ Float64() (float64, error) }:
		return n.Float64()
	default:
		return 0, fmt.Errorf("value %v (%T) is not a number", v, v)
	}
}

// Names returns the parameter names in layout order.
func (s *Space) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}
	return names
}

// SortedKeys returns the keys of cfg in lexical order.
func SortedKeys(cfg Config) []string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
