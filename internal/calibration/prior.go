package calibration

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/banshee-data/vaxsim/internal/model"
)

// Bound is the closed prior range of one free parameter.
type Bound struct {
	Low  float64
	High float64
}

// Bounds maps free parameter names to their prior ranges.
type Bounds map[string]Bound

// Names returns the bound parameter names in sorted order. The LHS design
// uses this order for its columns.
func (b Bounds) Names() []string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every range is ordered and finite.
func (b Bounds) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("%w: no parameter bounds", model.ErrConfig)
	}
	for _, name := range b.Names() {
		r := b[name]
		if !(r.Low <= r.High) {
			return fmt.Errorf("%w: bound %s has low %g above high %g", model.ErrConfig, name, r.Low, r.High)
		}
	}
	return nil
}

// Contains reports whether every bound parameter of p lies within range.
func (b Bounds) Contains(p model.Params) bool {
	for name, r := range b {
		v, ok := p[name]
		if !ok || v < r.Low || v > r.High {
			return false
		}
	}
	return true
}

// SamplingMode selects how the Latin hypercube is used.
type SamplingMode string

const (
	// SamplingPerCall draws a one-row hypercube on every call, which is a
	// plain independent uniform draw per dimension.
	SamplingPerCall SamplingMode = "per_call"
	// SamplingDesign draws a stratified design of DesignSize rows and hands
	// the rows out one at a time, refilling when exhausted.
	SamplingDesign SamplingMode = "design"
)

// ParseSamplingMode accepts per_call and design. Empty means per_call.
func ParseSamplingMode(s string) (SamplingMode, error) {
	switch SamplingMode(s) {
	case "", SamplingPerCall:
		return SamplingPerCall, nil
	case SamplingDesign:
		return SamplingDesign, nil
	}
	return "", fmt.Errorf("%w: unknown sampling mode %q", model.ErrConfig, s)
}

// Prior draws parameter vectors for ABC trials.
type Prior interface {
	Sample() model.Params
}

// LHSSampler draws bound parameters by Latin hypercube sampling over
// uniform priors and overlays them on the baseline. Not safe for concurrent
// use.
type LHSSampler struct {
	names      []string
	baseline   model.Params
	mode       SamplingMode
	designSize int

	lhs    samplemv.LatinHypercube
	design *mat.Dense
	next   int
}

// NewLHSSampler builds a sampler. designSize is only used in design mode.
func NewLHSSampler(bounds Bounds, baseline model.Params, mode SamplingMode, designSize int, seed uint64) (*LHSSampler, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = SamplingPerCall
	}
	if designSize < 1 {
		designSize = DefaultBatchSize
	}
	names := bounds.Names()
	intervals := make([]r1.Interval, len(names))
	for i, n := range names {
		intervals[i] = r1.Interval{Min: bounds[n].Low, Max: bounds[n].High}
	}
	src := rand.NewPCG(seed, 0x2545f4914f6cdd1d)
	return &LHSSampler{
		names:      names,
		baseline:   baseline.Clone(),
		mode:       mode,
		designSize: designSize,
		lhs: samplemv.LatinHypercube{
			Q:   distmv.NewUniform(intervals, src),
			Src: src,
		},
	}, nil
}

// Names returns the free parameter names in column order.
func (s *LHSSampler) Names() []string {
	return append([]string(nil), s.names...)
}

// Sample returns Merge(baseline, draw).
func (s *LHSSampler) Sample() model.Params {
	var row []float64
	switch s.mode {
	case SamplingDesign:
		if s.design == nil || s.next >= s.designSize {
			s.design = mat.NewDense(s.designSize, len(s.names), nil)
			s.lhs.Sample(s.design)
			s.next = 0
		}
		row = s.design.RawRowView(s.next)
		s.next++
	default:
		one := mat.NewDense(1, len(s.names), nil)
		s.lhs.Sample(one)
		row = one.RawRowView(0)
	}

	draw := make(model.Params, len(s.names))
	for i, n := range s.names {
		draw[n] = row[i]
	}
	return model.Merge(s.baseline, draw)
}
