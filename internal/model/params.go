// Package model implements the discrete-time stochastic SIRSV outbreak model
// with Weibull-distributed immunity waning for recovered and vaccinated
// animals.
//
// A simulation is a pure function of its parameter vector and random seed:
// the same Params and seed always produce the same S, I, R, V series.
package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Well-known parameter names.
const (
	ParamS0         = "S0"
	ParamI0         = "I0"
	ParamR0         = "R0"
	ParamV0         = "V0"
	ParamDays       = "days"
	ParamBeta       = "beta"
	ParamGamma      = "gamma"
	ParamVaxRate    = "vax_rate"
	ParamVaxPeriod  = "vax_period"
	ParamVaxWindow  = "vax_window"
	ParamRecShape   = "rec_shape"
	ParamRecScale   = "rec_scale"
	ParamVaxShape   = "vax_shape"
	ParamVaxScale   = "vax_scale"
	ParamSeedRate   = "seed_rate"
	ParamSeedMinDay = "seed_min_day"
)

// Defaults applied when a parameter is absent from the vector.
var defaultParams = Params{
	ParamS0:         0,
	ParamI0:         0,
	ParamR0:         0,
	ParamV0:         0,
	ParamDays:       365,
	ParamBeta:       0.3,
	ParamGamma:      0.1,
	ParamVaxRate:    0,
	ParamVaxPeriod:  0,
	ParamVaxWindow:  1,
	ParamRecShape:   2,
	ParamRecScale:   365,
	ParamVaxShape:   2,
	ParamVaxScale:   180,
	ParamSeedRate:   0,
	ParamSeedMinDay: 0,
}

// ErrConfig marks configuration errors: unknown seeding methods or missing
// inputs a method depends on. Not recoverable within the call.
var ErrConfig = errors.New("configuration error")

// ParamError reports an invalid parameter value.
type ParamError struct {
	Name   string
	Value  float64
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%g: %s", e.Name, e.Value, e.Reason)
}

// Params is a parameter vector keyed by parameter name.
type Params map[string]float64

// Merge returns a new vector holding base overlaid with override.
// Values in override always win for overlapping keys.
func Merge(base, override Params) Params {
	out := make(Params, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	return Merge(p, nil)
}

// Get returns the named value, falling back to the model default.
func (p Params) Get(name string) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return defaultParams[name]
}

// Int returns the named value rounded to the nearest integer.
func (p Params) Int(name string) int {
	return int(math.Round(p.Get(name)))
}

// Population returns S0+I0+R0+V0.
func (p Params) Population() int {
	return p.Int(ParamS0) + p.Int(ParamI0) + p.Int(ParamR0) + p.Int(ParamV0)
}

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks the values the simulation depends on.
func (p Params) Validate() error {
	for _, name := range []string{ParamS0, ParamI0, ParamR0, ParamV0} {
		if v := p.Get(name); v < 0 || math.IsNaN(v) {
			return &ParamError{Name: name, Value: v, Reason: "compartment size must be non-negative"}
		}
	}
	if p.Population() <= 0 {
		return &ParamError{Name: ParamS0, Value: p.Get(ParamS0), Reason: "total population must be positive"}
	}
	if d := p.Get(ParamDays); d < 1 {
		return &ParamError{Name: ParamDays, Value: d, Reason: "horizon must be at least one day"}
	}
	for _, name := range []string{ParamRecShape, ParamRecScale, ParamVaxShape, ParamVaxScale} {
		if v := p.Get(name); !(v > 0) {
			return &ParamError{Name: name, Value: v, Reason: "Weibull shape and scale must be positive"}
		}
	}
	for _, name := range []string{ParamBeta, ParamGamma, ParamVaxRate, ParamSeedRate} {
		if v := p.Get(name); v < 0 || math.IsNaN(v) {
			return &ParamError{Name: name, Value: v, Reason: "rate must be non-negative"}
		}
	}
	if w := p.Get(ParamVaxWindow); w < 1 {
		return &ParamError{Name: ParamVaxWindow, Value: w, Reason: "campaign window must be at least one day"}
	}
	return nil
}
