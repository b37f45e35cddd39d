package model

import "math"

// State holds the compartment counts for one day.
type State struct {
	S, I, R, V int
}

// Total returns S+I+R+V.
func (st State) Total() int {
	return st.S + st.I + st.R + st.V
}

// DecaySample holds decay times, in days since entry, for the animals in the
// vaccinated and recovered compartments at one point of a run.
type DecaySample struct {
	Vaccinated []float64
	Recovered  []float64
}

// Diagnostics are the waning-time samples recorded in diagnosis mode.
type Diagnostics struct {
	Start DecaySample
	End   DecaySample
}

// Trajectory is the daily output of a simulation. All four series have the
// configured horizon as length; index 0 is the initial state.
type Trajectory struct {
	Scenario    string
	S, I, R, V  []int
	Schedule    []int
	Diagnostics *Diagnostics
}

func newTrajectory(scenario string, days int) *Trajectory {
	return &Trajectory{
		Scenario: scenario,
		S:        make([]int, days),
		I:        make([]int, days),
		R:        make([]int, days),
		V:        make([]int, days),
	}
}

// Len returns the number of simulated days.
func (t *Trajectory) Len() int {
	return len(t.S)
}

// At returns the state on day d.
func (t *Trajectory) At(d int) State {
	return State{S: t.S[d], I: t.I[d], R: t.R[d], V: t.V[d]}
}

func (t *Trajectory) set(d int, st State) {
	t.S[d], t.I[d], t.R[d], t.V[d] = st.S, st.I, st.R, st.V
}

// Protected returns the daily protected fraction (R+V)/(N-I), where N is the
// daily total. Days with no non-infected animals yield NaN.
func (t *Trajectory) Protected() []float64 {
	out := make([]float64, t.Len())
	for d := range out {
		st := t.At(d)
		out[d] = ratio(st.R+st.V, st.Total()-st.I)
	}
	return out
}

// Seroprevalence returns (R+V)/(N-I) with N the initial population.
func (t *Trajectory) Seroprevalence(n int) []float64 {
	out := make([]float64, t.Len())
	for d := range out {
		out[d] = ratio(t.R[d]+t.V[d], n-t.I[d])
	}
	return out
}

// DIVA returns R/(N-I) with N the initial population. Vaccine-induced
// immunity is invisible to the DIVA test.
func (t *Trajectory) DIVA(n int) []float64 {
	out := make([]float64, t.Len())
	for d := range out {
		out[d] = ratio(t.R[d], n-t.I[d])
	}
	return out
}

// Floats returns the four series as float64 slices.
func (t *Trajectory) Floats() (s, i, r, v []float64) {
	return toFloats(t.S), toFloats(t.I), toFloats(t.R), toFloats(t.V)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

func toFloats(xs []int) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

// HasNaN reports whether any value in xs is NaN.
func HasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
