package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Stream identifiers keep independent uses of one seed from sharing state.
const (
	streamDynamics uint64 = iota + 1
	streamSchedule
	streamDiagnostics
)

// newSource returns a PCG source for the given seed and stream.
func newSource(seed, stream uint64) *rand.PCG {
	return rand.NewPCG(seed, 0x9e3779b97f4a7c15*stream)
}

// Sampler draws the integer-valued random quantities of the model.
type Sampler struct {
	src rand.Source
}

// NewSampler wraps src. The sampler is not safe for concurrent use.
func NewSampler(src rand.Source) *Sampler {
	return &Sampler{src: src}
}

// Binomial draws from Binomial(n, p), clamped to [0, n].
func (s *Sampler) Binomial(n int, p float64) int {
	switch {
	case n <= 0 || !(p > 0):
		return 0
	case p >= 1:
		return n
	}
	k := int(math.Round(distuv.Binomial{N: float64(n), P: p, Src: s.src}.Rand()))
	return clamp(k, 0, n)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
