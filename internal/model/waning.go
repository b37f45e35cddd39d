package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Waning describes the time from entering R or V until reverting to S as a
// Weibull distribution in days.
type Waning struct {
	Shape float64
	Scale float64
	Src   rand.Source
}

func (w Waning) dist() distuv.Weibull {
	return distuv.Weibull{K: w.Shape, Lambda: w.Scale, Src: w.Src}
}

// Survival returns the probability that immunity lasts longer than age days.
func (w Waning) Survival(age float64) float64 {
	if age <= 0 {
		return 1
	}
	return w.dist().Survival(age)
}

// Hazard returns the probability that an individual protected for age days
// loses protection before reaching age+1. Computed in log space so that old
// cohorts do not divide by an underflowed survival.
func (w Waning) Hazard(age int) float64 {
	if age < 0 {
		return 0
	}
	a := float64(age)
	cumA := math.Pow(a/w.Scale, w.Shape)
	cumB := math.Pow((a+1)/w.Scale, w.Shape)
	h := -math.Expm1(cumA - cumB)
	switch {
	case math.IsNaN(h):
		return 1
	case h < 0:
		return 0
	case h > 1:
		return 1
	}
	return h
}

// HazardTable returns Hazard(a) for a in [0, n).
func (w Waning) HazardTable(n int) []float64 {
	table := make([]float64, n)
	for a := range table {
		table[a] = w.Hazard(a)
	}
	return table
}

// Draw samples a fresh time to immunity loss.
func (w Waning) Draw() float64 {
	return w.dist().Rand()
}

// DrawGiven samples a time to immunity loss, measured from entry, for an
// individual already protected for age days.
func (w Waning) DrawGiven(age float64) float64 {
	if age <= 0 {
		return w.Draw()
	}
	e := distuv.Exponential{Rate: 1, Src: w.Src}.Rand()
	return w.Scale * math.Pow(math.Pow(age/w.Scale, w.Shape)+e, 1/w.Shape)
}
