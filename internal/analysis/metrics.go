package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"github.com/banshee-data/vaxsim/internal/model"
)

// DefaultHerdThreshold is the protected fraction needed for herd immunity.
const DefaultHerdThreshold = 0.4

// EquilibriumWindow is the trailing window, in days, used for long-run
// protection.
const EquilibriumWindow = 365

// TotalInfections sums the positive day-on-day increments of I.
func TotalInfections(infected []int) float64 {
	var total float64
	for t := 1; t < len(infected); t++ {
		if d := infected[t] - infected[t-1]; d > 0 {
			total += float64(d)
		}
	}
	return total
}

// AUCBelowThreshold integrates threshold - min(protected, threshold) over
// time in months with Simpson's rule. Days where the protected fraction is
// undefined contribute nothing.
func AUCBelowThreshold(traj *model.Trajectory, threshold float64) float64 {
	protected := traj.Protected()
	n := len(protected)
	if n < 2 {
		return 0
	}
	x := make([]float64, n)
	f := make([]float64, n)
	for d, p := range protected {
		x[d] = float64(d) / 30
		if !math.IsNaN(p) {
			f[d] = threshold - math.Min(p, threshold)
		}
	}
	if n == 2 {
		return integrate.Trapezoidal(x, f)
	}
	return integrate.Simpsons(x, f)
}

// EquilibriumMinProtected returns the minimum of min(protected, 1) over the
// last EquilibriumWindow days, or NaN when no day is defined.
func EquilibriumMinProtected(traj *model.Trajectory) float64 {
	return minTail(traj.Protected(), EquilibriumWindow, 1)
}

// MinProtectedFraction returns the minimum of (R+V)/N over the last
// EquilibriumWindow days, with N the daily population.
func MinProtectedFraction(traj *model.Trajectory) float64 {
	frac := make([]float64, traj.Len())
	for d := range frac {
		st := traj.At(d)
		if n := st.Total(); n > 0 {
			frac[d] = float64(st.R+st.V) / float64(n)
		} else {
			frac[d] = math.NaN()
		}
	}
	return minTail(frac, EquilibriumWindow, math.Inf(1))
}

func minTail(xs []float64, window int, ceiling float64) float64 {
	if len(xs) > window {
		xs = xs[len(xs)-window:]
	}
	defined := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) {
			defined = append(defined, math.Min(v, ceiling))
		}
	}
	if len(defined) == 0 {
		return math.NaN()
	}
	return floats.Min(defined)
}

// Metric scores one trajectory for a parameter sweep.
type Metric struct {
	Name string
	Fn   func(*model.Trajectory) float64
}

// Built-in sweep metrics.
var (
	MetricAUC = Metric{Name: "auc", Fn: func(t *model.Trajectory) float64 {
		return AUCBelowThreshold(t, DefaultHerdThreshold)
	}}
	MetricEquilibrium = Metric{Name: "equilibrium", Fn: EquilibriumMinProtected}
)

// MetricByName returns auc or equilibrium; anything else falls back to
// equilibrium.
func MetricByName(name string) Metric {
	if name == MetricAUC.Name {
		return MetricAUC
	}
	return MetricEquilibrium
}
