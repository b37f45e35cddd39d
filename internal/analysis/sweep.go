package analysis

import (
	"math"

	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/monitoring"
)

// SweepSimulator runs the model for one sweep cell.
type SweepSimulator func(p model.Params) (*model.Trajectory, error)

// SweepPoint is one evaluated cell.
type SweepPoint struct {
	X, Y  float64
	Value float64
}

// SweepResult holds the evaluated cells of a two-parameter sweep.
type SweepResult struct {
	XName, YName string
	Metric       string
	Points       []SweepPoint
	Skipped      int
}

// SweepSpec describes a two-parameter sweep.
type SweepSpec struct {
	XName  string
	XRange []float64
	YName  string
	YRange []float64

	// Diagonal sets both parameters to the element-wise minimum of the two
	// ranges instead of evaluating the full grid.
	Diagonal bool
	Metric   Metric
}

// Cells returns the number of simulations the sweep runs.
func (s SweepSpec) Cells() int {
	if s.Diagonal {
		return min(len(s.XRange), len(s.YRange))
	}
	return len(s.XRange) * len(s.YRange)
}

// RunParameterSweep evaluates spec.Metric over the sweep. Cells whose
// simulation fails or whose trajectory holds NaN are logged and skipped.
// progress, if non-nil, is called after every cell.
func RunParameterSweep(sim SweepSimulator, base model.Params, spec SweepSpec, log monitoring.Logger, progress func(done, total int)) *SweepResult {
	log = monitoring.OrNop(log)
	if spec.Metric.Fn == nil {
		spec.Metric = MetricEquilibrium
	}
	res := &SweepResult{XName: spec.XName, YName: spec.YName, Metric: spec.Metric.Name}
	total := spec.Cells()
	done := 0

	eval := func(x, y float64) {
		defer func() {
			done++
			if progress != nil {
				progress(done, total)
			}
		}()
		p := model.Merge(base, model.Params{spec.XName: x, spec.YName: y})
		traj, err := sim(p)
		if err != nil {
			log.Errorf("error occurred for %s=%g and %s=%g: %v", spec.XName, x, spec.YName, y, err)
			res.Skipped++
			return
		}
		if trajectoryHasNaN(traj) {
			log.Warnf("NaN detected for %s=%g and %s=%g, skipping this run", spec.XName, x, spec.YName, y)
			res.Skipped++
			return
		}
		res.Points = append(res.Points, SweepPoint{X: x, Y: y, Value: spec.Metric.Fn(traj)})
	}

	if spec.Diagonal {
		for i := 0; i < total; i++ {
			v := math.Min(spec.XRange[i], spec.YRange[i])
			eval(v, v)
		}
	} else {
		for _, x := range spec.XRange {
			for _, y := range spec.YRange {
				eval(x, y)
			}
		}
	}
	log.Infof("parameter sweep %s x %s: %d points, %d skipped", spec.XName, spec.YName, len(res.Points), res.Skipped)
	return res
}

// trajectoryHasNaN reports whether the derived protected series is undefined
// anywhere, which happens when a day has no non-infected animals.
func trajectoryHasNaN(traj *model.Trajectory) bool {
	if traj == nil || traj.Len() == 0 {
		return true
	}
	return model.HasNaN(traj.Protected())
}

// Grid reshapes the points into a len(ys) x len(xs) matrix indexed [y][x].
// Missing cells are NaN.
func (r *SweepResult) Grid(xs, ys []float64) [][]float64 {
	grid := make([][]float64, len(ys))
	for j := range grid {
		grid[j] = make([]float64, len(xs))
		for i := range grid[j] {
			grid[j][i] = math.NaN()
		}
	}
	for _, p := range r.Points {
		i, j := indexOf(xs, p.X), indexOf(ys, p.Y)
		if i >= 0 && j >= 0 {
			grid[j][i] = p.Value
		}
	}
	return grid
}

func indexOf(xs []float64, v float64) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
