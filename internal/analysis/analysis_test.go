package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vaxsim/internal/config"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/monitoring"
)

// constantTrajectory has the given daily counts for every day.
func constantTrajectory(days, s, i, r, v int) *model.Trajectory {
	t := &model.Trajectory{}
	for d := 0; d < days; d++ {
		t.S = append(t.S, s)
		t.I = append(t.I, i)
		t.R = append(t.R, r)
		t.V = append(t.V, v)
	}
	return t
}

func TestTotalInfections(t *testing.T) {
	assert.Equal(t, 0.0, TotalInfections(nil))
	assert.Equal(t, 0.0, TotalInfections([]int{5}))
	assert.Equal(t, 8.0, TotalInfections([]int{1, 4, 2, 7, 7, 6}))
}

func TestAUCBelowThreshold(t *testing.T) {
	// Protected fraction is 0.1 every day, so the shortfall is 0.3 over
	// (days-1)/30 months.
	traj := constantTrajectory(91, 90, 0, 5, 5)
	assert.InDelta(t, 0.3*3, AUCBelowThreshold(traj, 0.4), 1e-9)

	// Fully protected herd has no shortfall.
	assert.Zero(t, AUCBelowThreshold(constantTrajectory(31, 0, 0, 50, 50), 0.4))

	// Two points fall back to the trapezoid rule; one point has no area.
	assert.InDelta(t, 0.3/30, AUCBelowThreshold(constantTrajectory(2, 90, 0, 5, 5), 0.4), 1e-12)
	assert.Zero(t, AUCBelowThreshold(constantTrajectory(1, 90, 0, 5, 5), 0.4))
}

func TestEquilibriumMinProtected(t *testing.T) {
	traj := constantTrajectory(400, 50, 0, 25, 25)
	// A dip before the final year is ignored.
	traj.S[10], traj.R[10], traj.V[10] = 100, 0, 0
	assert.InDelta(t, 0.5, EquilibriumMinProtected(traj), 1e-12)

	traj.S[399], traj.R[399], traj.V[399] = 80, 10, 10
	assert.InDelta(t, 0.2, EquilibriumMinProtected(traj), 1e-12)

	allInfected := constantTrajectory(3, 0, 10, 0, 0)
	assert.True(t, math.IsNaN(EquilibriumMinProtected(allInfected)))
}

func TestMinProtectedFraction(t *testing.T) {
	traj := constantTrajectory(10, 40, 20, 20, 20)
	assert.InDelta(t, 0.4, MinProtectedFraction(traj), 1e-12)
}

func TestAnalyseScenarios(t *testing.T) {
	trajectories := map[string]*model.Trajectory{
		"baseline":    {I: []int{0, 10, 30, 20}, S: []int{90, 80, 60, 70}, R: []int{10, 10, 10, 10}, V: []int{0, 0, 0, 0}},
		"scenario_1a": {I: []int{0, 5, 10, 5}, S: []int{80, 70, 60, 65}, R: []int{10, 10, 10, 10}, V: []int{10, 15, 20, 20}},
		"scenario_1b": {I: []int{0, 40, 50, 0}, S: []int{100, 60, 50, 100}, R: []int{0, 0, 0, 0}, V: []int{0, 0, 0, 0}},
	}
	sim := func(sc *config.Scenario) (*model.Trajectory, error) {
		if sc.Name == "scenario_bad" {
			return nil, errors.New("invalid parameter")
		}
		return trajectories[sc.Name], nil
	}
	scenarios := []*config.Scenario{
		{Name: "baseline", Params: model.Params{model.ParamI0: 10}},
		{Name: "scenario_1a", Params: model.Params{model.ParamI0: 10, model.ParamVaxRate: 0.01, model.ParamVaxPeriod: 30}, Remarks: "monthly"},
		{Name: "scenario_1b", Params: model.Params{model.ParamI0: 10}},
		{Name: "scenario_bad", Params: model.Params{}},
	}

	got := AnalyseScenarios(sim, scenarios, monitoring.NewTestLogger(t))
	require.Len(t, got, 3)

	want := []ScenarioResult{
		{Scenario: "baseline", VaxRate: math.NaN(), VaxPeriod: math.NaN(), I0: 10,
			TotalInfections: 30, InfectionsAverted: math.NaN(), ProtectedFraction: 0.1},
		{Scenario: "scenario_1a", VaxRate: 0.01, VaxPeriod: 30, I0: 10, Remarks: "monthly",
			TotalInfections: 10, InfectionsAverted: 100.0 * 20 / 30, ProtectedFraction: 0.2},
		{Scenario: "scenario_1b", VaxRate: math.NaN(), VaxPeriod: math.NaN(), I0: 10,
			TotalInfections: 50, InfectionsAverted: math.NaN(), ProtectedFraction: 0},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("scenario results mismatch (-want +got):\n%s", diff)
	}
}

func TestRunParameterSweep_Grid(t *testing.T) {
	var calls []model.Params
	sim := func(p model.Params) (*model.Trajectory, error) {
		calls = append(calls, p)
		if p["a"] == 2 && p["b"] == 20 {
			return nil, errors.New("diverged")
		}
		if p["a"] == 3 && p["b"] == 10 {
			return constantTrajectory(5, 0, 10, 0, 0), nil // NaN protected fraction
		}
		r := int(p["a"] * 10)
		return constantTrajectory(5, 100-r, 0, r, 0), nil
	}
	spec := SweepSpec{XName: "a", XRange: []float64{1, 2, 3}, YName: "b", YRange: []float64{10, 20}, Metric: MetricEquilibrium}

	var progress []int
	res := RunParameterSweep(sim, model.Params{"c": 7}, spec, monitoring.NewTestLogger(t), func(done, total int) {
		assert.Equal(t, 6, total)
		progress = append(progress, done)
	})

	require.Len(t, calls, 6)
	assert.Equal(t, 7.0, calls[0]["c"])
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)
	assert.Equal(t, 2, res.Skipped)
	assert.Len(t, res.Points, 4)
	assert.Equal(t, "equilibrium", res.Metric)

	grid := res.Grid(spec.XRange, spec.YRange)
	assert.InDelta(t, 0.1, grid[0][0], 1e-12)
	assert.True(t, math.IsNaN(grid[1][1]))
	assert.True(t, math.IsNaN(grid[0][2]))
	assert.InDelta(t, 0.3, grid[1][2], 1e-12)
}

func TestRunParameterSweep_Diagonal(t *testing.T) {
	var seen [][2]float64
	sim := func(p model.Params) (*model.Trajectory, error) {
		seen = append(seen, [2]float64{p["a"], p["b"]})
		return constantTrajectory(3, 50, 0, 50, 0), nil
	}
	spec := SweepSpec{XName: "a", XRange: []float64{1, 5, 3}, YName: "b", YRange: []float64{2, 4}, Diagonal: true, Metric: MetricAUC}

	res := RunParameterSweep(sim, nil, spec, nil, nil)
	assert.Equal(t, [][2]float64{{1, 1}, {4, 4}}, seen)
	assert.Len(t, res.Points, 2)
	assert.Equal(t, "auc", res.Metric)
	assert.Equal(t, 2, spec.Cells())
}

func TestMetricByName(t *testing.T) {
	assert.Equal(t, "auc", MetricByName("auc").Name)
	assert.Equal(t, "equilibrium", MetricByName("min_protected").Name)
}
