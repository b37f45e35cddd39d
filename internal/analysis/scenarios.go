package analysis

import (
	"math"

	"github.com/banshee-data/vaxsim/internal/config"
	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/monitoring"
)

// SimulateFunc runs one scenario.
type SimulateFunc func(sc *config.Scenario) (*model.Trajectory, error)

// ScenarioResult is one row of the scenario comparison. Fields that do not
// apply hold NaN and render as NA.
type ScenarioResult struct {
	Scenario          string
	VaxRate           float64
	VaxPeriod         float64
	I0                float64
	Remarks           string
	TotalInfections   float64
	InfectionsAverted float64 // percent relative to baseline
	ProtectedFraction float64 // min (R+V)/N over the final year
}

// AnalyseScenarios runs every scenario and compares it to the one named
// baseline. A scenario that fails to simulate is logged and left out.
func AnalyseScenarios(sim SimulateFunc, scenarios []*config.Scenario, log monitoring.Logger) []ScenarioResult {
	log = monitoring.OrNop(log)

	type run struct {
		sc   *config.Scenario
		traj *model.Trajectory
	}
	var runs []run
	baselineInfections := math.NaN()
	for _, sc := range scenarios {
		log.Infof("running scenario %s with params %v", sc.Name, sc.Params)
		traj, err := sim(sc)
		if err != nil {
			log.Errorf("error running scenario %s: %v", sc.Name, err)
			continue
		}
		runs = append(runs, run{sc: sc, traj: traj})
		if sc.Name == "baseline" {
			baselineInfections = TotalInfections(traj.I)
		}
	}

	results := make([]ScenarioResult, 0, len(runs))
	for _, r := range runs {
		total := TotalInfections(r.traj.I)
		res := ScenarioResult{
			Scenario:          r.sc.Name,
			VaxRate:           paramOrNaN(r.sc.Params, model.ParamVaxRate),
			VaxPeriod:         paramOrNaN(r.sc.Params, model.ParamVaxPeriod),
			I0:                paramOrNaN(r.sc.Params, model.ParamI0),
			Remarks:           r.sc.Remarks,
			TotalInfections:   total,
			InfectionsAverted: math.NaN(),
			ProtectedFraction: MinProtectedFraction(r.traj),
		}
		if res.I0 > 0 && r.sc.Name != "baseline" && baselineInfections > total {
			res.InfectionsAverted = (baselineInfections - total) / baselineInfections * 100
		}
		results = append(results, res)
	}
	log.Infof("analysed %d of %d scenarios", len(results), len(scenarios))
	return results
}

func paramOrNaN(p model.Params, name string) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return math.NaN()
}
