// Package report writes calibration, scenario and sweep results as CSV,
// LaTeX, HTML charts and PNG plots.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/vaxsim/internal/analysis"
	"github.com/banshee-data/vaxsim/internal/calibration"
	"github.com/banshee-data/vaxsim/internal/model"
)

// File names written under the output directory.
const (
	AcceptedParamsFile    = "accepted_params.csv"
	ScenarioAnalysisFile  = "scenario_analysis.csv"
	ScenarioTableFile     = "scenario_analysis.tex"
	CalibrationChartsFile = "calibration.html"
)

// NA is written for values that do not apply.
const NA = "NA"

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return NA
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteAcceptedParams writes one row per accepted sample: the free
// parameters in names order followed by the distance.
func WriteAcceptedParams(w io.Writer, names []string, res *calibration.Result) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), names...), "distance")
	if err := cw.Write(header); err != nil {
		return err
	}
	table := res.Table(names)
	for i, row := range table {
		rec := make([]string, 0, len(row)+1)
		for _, v := range row {
			rec = append(rec, formatFloat(v))
		}
		rec = append(rec, formatFloat(res.Accepted[i].Distance))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteScenarioResults writes the scenario comparison table.
func WriteScenarioResults(w io.Writer, results []analysis.ScenarioResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ScenarioHeaders()); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(scenarioRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ScenarioHeaders returns the column names of the scenario table.
func ScenarioHeaders() []string {
	return []string{"scenario", "vax_rate", "vax_period", "I0", "remarks",
		"total_infections", "infections_averted_pct", "min_protected_fraction"}
}

func scenarioRow(r analysis.ScenarioResult) []string {
	remarks := r.Remarks
	if remarks == "" {
		remarks = NA
	}
	return []string{
		r.Scenario,
		formatFloat(r.VaxRate),
		formatFloat(r.VaxPeriod),
		formatFloat(r.I0),
		remarks,
		formatFloat(r.TotalInfections),
		formatFixed(r.InfectionsAverted, 2),
		formatFixed(r.ProtectedFraction, 4),
	}
}

func formatFixed(v float64, prec int) string {
	if math.IsNaN(v) {
		return NA
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// WriteSweep writes one row per evaluated sweep cell.
func WriteSweep(w io.Writer, res *analysis.SweepResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{res.XName, res.YName, res.Metric}); err != nil {
		return err
	}
	for _, p := range res.Points {
		if err := cw.Write([]string{formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrajectory writes the daily S, I, R and V counts.
func WriteTrajectory(w io.Writer, traj *model.Trajectory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"day", "S", "I", "R", "V"}); err != nil {
		return err
	}
	for d := 0; d < traj.Len(); d++ {
		st := traj.At(d)
		rec := []string{strconv.Itoa(d), strconv.Itoa(st.S), strconv.Itoa(st.I), strconv.Itoa(st.R), strconv.Itoa(st.V)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates dir/name and fills it with write.
func WriteFile(dir, name string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
