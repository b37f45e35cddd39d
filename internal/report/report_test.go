package report

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/plotter"

	"github.com/banshee-data/vaxsim/internal/analysis"
	"github.com/banshee-data/vaxsim/internal/calibration"
	"github.com/banshee-data/vaxsim/internal/model"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func sampleResult() *calibration.Result {
	return &calibration.Result{
		Accepted: []calibration.Sample{
			{Index: 1, Params: model.Params{"vax_rate": 0.011, "I0": 10}, Distance: 0.1},
			{Index: 4, Params: model.Params{"vax_rate": 0.019}, Distance: 0.25},
		},
		AcceptedDistances: []float64{0.1, 0.25},
		RejectedDistances: []float64{0.6, 0.9, 1.2},
		Total:             5,
	}
}

func TestWriteAcceptedParams(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAcceptedParams(&buf, []string{"vax_rate", "I0"}, sampleResult()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	want := [][]string{
		{"vax_rate", "I0", "distance"},
		{"0.011", "10", "0.1"},
		{"0.019", "NA", "0.25"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("accepted params mismatch (-want +got):\n%s", diff)
	}
}

func scenarioResults() []analysis.ScenarioResult {
	return []analysis.ScenarioResult{
		{Scenario: "baseline", VaxRate: math.NaN(), VaxPeriod: math.NaN(), I0: 10,
			TotalInfections: 30, InfectionsAverted: math.NaN(), ProtectedFraction: 0.1},
		{Scenario: "scenario_1a", VaxRate: 0.01, VaxPeriod: 30, I0: 10, Remarks: "50% & monthly",
			TotalInfections: 10, InfectionsAverted: 66.666666, ProtectedFraction: 0.23456},
	}
}

func TestWriteScenarioResults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScenarioResults(&buf, scenarioResults()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ScenarioHeaders(), rows[0])
	assert.Equal(t, []string{"baseline", "NA", "NA", "10", "NA", "30", "NA", "0.1000"}, rows[1])
	assert.Equal(t, []string{"scenario_1a", "0.01", "30", "10", "50% & monthly", "10", "66.67", "0.2346"}, rows[2])
}

func TestWriteScenarioLaTeX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScenarioLaTeX(&buf, scenarioResults()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "\\begin{table}"))
	assert.Contains(t, out, `scenario\_1a & 0.01 & 30 & 10 & 50\% \& monthly & 10 & 66.67 & 0.2346 \\`)
	assert.Contains(t, out, `baseline & NA & NA & 10 & NA & 30 & NA & 0.1000 \\`)
	assert.Contains(t, out, `infections\_averted\_pct`)
	assert.Contains(t, out, "\\end{table}")
}

func TestWriteSweep(t *testing.T) {
	res := &analysis.SweepResult{XName: "vax_rate", YName: "vax_period", Metric: "auc",
		Points: []analysis.SweepPoint{{X: 0.01, Y: 30, Value: 1.5}, {X: 0.02, Y: 30, Value: math.NaN()}}}
	var buf bytes.Buffer
	require.NoError(t, WriteSweep(&buf, res))
	assert.Equal(t, "vax_rate,vax_period,auc\n0.01,30,1.5\n0.02,30,NA\n", buf.String())
}

func TestWriteTrajectory(t *testing.T) {
	traj := &model.Trajectory{S: []int{90, 85}, I: []int{10, 12}, R: []int{0, 3}, V: []int{0, 0}}
	var buf bytes.Buffer
	require.NoError(t, WriteTrajectory(&buf, traj))
	assert.Equal(t, "day,S,I,R,V\n0,90,10,0,0\n1,85,12,3,0\n", buf.String())
}

func TestHistogram(t *testing.T) {
	h := Histogram([]float64{0, 1, 2, 3, 4, math.NaN()}, 4)
	require.Len(t, h.Counts, 4)
	assert.Equal(t, []float64{1, 1, 1, 2}, h.Counts)
	assert.Equal(t, 0.0, h.Dividers[0])
	assert.InDelta(t, 0.5, h.Centers()[0], 1e-12)

	single := Histogram([]float64{2, 2}, 3)
	assert.Equal(t, 2.0, sum(single.Counts))

	assert.Empty(t, Histogram(nil, 3).Counts)
	assert.Empty(t, Histogram([]float64{math.NaN()}, 3).Counts)
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func TestRenderPage(t *testing.T) {
	res := sampleResult()
	names := []string{"vax_rate"}
	traj := &model.Trajectory{Scenario: "baseline", S: []int{90, 85}, I: []int{10, 12}, R: []int{0, 3}, V: []int{0, 0}}
	sweep := &analysis.SweepResult{XName: "vax_rate", YName: "vax_period", Metric: "equilibrium",
		Points: []analysis.SweepPoint{{X: 0.01, Y: 30, Value: 0.4}}}

	var buf bytes.Buffer
	charts := PosteriorHistograms(names, res.Table(names), 5)
	require.Len(t, charts, 1)
	err := RenderPage(&buf, "calibration",
		DistanceHistogram(res.AcceptedDistances, res.RejectedDistances, 5),
		charts[0],
		TrajectoryChart(traj),
		SweepHeatmap(sweep, []float64{0.01, 0.02}, []float64{30}),
	)
	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "ABC distances")
	assert.Contains(t, html, "Posterior of vax_rate")

	assert.ErrorIs(t, RenderPage(&buf, "empty"), ErrNoData)
}

func TestPosteriorPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PosteriorPNG(&buf, "vax_rate", []float64{0.01, 0.012, 0.015, 0.019}, 4))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))

	assert.ErrorIs(t, PosteriorPNG(&buf, "vax_rate", nil, 4), ErrNoData)
}

func TestHistPeak(t *testing.T) {
	h, err := newHist([]float64{0, 1, 1.2, 1.4, 3, 4}, 4, vaccinatedColor)
	require.NoError(t, err)

	x, weight := histPeak(h)
	assert.Equal(t, 3.0, weight)
	assert.InDelta(t, 1.5, x, 1e-9)

	l, err := peakLine(h)
	require.NoError(t, err)
	assert.Equal(t, plotter.XYs{{X: x, Y: 0}, {X: x, Y: 3}}, l.XYs)
	assert.NotEmpty(t, l.Dashes)
}

func TestDecayPNG(t *testing.T) {
	var buf bytes.Buffer
	sample := model.DecaySample{Vaccinated: []float64{100, 150, 200, 400}, Recovered: []float64{300, 500}}
	require.NoError(t, DecayPNG(&buf, "decay", sample, 5))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))

	assert.ErrorIs(t, DecayPNG(&buf, "decay", model.DecaySample{}, 5), ErrNoData)
}

func TestWritePNGFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")

	paths, err := WritePosteriorPNGs(dir, []string{"vax_rate", "I0"}, [][]float64{{0.01, 5}, {0.02, 15}, {0.015, 10}}, 3)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "posterior_I0.png"), paths[1])

	diag := &model.Diagnostics{
		Start: model.DecaySample{},
		End:   model.DecaySample{Vaccinated: []float64{10, 20, 30}},
	}
	paths, err = WriteDecayPNGs(dir, "baseline", diag, 3)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))

	_, err = WriteDecayPNGs(dir, "baseline", nil, 3)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	path, err := WriteFile(dir, AcceptedParamsFile, func(w io.Writer) error {
		return WriteAcceptedParams(w, []string{"vax_rate"}, sampleResult())
	})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "vax_rate,distance\n"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "scenario_1a_targeted", FileName("scenario_1a", "targeted"))
	assert.Equal(t, "posterior_vax_rate", FileName("posterior", "vax_rate"))
	assert.Equal(t, "a_b_c", FileName("a/ b", "", "c"))
	assert.Equal(t, "unnamed", FileName("../", "//"))
	assert.Len(t, FileName(strings.Repeat("x", 300)), maxNameLen)
}
