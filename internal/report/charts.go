package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/vaxsim/internal/analysis"
	"github.com/banshee-data/vaxsim/internal/calibration"
	"github.com/banshee-data/vaxsim/internal/model"
)

// DefaultBins is the histogram bin count used by the charts.
const DefaultBins = 30

// ErrNoData is returned when a chart has nothing to show.
var ErrNoData = errors.New("no data to plot")

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Bins is a fixed-width histogram.
type Bins struct {
	Dividers []float64 // len(Counts)+1 edges
	Counts   []float64
}

// Centers returns the midpoints of the bins.
func (b Bins) Centers() []float64 {
	out := make([]float64, len(b.Counts))
	for i := range out {
		out[i] = (b.Dividers[i] + b.Dividers[i+1]) / 2
	}
	return out
}

// Histogram bins the finite values of xs into n equal-width bins spanning
// their range. The maximum falls into the last bin.
func Histogram(xs []float64, n int) Bins {
	vals := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			vals = append(vals, x)
		}
	}
	if len(vals) == 0 || n < 1 {
		return Bins{}
	}
	sort.Float64s(vals)
	lo, hi := vals[0], vals[len(vals)-1]
	if lo == hi {
		hi = lo + 1
	}
	dividers := floats.Span(make([]float64, n+1), lo, hi)
	dividers[n] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, vals, nil)
	return Bins{Dividers: dividers, Counts: counts}
}

func histogramBar(title, series string, xs []float64, bins int) *charts.Bar {
	h := Histogram(xs, bins)
	labels := make([]string, len(h.Counts))
	for i, c := range h.Centers() {
		labels[i] = strconv.FormatFloat(c, 'g', 4, 64)
	}
	data := make([]opts.BarData, len(h.Counts))
	for i, c := range h.Counts {
		data[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("n=%d bins=%d", len(xs), bins)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: series, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)
	bar.SetXAxis(labels).AddSeries(series, data)
	return bar
}

// DistanceHistogram charts accepted and rejected distances side by side.
func DistanceHistogram(accepted, rejected []float64, bins int) *charts.Bar {
	all := append(append([]float64(nil), accepted...), rejected...)
	h := Histogram(all, bins)
	labels := make([]string, len(h.Counts))
	for i, c := range h.Centers() {
		labels[i] = strconv.FormatFloat(c, 'g', 4, 64)
	}
	series := func(xs []float64) []opts.BarData {
		counts := make([]float64, len(h.Counts))
		if len(h.Counts) > 0 {
			sorted := finiteSorted(xs)
			counts = stat.Histogram(counts, h.Dividers, sorted, nil)
		}
		data := make([]opts.BarData, len(counts))
		for i, c := range counts {
			data[i] = opts.BarData{Value: c}
		}
		return data
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ABC distances", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "ABC distances", Subtitle: fmt.Sprintf("accepted=%d rejected=%d", len(accepted), len(rejected))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "distance", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(labels).
		AddSeries("accepted", series(accepted)).
		AddSeries("rejected", series(rejected))
	return bar
}

func finiteSorted(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	sort.Float64s(out)
	return out
}

// PosteriorHistograms returns one histogram per column of table.
func PosteriorHistograms(names []string, table [][]float64, bins int) []*charts.Bar {
	out := make([]*charts.Bar, len(names))
	for j, name := range names {
		col := make([]float64, len(table))
		for i, row := range table {
			col[i] = row[j]
		}
		out[j] = histogramBar("Posterior of "+name, name, col, bins)
	}
	return out
}

// TrajectoryChart plots the daily compartment counts.
func TrajectoryChart(traj *model.Trajectory) *charts.Line {
	days := make([]int, traj.Len())
	for d := range days {
		days[d] = d
	}
	lineData := func(xs []int) []opts.LineData {
		out := make([]opts.LineData, len(xs))
		for i, v := range xs {
			out[i] = opts.LineData{Value: v}
		}
		return out
	}
	title := traj.Scenario
	if title == "" {
		title = "trajectory"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d days", traj.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "day", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "animals"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(days).
		AddSeries("S", lineData(traj.S)).
		AddSeries("I", lineData(traj.I)).
		AddSeries("R", lineData(traj.R)).
		AddSeries("V", lineData(traj.V))
	return line
}

// SweepHeatmap charts the sweep metric over the x/y grid. Skipped cells are
// left empty.
func SweepHeatmap(res *analysis.SweepResult, xs, ys []float64) *charts.HeatMap {
	grid := res.Grid(xs, ys)
	data := make([]opts.HeatMapData, 0, len(res.Points))
	minV, maxV := math.Inf(1), math.Inf(-1)
	for j := range grid {
		for i, v := range grid[j] {
			if math.IsNaN(v) {
				continue
			}
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, v}})
		}
	}
	if len(data) == 0 {
		minV, maxV = 0, 1
	}
	labels := func(vs []float64) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = strconv.FormatFloat(v, 'g', 4, 64)
		}
		return out
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Parameter sweep", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Parameter sweep: " + res.Metric, Subtitle: fmt.Sprintf("%d points, %d skipped", len(res.Points), res.Skipped)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: labels(xs), Name: res.XName, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels(ys), Name: res.YName}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minV),
			Max:        float32(maxV),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.SetXAxis(labels(xs)).AddSeries(res.Metric, data)
	return hm
}

// CalibrationCharts returns the distance histogram followed by one posterior
// histogram per parameter.
func CalibrationCharts(res *calibration.Result, names []string, bins int) []components.Charter {
	out := []components.Charter{DistanceHistogram(res.AcceptedDistances, res.RejectedDistances, bins)}
	for _, c := range PosteriorHistograms(names, res.Table(names), bins) {
		out = append(out, c)
	}
	return out
}

// RenderPage renders the charts as one HTML page.
func RenderPage(w io.Writer, title string, cs ...components.Charter) error {
	if len(cs) == 0 {
		return ErrNoData
	}
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(cs...)
	return page.Render(w)
}
