package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/vaxsim/internal/model"
)

var (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch

	vaccinatedColor = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	recoveredColor  = color.RGBA{R: 181, G: 222, B: 43, A: 255}
	peakColor       = color.RGBA{R: 200, G: 30, B: 30, A: 255}
)

// histPeak returns the centre and weight of the heaviest bin. Ties go to
// the lowest bin.
func histPeak(h *plotter.Histogram) (x, weight float64) {
	for i, b := range h.Bins {
		if i == 0 || b.Weight > weight {
			x, weight = (b.Min+b.Max)/2, b.Weight
		}
	}
	return x, weight
}

func peakLine(h *plotter.Histogram) (*plotter.Line, error) {
	x, weight := histPeak(h)
	l, err := plotter.NewLine(plotter.XYs{{X: x, Y: 0}, {X: x, Y: weight}})
	if err != nil {
		return nil, err
	}
	l.Color = peakColor
	l.Width = vg.Points(1.5)
	l.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
	return l, nil
}

func newHist(values []float64, bins int, fill color.Color) (*plotter.Histogram, error) {
	finite := finiteSorted(values)
	if len(finite) == 0 {
		return nil, ErrNoData
	}
	h, err := plotter.NewHist(plotter.Values(finite), bins)
	if err != nil {
		return nil, err
	}
	h.FillColor = fill
	h.LineStyle.Width = vg.Points(0.5)
	return h, nil
}

func writePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// PosteriorPNG draws the accepted values of one parameter as a histogram,
// with a dashed line at the centre of its modal bin.
func PosteriorPNG(w io.Writer, name string, values []float64, bins int) error {
	h, err := newHist(values, bins, vaccinatedColor)
	if err != nil {
		return fmt.Errorf("posterior %s: %w", name, err)
	}
	peak, err := peakLine(h)
	if err != nil {
		return fmt.Errorf("posterior %s: %w", name, err)
	}
	p := plot.New()
	p.Title.Text = "Posterior of " + name
	p.X.Label.Text = name
	p.Y.Label.Text = "count"
	p.Legend.Top = true
	p.Add(h, peak)
	p.Legend.Add("Peak", peak)
	return writePNG(p, w)
}

// DecayPNG overlays the decay-time distributions of vaccinated and
// recovered animals.
func DecayPNG(w io.Writer, title string, sample model.DecaySample, bins int) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "decay time (days)"
	p.Y.Label.Text = "animals"
	p.Legend.Top = true

	drawn := 0
	for _, s := range []struct {
		name   string
		values []float64
		fill   color.Color
	}{
		{"vaccinated", sample.Vaccinated, vaccinatedColor},
		{"recovered", sample.Recovered, recoveredColor},
	} {
		h, err := newHist(s.values, bins, s.fill)
		if errors.Is(err, ErrNoData) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s decay: %w", s.name, err)
		}
		p.Add(h)
		p.Legend.Add(s.name, h)
		drawn++
	}
	if drawn == 0 {
		return ErrNoData
	}
	return writePNG(p, w)
}

// WritePosteriorPNGs writes posterior_<name>.png for every column of table
// and returns the paths written.
func WritePosteriorPNGs(dir string, names []string, table [][]float64, bins int) ([]string, error) {
	var paths []string
	for j, name := range names {
		col := make([]float64, len(table))
		for i, row := range table {
			col[i] = row[j]
		}
		path, err := WriteFile(dir, FileName("posterior", name)+".png", func(w io.Writer) error {
			return PosteriorPNG(w, name, col, bins)
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteDecayPNGs writes the start and end decay-time histograms of a
// diagnosis run.
func WriteDecayPNGs(dir, scenario string, diag *model.Diagnostics, bins int) ([]string, error) {
	if diag == nil {
		return nil, ErrNoData
	}
	var paths []string
	for _, d := range []struct {
		label  string
		sample model.DecaySample
	}{{"start", diag.Start}, {"end", diag.End}} {
		if len(finiteSorted(d.sample.Vaccinated))+len(finiteSorted(d.sample.Recovered)) == 0 {
			continue
		}
		name := FileName(scenario, "decay", d.label) + ".png"
		path, err := WriteFile(dir, name, func(w io.Writer) error {
			return DecayPNG(w, fmt.Sprintf("%s decay times (%s)", scenario, d.label), d.sample, bins)
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
