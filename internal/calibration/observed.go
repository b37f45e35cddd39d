// Package calibration fits free model parameters to field serology with
// Approximate Bayesian Computation (ABC) rejection sampling.
package calibration

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Epoch is the reference date for Observation.Time.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// Observation is one row of field data.
type Observation struct {
	Date   time.Time
	Time   int // whole days since Epoch
	Sero   float64
	DIVA   float64
	InfObs float64 // NaN when not reported
}

// Observed is the cleaned observation series, in file order.
type Observed struct {
	Rows []Observation
}

// Len returns the number of usable observations.
func (o *Observed) Len() int { return len(o.Rows) }

// Sero returns the seroprevalence series.
func (o *Observed) Sero() []float64 {
	out := make([]float64, len(o.Rows))
	for i, r := range o.Rows {
		out[i] = r.Sero
	}
	return out
}

// DIVA returns the DIVA prevalence series.
func (o *Observed) DIVA() []float64 {
	out := make([]float64, len(o.Rows))
	for i, r := range o.Rows {
		out[i] = r.DIVA
	}
	return out
}

// ErrNoObservations is returned when no row survives cleaning.
var ErrNoObservations = errors.New("no usable observations")

// LoadObservedFile reads observations from a CSV file.
func LoadObservedFile(path string) (*Observed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open observed data: %w", err)
	}
	defer f.Close()
	obs, err := LoadObserved(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obs, nil
}

// LoadObserved parses CSV with a header containing date, sero and diva and
// optionally inf_obs. Rows whose sero or diva is empty or NaN are dropped.
func LoadObserved(r io.Reader) (*Observed, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"date", "sero", "diva"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	infCol, hasInf := col["inf_obs"]

	field := func(rec []string, i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var out Observed
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := parseDate(field(rec, col["date"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sero, ok, err := parseOptional(field(rec, col["sero"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: sero: %w", line, err)
		}
		if !ok {
			continue
		}
		diva, ok, err := parseOptional(field(rec, col["diva"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: diva: %w", line, err)
		}
		if !ok {
			continue
		}
		inf := math.NaN()
		if hasInf {
			if v, ok, err := parseOptional(field(rec, infCol)); err != nil {
				return nil, fmt.Errorf("line %d: inf_obs: %w", line, err)
			} else if ok {
				inf = v
			}
		}

		out.Rows = append(out.Rows, Observation{
			Date:   date,
			Time:   int(math.Floor(date.Sub(Epoch).Hours() / 24)),
			Sero:   sero,
			DIVA:   diva,
			InfObs: inf,
		})
	}
	if len(out.Rows) == 0 {
		return nil, ErrNoObservations
	}
	return &out, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// parseOptional returns ok=false for empty or NaN cells.
func parseOptional(s string) (float64, bool, error) {
	if s == "" || strings.EqualFold(s, "na") {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}
