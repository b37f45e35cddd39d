package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vaxsim/internal/model"
)

func TestDistance(t *testing.T) {
	x := []float64{0.1, 0.2, 0.3}
	y := []float64{0.0, 0.1, 0.2}
	assert.Zero(t, Distance(x, y, x, y))

	// Simulated series are longer than observed and get truncated.
	got := Distance([]float64{0, 0}, []float64{0, 0}, []float64{1, 1, 5}, []float64{0, 2, 9})
	assert.InDelta(t, 1+2, got, 1e-12)

	assert.True(t, math.IsNaN(Distance(nil, nil, x, y)))
	assert.True(t, math.IsNaN(Distance(x, y, []float64{math.NaN()}, []float64{0})))
}

func TestDistance_NonNegative(t *testing.T) {
	a := []float64{0.5, 0.1, 0.9, 0.3}
	b := []float64{0.2, 0.4, 0.1, 0.8}
	assert.GreaterOrEqual(t, Distance(a, b, b, a), 0.0)
}

func TestBounds_Validate(t *testing.T) {
	assert.NoError(t, Bounds{"a": {0, 1}, "b": {2, 2}}.Validate())
	assert.ErrorIs(t, Bounds{"a": {1, 0}}.Validate(), model.ErrConfig)
	assert.ErrorIs(t, Bounds{}.Validate(), model.ErrConfig)
	assert.Equal(t, []string{"a", "b", "c"}, Bounds{"c": {}, "a": {}, "b": {}}.Names())
}

func TestLHSSampler_WithinBoundsOverBaseline(t *testing.T) {
	bounds := Bounds{
		model.ParamVaxRate: {0.01, 0.02},
		model.ParamBeta:    {0.1, 0.5},
	}
	baseline := model.Params{model.ParamS0: 9000, model.ParamBeta: 99}
	s, err := NewLHSSampler(bounds, baseline, SamplingPerCall, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{model.ParamBeta, model.ParamVaxRate}, s.Names())

	for i := 0; i < 200; i++ {
		p := s.Sample()
		assert.True(t, bounds.Contains(p), "sample %d out of bounds: %v", i, p)
		assert.Equal(t, 9000.0, p[model.ParamS0])
	}
	assert.Equal(t, 99.0, baseline[model.ParamBeta], "baseline must not be modified")
}

func TestLHSSampler_Deterministic(t *testing.T) {
	bounds := Bounds{"a": {0, 1}, "b": {-1, 1}}
	s1, err := NewLHSSampler(bounds, nil, SamplingPerCall, 0, 9)
	require.NoError(t, err)
	s2, err := NewLHSSampler(bounds, nil, SamplingPerCall, 0, 9)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, s1.Sample(), s2.Sample())
	}
}

func TestLHSSampler_DesignIsStratified(t *testing.T) {
	const size = 10
	s, err := NewLHSSampler(Bounds{"a": {0, 1}}, nil, SamplingDesign, size, 4)
	require.NoError(t, err)

	seen := make(map[int]bool, size)
	for i := 0; i < size; i++ {
		v := s.Sample()["a"]
		seen[int(math.Floor(v*size))] = true
	}
	assert.Len(t, seen, size, "each decile is hit exactly once")

	// The design refills after it is exhausted.
	p := s.Sample()
	assert.True(t, Bounds{"a": {0, 1}}.Contains(p))
}

func TestParseSamplingMode(t *testing.T) {
	m, err := ParseSamplingMode("")
	require.NoError(t, err)
	assert.Equal(t, SamplingPerCall, m)
	m, err = ParseSamplingMode("design")
	require.NoError(t, err)
	assert.Equal(t, SamplingDesign, m)
	_, err = ParseSamplingMode("sobol")
	assert.ErrorIs(t, err, model.ErrConfig)
}
