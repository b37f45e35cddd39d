package calibration

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Distance is MSE(sero) + MSE(diva) over the common prefix of the observed
// and simulated series. It is NaN when the common length is zero.
func Distance(obsSero, obsDiva, simSero, simDiva []float64) float64 {
	n := min(len(obsSero), len(obsDiva), len(simSero), len(simDiva))
	if n == 0 {
		return math.NaN()
	}
	return mse(obsSero[:n], simSero[:n]) + mse(obsDiva[:n], simDiva[:n])
}

func mse(a, b []float64) float64 {
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return floats.Dot(diff, diff) / float64(len(a))
}
