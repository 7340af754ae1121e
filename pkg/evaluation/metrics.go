package evaluation

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// mapeEpsilon keeps images without people from dividing by zero
const mapeEpsilon = 1e-6

// Metrics are the count errors over a set of images
type Metrics struct {
	// N is the number of images scored
	N int

	// MAE is the mean absolute count error
	MAE float64

	// MAPE is the mean absolute percentage error, in percent
	MAPE float64

	// RMSE is the root mean squared count error
	RMSE float64
}

// ComputeMetrics scores results. An empty set gives zero metrics.
func ComputeMetrics(results []SampleResult) Metrics {
	m := Metrics{N: len(results)}
	if m.N == 0 {
		return m
	}
	abs := make([]float64, m.N)
	rel := make([]float64, m.N)
	sq := make([]float64, m.N)
	for i, r := range results {
		d := math.Abs(r.Predicted - r.Actual)
		abs[i] = d
		rel[i] = d / (r.Actual + mapeEpsilon)
		sq[i] = d * d
	}
	m.MAE = stat.Mean(abs, nil)
	m.MAPE = stat.Mean(rel, nil) * 100
	m.RMSE = math.Sqrt(stat.Mean(sq, nil))
	return m
}
