// Package inference prepares raw series for the labeling model and calls
// the model service.
package inference

import (
	"fmt"
	"math"

	"github.com/orian/trendlabel/models"
)

const (
	// SmoothingSigma is the Gaussian kernel width applied before log returns.
	SmoothingSigma = 7.0
	truncate       = 4.0
)

// Prepare smooths every column with a Gaussian kernel and converts the
// result to log returns ln(x[t]/x[t-1]); the first row is zero. Columns
// with a non-positive smoothed value are rejected.
func Prepare(series *models.Series) ([][]float64, error) {
	n := series.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty series", models.ErrInvalidPredictionInput)
	}
	if len(series.Values) != n {
		return nil, fmt.Errorf("%w: %d value rows for %d timestamps",
			models.ErrInvalidPredictionInput, len(series.Values), n)
	}
	width := len(series.Columns)
	if width == 0 {
		return nil, fmt.Errorf("%w: series has no value columns", models.ErrInvalidPredictionInput)
	}

	out := make([][]float64, n)
	for i := range out {
		if len(series.Values[i]) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d",
				models.ErrInvalidPredictionInput, i, len(series.Values[i]), width)
		}
		out[i] = make([]float64, width)
	}

	kernel := GaussianKernel(SmoothingSigma)
	column := make([]float64, n)
	for j := 0; j < width; j++ {
		for i := 0; i < n; i++ {
			column[i] = series.Values[i][j]
		}
		smoothed := Smooth(column, kernel)
		returns, err := LogReturns(smoothed)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", series.Columns[j], err)
		}
		for i := 0; i < n; i++ {
			out[i][j] = returns[i]
		}
	}
	return out, nil
}

// GaussianKernel returns normalized weights for offsets -r..r where
// r = int(4*sigma + 0.5).
func GaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	weights := make([]float64, 2*radius+1)
	sum := 0.0
	for k := -radius; k <= radius; k++ {
		w := math.Exp(-0.5 * float64(k*k) / (sigma * sigma))
		weights[k+radius] = w
		sum += w
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// Smooth convolves x with a symmetric kernel, mirroring x at both edges
// (d c b a | a b c d | d c b a).
func Smooth(x, kernel []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	radius := len(kernel) / 2
	for i := 0; i < n; i++ {
		acc := 0.0
		for k := -radius; k <= radius; k++ {
			acc += kernel[k+radius] * x[reflect(i+k, n)]
		}
		out[i] = acc
	}
	return out
}

func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}

// LogReturns returns ln(x[t]/x[t-1]) with a leading zero.
func LogReturns(x []float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, v := range x {
		if v <= 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: non-positive value %g at row %d; log returns need strictly positive values",
				models.ErrInvalidPredictionInput, v, i)
		}
		if i > 0 {
			out[i] = math.Log(v / x[i-1])
		}
	}
	return out, nil
}
