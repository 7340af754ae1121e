package groundtruth

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"crowdcount/internal/models"
)

// kernelTruncate is the kernel half-width in standard deviations
const kernelTruncate = 4.0

// Blur smooths every plane of m with a separable Gaussian of standard
// deviation sigma. Borders mirror about the edge (d c b a | a b c d), which
// keeps the total mass close to the input; small edge effects are accepted.
// A non-positive sigma returns an unmodified copy.
func Blur(m *models.RasterMap, sigma float64) *models.RasterMap {
	out := m.Clone()
	if sigma <= 0 {
		return out
	}
	kernel := GaussianKernel(sigma)
	h, w := m.Shape.Height, m.Shape.Width
	tmp := make([]float64, h*w)
	for c := 0; c < m.Shape.Planes(); c++ {
		plane := out.Plane(c)
		convolveRows(plane, tmp, h, w, kernel)
		convolveCols(tmp, plane, h, w, kernel)
	}
	return out
}

// GaussianKernel returns a normalised 1D kernel of radius round(4*sigma)
func GaussianKernel(sigma float64) []float64 {
	radius := int(kernelTruncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

func convolveRows(src, dst []float64, h, w int, kernel []float64) {
	radius := len(kernel) / 2
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			sum := 0.0
			for k, kv := range kernel {
				sum += kv * row[mirrorIndex(x+k-radius, w)]
			}
			dst[y*w+x] = sum
		}
	}
}

func convolveCols(src, dst []float64, h, w int, kernel []float64) {
	radius := len(kernel) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for k, kv := range kernel {
				sum += kv * src[mirrorIndex(y+k-radius, h)*w+x]
			}
			dst[y*w+x] = sum
		}
	}
}

// mirrorIndex folds i into [0,n) with the edge sample repeated
func mirrorIndex(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
