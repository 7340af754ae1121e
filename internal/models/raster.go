package models

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Shape is the extent of a RasterMap.
// Channels is zero for a plain (H,W) map and positive for a (C,H,W) map.
type Shape struct {
	Channels int
	Height   int
	Width    int
}

// Shape2D returns a (H,W) shape
func Shape2D(height, width int) Shape {
	return Shape{Height: height, Width: width}
}

// Shape3D returns a (C,H,W) shape
func Shape3D(channels, height, width int) Shape {
	return Shape{Channels: channels, Height: height, Width: width}
}

// Is3D reports whether the shape carries a leading channel axis
func (s Shape) Is3D() bool {
	return s.Channels > 0
}

// Planes is the number of HxW planes stored, 1 for a 2D shape
func (s Shape) Planes() int {
	if s.Channels > 0 {
		return s.Channels
	}
	return 1
}

// Size is the total number of values
func (s Shape) Size() int {
	return s.Planes() * s.Height * s.Width
}

func (s Shape) String() string {
	if s.Is3D() {
		return fmt.Sprintf("(%d,%d,%d)", s.Channels, s.Height, s.Width)
	}
	return fmt.Sprintf("(%d,%d)", s.Height, s.Width)
}

// RasterMap is a dense float map of shape (H,W) or (C,H,W).
type RasterMap struct {
	// Data holds the values plane by plane, each plane in row-major order
	Data []float64

	// Shape is the logical extent of Data
	Shape Shape
}

// NewRasterMap allocates a zero-filled map
func NewRasterMap(shape Shape) *RasterMap {
	return &RasterMap{
		Data:  make([]float64, shape.Size()),
		Shape: shape,
	}
}

// WrapRasterMap builds a map around existing data without copying it.
func WrapRasterMap(shape Shape, data []float64) (*RasterMap, error) {
	if len(data) != shape.Size() {
		return nil, errors.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	return &RasterMap{Data: data, Shape: shape}, nil
}

func (m *RasterMap) index(c, y, x int) int {
	return (c*m.Shape.Height+y)*m.Shape.Width + x
}

// At returns the value at channel c, row y, column x. Use c = 0 for 2D maps.
func (m *RasterMap) At(c, y, x int) float64 {
	return m.Data[m.index(c, y, x)]
}

// Set writes the value at channel c, row y, column x
func (m *RasterMap) Set(c, y, x int, v float64) {
	m.Data[m.index(c, y, x)] = v
}

// Plane returns the backing slice of one HxW plane
func (m *RasterMap) Plane(c int) []float64 {
	n := m.Shape.Height * m.Shape.Width
	return m.Data[c*n : (c+1)*n]
}

// Sum is the integral of the map. For a density or point map this is the count.
func (m *RasterMap) Sum() float64 {
	return floats.Sum(m.Data)
}

// Clone returns a deep copy
func (m *RasterMap) Clone() *RasterMap {
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	return &RasterMap{Data: data, Shape: m.Shape}
}
