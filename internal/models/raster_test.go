package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s2 := Shape2D(3, 4)
	assert.False(t, s2.Is3D())
	assert.Equal(t, 1, s2.Planes())
	assert.Equal(t, 12, s2.Size())
	assert.Equal(t, "(3,4)", s2.String())

	s3 := Shape3D(3, 2, 5)
	assert.True(t, s3.Is3D())
	assert.Equal(t, 3, s3.Planes())
	assert.Equal(t, 30, s3.Size())
	assert.Equal(t, "(3,2,5)", s3.String())
}

func TestRasterMapIndexing(t *testing.T) {
	m := NewRasterMap(Shape3D(2, 3, 4))
	m.Set(1, 2, 3, 7)
	m.Set(0, 0, 1, 2)
	assert.Equal(t, 7.0, m.At(1, 2, 3))
	assert.Equal(t, 7.0, m.Data[len(m.Data)-1])
	assert.Equal(t, 2.0, m.Data[1])
	assert.Equal(t, 9.0, m.Sum())
	assert.Equal(t, 7.0, m.Plane(1)[11])

	c := m.Clone()
	c.Set(1, 2, 3, 0)
	assert.Equal(t, 7.0, m.At(1, 2, 3), "clone must not alias the original")
}

func TestWrapRasterMap(t *testing.T) {
	_, err := WrapRasterMap(Shape2D(2, 2), []float64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data length 3")

	m, err := WrapRasterMap(Shape2D(2, 2), []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.At(0, 1, 0))
}
