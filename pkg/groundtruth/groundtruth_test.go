package groundtruth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcount/internal/models"
)

func TestBuildRasterizesPoints(t *testing.T) {
	points := models.AnnotationPointList{
		{X: 2.4, Y: 1.6}, // -> row 2, col 2
		{X: 0, Y: 0},
		{X: 4.49, Y: 3.2}, // -> row 3, col 4
	}
	m := Build(points, 4, 5)
	require.Equal(t, models.Shape2D(4, 5), m.Shape)
	assert.Equal(t, 1.0, m.At(0, 2, 2))
	assert.Equal(t, 1.0, m.At(0, 0, 0))
	assert.Equal(t, 1.0, m.At(0, 3, 4))
	assert.Equal(t, 3.0, m.Sum())
	for _, v := range m.Data {
		assert.True(t, v == 0 || v == 1)
	}
}

func TestBuildDropsOutOfBounds(t *testing.T) {
	const h, w = 6, 8
	m := Build(models.AnnotationPointList{{X: w, Y: 0}}, h, w)
	assert.Zero(t, m.Sum())

	m = Build(models.AnnotationPointList{
		{X: -0.6, Y: 2},
		{X: 3, Y: h},
		{X: 3, Y: -1},
		{X: 7.4, Y: 5.4},
	}, h, w)
	assert.Equal(t, 1.0, m.Sum())
	assert.Equal(t, 1.0, m.At(0, 5, 7))

	outside, collided := Dropped(models.AnnotationPointList{{X: w, Y: 0}, {X: 1, Y: 1}}, h, w)
	assert.Equal(t, 1, outside)
	assert.Zero(t, collided)
}

func TestBuildCollisionCollapse(t *testing.T) {
	points := models.AnnotationPointList{{X: 3.1, Y: 2.2}, {X: 2.9, Y: 1.8}}
	m := Build(points, 5, 5)
	assert.Equal(t, 1.0, m.At(0, 2, 3))
	assert.Equal(t, 1.0, m.Sum())

	outside, collided := Dropped(points, 5, 5)
	assert.Zero(t, outside)
	assert.Equal(t, 1, collided)
}

func TestGaussianKernel(t *testing.T) {
	k := GaussianKernel(1)
	require.Len(t, k, 9)
	sum := 0.0
	for i, v := range k {
		sum += v
		assert.InDelta(t, v, k[len(k)-1-i], 1e-15)
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, k[4], k[3])
}

func TestBlurPreservesMass(t *testing.T) {
	m := Build(models.AnnotationPointList{{X: 10, Y: 10}, {X: 20, Y: 5}}, 30, 30)
	b := Blur(m, 1)
	assert.InDelta(t, 2.0, b.Sum(), 1e-9)
	assert.Less(t, b.At(0, 10, 10), 1.0)
	assert.Greater(t, b.At(0, 10, 11), 0.0)
	assert.InDelta(t, b.At(0, 10, 11), b.At(0, 10, 9), 1e-12)

	// the input is untouched
	assert.Equal(t, 1.0, m.At(0, 10, 10))

	// a corner point loses no mass with mirrored borders
	corner := Build(models.AnnotationPointList{{X: 0, Y: 0}}, 10, 10)
	assert.InDelta(t, 1.0, Blur(corner, 2).Sum(), 1e-6)

	same := Blur(m, 0)
	assert.Equal(t, m.Data, same.Data)
}

func TestBlur3D(t *testing.T) {
	m := models.NewRasterMap(models.Shape3D(2, 9, 9))
	m.Set(1, 4, 4, 1)
	b := Blur(m, 1)
	assert.Zero(t, b.Plane(0)[40])
	assert.InDelta(t, 1.0, b.Sum(), 1e-9)
}

func TestParseJSONAndYAML(t *testing.T) {
	points, err := ParseAnnotation("a.json", []byte(`{"annPoints": [[1.5, 2], [3, 4.25]]}`))
	require.NoError(t, err)
	assert.Equal(t, models.AnnotationPointList{{X: 1.5, Y: 2}, {X: 3, Y: 4.25}}, points)

	points, err = ParseAnnotation("b.json", []byte(`{"annPoints": [[[1, 2], [3, 4]]]}`))
	require.NoError(t, err)
	assert.Len(t, points, 2)

	points, err = ParseAnnotation("c.yaml", []byte("image_info:\n  - - location:\n        - [5, 6]\n        - [7, 8]\n      number: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, models.AnnotationPointList{{X: 5, Y: 6}, {X: 7, Y: 8}}, points)

	points, err = ParseAnnotation("d.json", []byte(`{"image_info": [[[9, 10]]]}`))
	require.NoError(t, err)
	assert.Equal(t, models.AnnotationPointList{{X: 9, Y: 10}}, points)
}

func TestParseFormatErrors(t *testing.T) {
	cases := map[string]string{
		"unknown.json":  `{"points": [[1, 2]]}`,
		"scalar.json":   `{"annPoints": 4}`,
		"ragged.json":   `{"annPoints": [[1]]}`,
		"nolocation.js": `{}`,
		"broken.yaml":   "annPoints: [[1, 2]",
		"info.json":     `{"image_info": [{"number": 1}]}`,
	}
	for name, body := range cases {
		_, err := ParseAnnotation(name, []byte(body))
		var fe *FormatError
		assert.True(t, errors.As(err, &fe), name)
	}
}

func TestLoadAnnotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "GT_IMG_1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"annPoints": [[1, 1]]}`), 0644))

	points, err := LoadAnnotation(path)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	_, err = LoadAnnotation(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	var fe *FormatError
	assert.False(t, errors.As(err, &fe))
}
