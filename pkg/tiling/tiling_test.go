package tiling

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcount/internal/models"
)

func randomMap(rng *rand.Rand, shape models.Shape) *models.RasterMap {
	m := models.NewRasterMap(shape)
	for i := range m.Data {
		m.Data[i] = rng.Float64()
	}
	return m
}

func requireClose(t *testing.T, expected, actual *models.RasterMap, tol float64) {
	t.Helper()
	require.Equal(t, expected.Shape, actual.Shape)
	for i := range expected.Data {
		if math.Abs(expected.Data[i]-actual.Data[i]) > tol {
			require.Failf(t, "value mismatch", "index %d: expected %v, got %v", i, expected.Data[i], actual.Data[i])
		}
	}
}

func TestStrideAndPadding(t *testing.T) {
	assert.Equal(t, 112, Stride(224, 0.5))
	assert.Equal(t, 224, Stride(224, 0))
	assert.Equal(t, 1, Stride(3, 0.9))
	assert.Equal(t, 3, Stride(4, 0.25))
	// ties round away from zero
	assert.Equal(t, 3, Stride(5, 0.5))
	assert.Equal(t, 2, Stride(3, 0.5))

	// (500-224) % 112 = 52, so 60 rows complete the last stride
	assert.Equal(t, 60, Padding(500, 224, 112))
	assert.Equal(t, 0, Padding(448, 224, 112))
	// smaller than the patch: (-24) mod 112 = 88, padded to exactly one patch
	assert.Equal(t, 24, Padding(200, 224, 112))
}

func TestScenario500(t *testing.T) {
	g, err := NewGrid(500, 500, 224, 224, 0.5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 112, g.VStride)
	assert.Equal(t, 112, g.HStride)
	assert.Equal(t, 60, g.PadH)
	assert.Equal(t, 60, g.PadW)
	assert.Equal(t, 16, g.Count())

	m := models.NewRasterMap(models.Shape3D(3, 500, 500))
	set, err := g.Split(m)
	require.NoError(t, err)
	assert.Len(t, set.Patches, 16)
	for _, p := range set.Patches {
		assert.Equal(t, models.Shape3D(3, 224, 224), p.Shape)
	}
}

func TestPatchCountFormula(t *testing.T) {
	for h := 1; h < 40; h += 3 {
		for w := 1; w < 40; w += 5 {
			for _, ov := range []float64{0, 0.25, 0.5, 0.75} {
				g, err := NewGrid(h, w, 8, 6, ov, ov/2)
				require.NoError(t, err)
				expected := 0
				hp, wp := h+g.PadH, w+g.PadW
				if hp >= 8 && wp >= 6 {
					expected = ((hp-8)/g.VStride + 1) * ((wp-6)/g.HStride + 1)
				}
				assert.Equal(t, expected, g.Count(), "h=%d w=%d ov=%v", h, w, ov)
				assert.Len(t, g.Origins(), g.Count())
			}
		}
	}
}

func TestOrderDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := randomMap(rng, models.Shape2D(37, 53))
	b := randomMap(rng, models.Shape2D(37, 53))

	ga, err := NewGrid(a.Shape.Height, a.Shape.Width, 16, 12, 0.5, 0.3)
	require.NoError(t, err)
	gb, err := NewGrid(b.Shape.Height, b.Shape.Width, 16, 12, 0.5, 0.3)
	require.NoError(t, err)
	require.Equal(t, ga.Origins(), gb.Origins())

	// row-major: the horizontal offset changes fastest
	origins := ga.Origins()
	require.Equal(t, Origin{Y: 0, X: 0}, origins[0])
	require.Equal(t, Origin{Y: 0, X: ga.HStride}, origins[1])
	for i, o := range origins {
		got, ok := ga.Origin(i)
		require.True(t, ok)
		assert.Equal(t, o, got)
	}
	_, ok := ga.Origin(len(origins))
	assert.False(t, ok)
	_, ok = ga.Origin(-1)
	assert.False(t, ok)

	// patch i of the split really is the footprint at origin i
	set, err := ga.Split(a)
	require.NoError(t, err)
	padded := PadReflect(a, ga.PadH, ga.PadW)
	for i, o := range origins {
		assert.Equal(t, padded.At(0, o.Y, o.X), set.Patches[i].At(0, 0, 0))
		assert.Equal(t, padded.At(0, o.Y+15, o.X+11), set.Patches[i].At(0, 15, 11))
	}
}

func TestPadReflect(t *testing.T) {
	m, err := models.WrapRasterMap(models.Shape2D(2, 4), []float64{
		0, 1, 2, 3,
		4, 5, 6, 7,
	})
	require.NoError(t, err)

	p := PadReflect(m, 1, 2)
	require.Equal(t, models.Shape2D(3, 6), p.Shape)
	assert.Equal(t, []float64{
		0, 1, 2, 3, 2, 1,
		4, 5, 6, 7, 6, 5,
		0, 1, 2, 3, 2, 1,
	}, p.Data)

	// padding longer than the axis keeps mirroring
	row, err := models.WrapRasterMap(models.Shape2D(1, 3), []float64{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 1, 0, 1, 2, 1}, PadReflect(row, 0, 5).Data)

	single, err := models.WrapRasterMap(models.Shape2D(1, 1), []float64{9})
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 9, 9, 9}, PadReflect(single, 1, 1).Data)
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cases := []struct {
		shape    models.Shape
		ph, pw   int
		vov, hov float64
	}{
		{models.Shape2D(50, 50), 16, 16, 0.5, 0.5},
		{models.Shape2D(31, 47), 8, 12, 0.25, 0.75},
		{models.Shape2D(20, 20), 20, 20, 0.5, 0.5},
		{models.Shape2D(33, 17), 7, 5, 0, 0},
		{models.Shape2D(12, 30), 16, 8, 0.5, 0.5},
		{models.Shape3D(3, 45, 38), 16, 16, 0.5, 0.5},
		{models.Shape3D(1, 9, 9), 4, 4, 0.9, 0.9},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%v_%dx%d_%v_%v", tc.shape, tc.ph, tc.pw, tc.vov, tc.hov), func(t *testing.T) {
			x := randomMap(rng, tc.shape)
			set, err := Split(x, tc.ph, tc.pw, tc.vov, tc.hov)
			require.NoError(t, err)
			require.NotEmpty(t, set.Patches)
			assert.Equal(t, tc.shape, set.OriginalShape)

			y, err := Reassemble(set.Patches, set.OriginalShape, tc.ph, tc.pw, tc.vov, tc.hov)
			require.NoError(t, err)
			requireClose(t, x, y, 1e-5)
		})
	}
}

func TestPatchLargerThanPaddedMap(t *testing.T) {
	// 100 rows pad to 112, which is still short of a 224 patch
	m := models.NewRasterMap(models.Shape2D(100, 300))
	set, err := Split(m, 224, 224, 0.5, 0.5)
	require.NoError(t, err)
	assert.Empty(t, set.Patches)
	assert.Equal(t, 12, set.PadH)

	g, err := NewGrid(100, 300, 224, 224, 0.5, 0.5)
	require.NoError(t, err)
	assert.Zero(t, g.Cols*g.Rows)
	assert.NotPanics(t, func() {
		_, ok := g.Origin(0)
		assert.False(t, ok)
	})

	out, err := Reassemble(nil, m.Shape, 224, 224, 0.5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, m.Shape, out.Shape)
	assert.Zero(t, out.Sum())
}

func TestOverlapAveraging(t *testing.T) {
	g, err := NewGrid(6, 6, 4, 4, 0.5, 0.5)
	require.NoError(t, err)
	require.Equal(t, 4, g.Count())

	patches := make([]*models.RasterMap, g.Count())
	for i := range patches {
		p := models.NewRasterMap(models.Shape2D(4, 4))
		for k := range p.Data {
			p.Data[k] = 1
		}
		patches[i] = p
	}
	out, err := g.Reassemble(patches, 0)
	require.NoError(t, err)
	// the centre 2x2 block is covered by all four patches
	for _, v := range out.Data {
		assert.InDelta(t, 1.0, v, 1e-5)
	}
}

func TestReassembleShapeMismatch(t *testing.T) {
	g, err := NewGrid(6, 6, 4, 4, 0.5, 0.5)
	require.NoError(t, err)

	_, err = g.Reassemble([]*models.RasterMap{models.NewRasterMap(models.Shape2D(4, 4))}, 0)
	var mismatch *ShapeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "patch count", mismatch.What)

	patches := make([]*models.RasterMap, 4)
	for i := range patches {
		patches[i] = models.NewRasterMap(models.Shape2D(4, 4))
	}
	patches[2] = models.NewRasterMap(models.Shape2D(4, 3))
	_, err = g.Reassemble(patches, 0)
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "patch 2", mismatch.What)

	// 3D grid expects channels on every patch
	patches[2] = models.NewRasterMap(models.Shape2D(4, 4))
	_, err = g.Reassemble(patches, 3)
	require.True(t, errors.As(err, &mismatch))
}

func TestInvalidParameters(t *testing.T) {
	_, err := NewGrid(10, 10, 0, 4, 0.5, 0.5)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = NewGrid(10, 10, 4, 4, 1, 0.5)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = NewGrid(10, 10, 4, 4, 0.5, -0.1)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = NewGrid(0, 10, 4, 4, 0.5, 0.5)
	assert.True(t, errors.Is(err, ErrInvalidParameter))

	g, err := NewGrid(10, 10, 4, 4, 0.5, 0.5)
	require.NoError(t, err)
	_, err = g.Split(models.NewRasterMap(models.Shape2D(10, 11)))
	var mismatch *ShapeMismatchError
	assert.True(t, errors.As(err, &mismatch))
}
