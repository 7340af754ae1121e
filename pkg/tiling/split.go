package tiling

import (
	"fmt"

	"github.com/pkg/errors"

	"crowdcount/internal/models"
)

// Split cuts m into overlapping patchH x patchW patches.
// The map is mirror-padded at the bottom and right edges so that the patch
// grid covers it without a leftover strip. 3D maps are split along their
// spatial axes and every patch keeps all channels.
func Split(m *models.RasterMap, patchH, patchW int, vOverlap, hOverlap float64) (*models.PatchSet, error) {
	g, err := NewGrid(m.Shape.Height, m.Shape.Width, patchH, patchW, vOverlap, hOverlap)
	if err != nil {
		return nil, err
	}
	return g.Split(m)
}

// Split cuts m into the patches of this grid. m must have the grid's spatial size.
func (g Grid) Split(m *models.RasterMap) (*models.PatchSet, error) {
	if m.Shape.Height != g.Height || m.Shape.Width != g.Width {
		return nil, &ShapeMismatchError{
			What:     "map",
			Expected: fmt.Sprintf("%dx%d", g.Height, g.Width),
			Actual:   fmt.Sprintf("%dx%d", m.Shape.Height, m.Shape.Width),
		}
	}

	set := &models.PatchSet{
		Patches:       make([]*models.RasterMap, 0, g.Count()),
		OriginalShape: m.Shape,
		PadH:          g.PadH,
		PadW:          g.PadW,
		PatchH:        g.PatchH,
		PatchW:        g.PatchW,
		VStride:       g.VStride,
		HStride:       g.HStride,
	}
	if g.Count() == 0 {
		return set, nil
	}

	padded := PadReflect(m, g.PadH, g.PadW)
	for _, o := range g.Origins() {
		set.Patches = append(set.Patches, crop(padded, o.Y, o.X, g.PatchH, g.PatchW))
	}
	return set, nil
}

// PadReflect appends padH rows and padW columns by mirroring the map about
// its last row and column, without repeating the edge sample:
// [a b c d] padded by 2 becomes [a b c d c b].
func PadReflect(m *models.RasterMap, padH, padW int) *models.RasterMap {
	if padH < 0 || padW < 0 {
		panic(errors.Errorf("negative padding %d,%d", padH, padW))
	}
	h, w := m.Shape.Height, m.Shape.Width
	shape := m.Shape
	shape.Height += padH
	shape.Width += padW
	out := models.NewRasterMap(shape)

	cols := make([]int, shape.Width)
	for x := range cols {
		cols[x] = reflectIndex(x, w)
	}
	for c := 0; c < shape.Planes(); c++ {
		src := m.Plane(c)
		dst := out.Plane(c)
		for y := 0; y < shape.Height; y++ {
			row := src[reflectIndex(y, h)*w:]
			line := dst[y*shape.Width : (y+1)*shape.Width]
			copy(line, row[:w])
			for x := w; x < shape.Width; x++ {
				line[x] = row[cols[x]]
			}
		}
	}
	return out
}

// reflectIndex folds i into [0,n) by repeated mirroring about the end
// samples. For n == 1 there is nothing to mirror and the sample repeats.
func reflectIndex(i, n int) int {
	if i < n {
		return i
	}
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i >= n {
		i = period - i
	}
	return i
}

func crop(m *models.RasterMap, top, left, height, width int) *models.RasterMap {
	shape := m.Shape
	shape.Height = height
	shape.Width = width
	out := models.NewRasterMap(shape)
	for c := 0; c < shape.Planes(); c++ {
		src := m.Plane(c)
		dst := out.Plane(c)
		for y := 0; y < height; y++ {
			start := (top+y)*m.Shape.Width + left
			copy(dst[y*width:(y+1)*width], src[start:start+width])
		}
	}
	return out
}
