// Package tiling splits maps into overlapping fixed-size patches and
// reassembles full resolution maps from per-patch values.
//
// Every consumer of patch order goes through Grid. The splitter, the
// reassembler, the dataset writer and the dataset reader all derive patch
// positions from the same Origins walk, so a patch index means the same
// footprint everywhere without storing coordinates next to the patches.
package tiling

import (
	"math"

	"github.com/pkg/errors"
)

// Origin is the top-left corner of a patch in padded map coordinates
type Origin struct {
	Y int
	X int
}

// Grid is the patch layout for one map size.
// It is a pure function of (Height, Width, PatchH, PatchW, overlaps).
type Grid struct {
	// Height and Width are the original map dimensions
	Height int
	Width  int

	PatchH int
	PatchW int

	VStride int
	HStride int

	// PadH and PadW are appended at the bottom and right edges only
	PadH int
	PadW int

	// Rows and Cols count patch origins along each axis
	Rows int
	Cols int
}

// NewGrid computes the patch layout for a height x width map.
// Overlaps are fractions of the patch extent in [0,1).
// A patch larger than the padded map yields an empty grid, not an error.
func NewGrid(height, width, patchH, patchW int, vOverlap, hOverlap float64) (Grid, error) {
	if height <= 0 || width <= 0 {
		return Grid{}, errors.Wrapf(ErrInvalidParameter, "map size %dx%d", height, width)
	}
	if patchH <= 0 || patchW <= 0 {
		return Grid{}, errors.Wrapf(ErrInvalidParameter, "patch size %dx%d", patchH, patchW)
	}
	if !validOverlap(vOverlap) || !validOverlap(hOverlap) {
		return Grid{}, errors.Wrapf(ErrInvalidParameter, "overlap %v/%v outside [0,1)", vOverlap, hOverlap)
	}

	g := Grid{
		Height:  height,
		Width:   width,
		PatchH:  patchH,
		PatchW:  patchW,
		VStride: Stride(patchH, vOverlap),
		HStride: Stride(patchW, hOverlap),
	}
	g.PadH = Padding(height, patchH, g.VStride)
	g.PadW = Padding(width, patchW, g.HStride)
	g.Rows = steps(g.PaddedHeight(), patchH, g.VStride)
	g.Cols = steps(g.PaddedWidth(), patchW, g.HStride)
	return g, nil
}

func validOverlap(v float64) bool {
	return v >= 0 && v < 1
}

// Stride is the distance between consecutive patch origins, never below one pixel
func Stride(patch int, overlap float64) int {
	return max(int(math.Round(float64(patch)*(1-overlap))), 1)
}

// Padding is the number of samples to append so that (size+pad-patch) is a
// multiple of stride. The remainder uses a non-negative modulo, so a map
// smaller than the patch is padded towards the next stride boundary as well.
func Padding(size, patch, stride int) int {
	r := mod(size-patch, stride)
	if r == 0 {
		return 0
	}
	return mod(stride-r, stride)
}

func mod(a, b int) int {
	return ((a % b) + b) % b
}

func steps(padded, patch, stride int) int {
	if padded < patch {
		return 0
	}
	return (padded-patch)/stride + 1
}

// PaddedHeight is Height plus the bottom padding
func (g Grid) PaddedHeight() int {
	return g.Height + g.PadH
}

// PaddedWidth is Width plus the right padding
func (g Grid) PaddedWidth() int {
	return g.Width + g.PadW
}

// Count is the number of patches in the grid
func (g Grid) Count() int {
	return g.Rows * g.Cols
}

// Origin returns the top-left corner of the patch at a sequence index in
// [0, Count()). It reports false for any other index.
func (g Grid) Origin(index int) (Origin, bool) {
	if index < 0 || index >= g.Count() {
		return Origin{}, false
	}
	return Origin{
		Y: (index / g.Cols) * g.VStride,
		X: (index % g.Cols) * g.HStride,
	}, true
}

// Origins lists patch corners in sequence order: outer loop over the vertical
// offset, inner loop over the horizontal offset.
func (g Grid) Origins() []Origin {
	origins := make([]Origin, 0, g.Count())
	for i := 0; i <= g.PaddedHeight()-g.PatchH; i += g.VStride {
		for j := 0; j <= g.PaddedWidth()-g.PatchW; j += g.HStride {
			origins = append(origins, Origin{Y: i, X: j})
		}
	}
	return origins
}
