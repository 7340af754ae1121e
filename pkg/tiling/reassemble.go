package tiling

import (
	"crowdcount/internal/models"
)

// coverageEpsilon keeps the normalisation finite for pixels no patch covered
const coverageEpsilon = 1e-6

// Reassemble rebuilds a map of originalShape from patches produced in grid
// order. The grid is recomputed from the same parameters Split used, so no
// coordinates travel with the patches. Overlapping contributions are
// averaged.
func Reassemble(patches []*models.RasterMap, originalShape models.Shape, patchH, patchW int, vOverlap, hOverlap float64) (*models.RasterMap, error) {
	g, err := NewGrid(originalShape.Height, originalShape.Width, patchH, patchW, vOverlap, hOverlap)
	if err != nil {
		return nil, err
	}
	return g.Reassemble(patches, originalShape.Channels)
}

// Reassemble accumulates patches over the padded grid, divides by the
// per-pixel coverage count and crops the padding away. channels is zero for
// 2D patches.
func (g Grid) Reassemble(patches []*models.RasterMap, channels int) (*models.RasterMap, error) {
	if len(patches) != g.Count() {
		return nil, countMismatch(g.Count(), len(patches))
	}
	patchShape := models.Shape{Channels: channels, Height: g.PatchH, Width: g.PatchW}
	for i, p := range patches {
		if p.Shape != patchShape {
			return nil, patchMismatch(i, patchShape, p.Shape)
		}
	}

	ph, pw := g.PaddedHeight(), g.PaddedWidth()
	acc := models.NewRasterMap(models.Shape{Channels: channels, Height: ph, Width: pw})
	count := make([]float64, ph*pw)

	for idx, o := range g.Origins() {
		p := patches[idx]
		for c := 0; c < patchShape.Planes(); c++ {
			src := p.Plane(c)
			dst := acc.Plane(c)
			for y := 0; y < g.PatchH; y++ {
				row := dst[(o.Y+y)*pw+o.X:]
				for x, v := range src[y*g.PatchW : (y+1)*g.PatchW] {
					row[x] += v
				}
			}
		}
		for y := 0; y < g.PatchH; y++ {
			row := count[(o.Y+y)*pw+o.X:]
			for x := 0; x < g.PatchW; x++ {
				row[x]++
			}
		}
	}

	out := models.NewRasterMap(models.Shape{Channels: channels, Height: g.Height, Width: g.Width})
	for c := 0; c < patchShape.Planes(); c++ {
		src := acc.Plane(c)
		dst := out.Plane(c)
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				dst[y*g.Width+x] = src[y*pw+x] / (count[y*pw+x] + coverageEpsilon)
			}
		}
	}
	return out, nil
}
