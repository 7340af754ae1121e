// Package groundtruth turns head annotations into full resolution point maps.
//
// A point map holds 1.0 at every annotated head pixel and 0.0 elsewhere, so
// its sum is the crowd count. Points that round to the same pixel collapse
// into one (the map is binary, not a histogram) and points outside the image
// are dropped. Neither loss is reported by Build; see Dropped.
package groundtruth

import (
	"math"

	"crowdcount/internal/models"
)

// Build rasterizes points into a binary (height, width) point map.
// Coordinates are (x,y) in pixels and are rounded to the nearest integer;
// the pixel written is row y, column x.
func Build(points models.AnnotationPointList, height, width int) *models.RasterMap {
	m := models.NewRasterMap(models.Shape2D(height, width))
	for _, p := range points {
		x := int(math.Round(p.X))
		y := int(math.Round(p.Y))
		if x < 0 || x >= width || y < 0 || y >= height {
			continue
		}
		m.Set(0, y, x, 1.0)
	}
	return m
}

// Dropped counts points that Build would discard for lying outside the image
// or for sharing a pixel with an earlier point.
func Dropped(points models.AnnotationPointList, height, width int) (outside, collided int) {
	seen := make(map[[2]int]bool, len(points))
	for _, p := range points {
		x := int(math.Round(p.X))
		y := int(math.Round(p.Y))
		if x < 0 || x >= width || y < 0 || y >= height {
			outside++
			continue
		}
		key := [2]int{y, x}
		if seen[key] {
			collided++
		}
		seen[key] = true
	}
	return outside, collided
}
