// Package visualization renders raster maps and annotation points to images
// for inspecting preprocessed data and predictions.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"crowdcount/internal/models"
)

// Heatmap end points, blended in HCL space
var (
	coldColor, _ = colorful.Hex("#0b0c3b")
	hotColor, _  = colorful.Hex("#ffde3b")
)

// Viewer renders one plane of a raster map
type Viewer struct {
	// m holds the map being viewed
	m *models.RasterMap

	// channel is the plane rendered for 3D maps
	channel int

	// scale maps values to [0,1]; it is 1/max, or 0 for an all zero plane
	scale float64
}

// NewViewer creates a viewer over channel 0 of m
func NewViewer(m *models.RasterMap) *Viewer {
	v := &Viewer{m: m}
	v.setScale()
	return v
}

// SelectChannel switches to another plane of a 3D map
func (v *Viewer) SelectChannel(c int) error {
	if c < 0 || c >= v.m.Shape.Planes() {
		return errors.Errorf("channel %d out of range for shape %v", c, v.m.Shape)
	}
	v.channel = c
	v.setScale()
	return nil
}

func (v *Viewer) setScale() {
	v.scale = 0
	peak := 0.0
	for _, val := range v.m.Plane(v.channel) {
		if finite(val) && val > peak {
			peak = val
		}
	}
	if peak > 0 {
		v.scale = 1 / peak
	}
}

func finite(val float64) bool {
	return !math.IsNaN(val) && !math.IsInf(val, 0)
}

// normalized returns the value at (y,x) scaled into [0,1]. NaN and infinite
// values render as 0.
func (v *Viewer) normalized(y, x int) float64 {
	val := v.m.At(v.channel, y, x) * v.scale
	if !finite(val) {
		return 0
	}
	return math.Max(0, math.Min(1, val))
}

// Gray renders the plane as 16-bit grayscale, brightest at the plane maximum
func (v *Viewer) Gray() *image.Gray16 {
	w, h := v.m.Shape.Width, v.m.Shape.Height
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(v.normalized(y, x) * 65535)})
		}
	}
	return img
}

// Heatmap renders the plane with a dark-to-bright colour ramp
func (v *Viewer) Heatmap() *image.NRGBA {
	w, h := v.m.Shape.Width, v.m.Shape.Height
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	// 256 levels are all an 8-bit output can show
	var ramp [256]color.NRGBA
	for i := range ramp {
		c := coldColor.BlendHcl(hotColor, float64(i)/255).Clamped()
		r, g, b := c.RGB255()
		ramp[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, ramp[int(math.Round(v.normalized(y, x)*255))])
		}
	}
	return img
}

// Overlay draws a circle of the given radius at every point on top of base
func Overlay(base image.Image, points models.AnnotationPointList, radius float64) image.Image {
	dc := gg.NewContextForImage(base)
	dc.SetRGBA(1, 0.1, 0.1, 0.85)
	dc.SetLineWidth(math.Max(1, radius/3))
	for _, p := range points {
		dc.DrawCircle(p.X, p.Y, radius)
		dc.Stroke()
	}
	return dc.Image()
}

// SavePlanes writes every plane of the map as a grayscale PNG named
// <prefix>_c<NN>.png in outputDir
func (v *Viewer) SavePlanes(outputDir, prefix string) error {
	current := v.channel
	defer func() {
		v.channel = current
		v.setScale()
	}()
	for c := 0; c < v.m.Shape.Planes(); c++ {
		if err := v.SelectChannel(c); err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_c%02d.png", prefix, c))
		if err := Save(v.Gray(), filename); err != nil {
			return err
		}
	}
	return nil
}

// Save encodes img; the format follows the file extension
func Save(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return errors.Wrap(err, "creating preview directory")
	}
	return errors.Wrapf(imaging.Save(img, filename), "saving %s", filename)
}
