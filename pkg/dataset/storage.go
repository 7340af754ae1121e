package dataset

import (
	"image"
	_ "image/jpeg" // register decoders for image.DecodeConfig
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"crowdcount/internal/models"
	"crowdcount/pkg/tiling"
)

// SaveMap writes a 2D map as a float64 .npy array of shape (H,W)
func SaveMap(path string, m *models.RasterMap) error {
	if m.Shape.Is3D() {
		return errors.Errorf("saving %v: only 2D maps are persisted", m.Shape)
	}
	if m.Shape.Height == 0 || m.Shape.Width == 0 {
		return errors.Errorf("saving %v: empty map", m.Shape)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating map file")
	}
	dense := mat.NewDense(m.Shape.Height, m.Shape.Width, m.Data)
	if err := npyio.Write(f, dense); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// LoadMap reads a float32 or float64 .npy array of shape (H,W) or (C,H,W)
func LoadMap(path string) (*models.RasterMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening map file")
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading header of %s", path)
	}
	descr := r.Header.Descr

	var shape models.Shape
	switch len(descr.Shape) {
	case 2:
		shape = models.Shape2D(descr.Shape[0], descr.Shape[1])
	case 3:
		shape = models.Shape3D(descr.Shape[0], descr.Shape[1], descr.Shape[2])
	default:
		return nil, errors.Errorf("%s: unsupported array shape %v", path, descr.Shape)
	}
	if descr.Fortran && shape.Is3D() {
		return nil, errors.Errorf("%s: fortran ordered 3D arrays are not supported", path)
	}

	var data []float64
	switch descr.Type {
	case "<f8", ">f8":
		data = make([]float64, shape.Size())
		err = r.Read(&data)
	case "<f4", ">f4":
		buf := make([]float32, shape.Size())
		err = r.Read(&buf)
		data = make([]float64, len(buf))
		for i, v := range buf {
			data[i] = float64(v)
		}
	default:
		return nil, errors.Errorf("%s: unsupported dtype %s", path, descr.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	m, err := models.WrapRasterMap(shape, data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if descr.Fortran {
		m = transpose2D(m)
	}
	return m, nil
}

// transpose2D reorders a column-major (H,W) map into row-major
func transpose2D(m *models.RasterMap) *models.RasterMap {
	h, w := m.Shape.Height, m.Shape.Width
	out := models.NewRasterMap(m.Shape)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			out.Data[y*w+x] = m.Data[x*h+y]
		}
	}
	return out
}

// ImageToRaster converts an image into a (3,H,W) map of 0..255 channel values
func ImageToRaster(img image.Image) *models.RasterMap {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	m := models.NewRasterMap(models.Shape3D(3, h, w))
	r, g, b := m.Plane(0), m.Plane(1), m.Plane(2)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			r[i] = float64(row[4*x])
			g[i] = float64(row[4*x+1])
			b[i] = float64(row[4*x+2])
		}
	}
	return m
}

// RasterToImage converts a (3,H,W) map of 0..255 values back into an opaque image
func RasterToImage(m *models.RasterMap) (*image.NRGBA, error) {
	if m.Shape.Channels != 3 {
		return nil, errors.Errorf("expected 3 channels, got shape %v", m.Shape)
	}
	w, h := m.Shape.Width, m.Shape.Height
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	r, g, b := m.Plane(0), m.Plane(1), m.Plane(2)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			row[4*x] = toByte(r[i])
			row[4*x+1] = toByte(g[i])
			row[4*x+2] = toByte(b[i])
			row[4*x+3] = 255
		}
	}
	return img, nil
}

func toByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// LoadImage decodes an image file as a (3,H,W) map
func LoadImage(path string) (*models.RasterMap, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return ImageToRaster(img), nil
}

// SaveImage encodes a (3,H,W) map; the format follows the file extension
func SaveImage(path string, m *models.RasterMap, jpegQuality int) error {
	img, err := RasterToImage(m)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	return nil
}

// ImageSize reads only the header of an image file
func ImageSize(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrap(err, "opening image")
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "decoding header of %s", path)
	}
	return cfg.Width, cfg.Height, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "opening source")
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "creating destination")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copying %s", filepath.Base(src))
	}
	return errors.Wrapf(out.Close(), "closing %s", dst)
}

// GridManifest records the patch grid of one image explicitly
type GridManifest struct {
	Image   string   `yaml:"image"`
	Height  int      `yaml:"height"`
	Width   int      `yaml:"width"`
	PatchH  int      `yaml:"patchHeight"`
	PatchW  int      `yaml:"patchWidth"`
	VStride int      `yaml:"vStride"`
	HStride int      `yaml:"hStride"`
	PadH    int      `yaml:"padH"`
	PadW    int      `yaml:"padW"`
	Origins [][2]int `yaml:"origins,flow"`
}

// NewGridManifest describes g for image name
func NewGridManifest(name string, g tiling.Grid) GridManifest {
	origins := g.Origins()
	gm := GridManifest{
		Image:   name,
		Height:  g.Height,
		Width:   g.Width,
		PatchH:  g.PatchH,
		PatchW:  g.PatchW,
		VStride: g.VStride,
		HStride: g.HStride,
		PadH:    g.PadH,
		PadW:    g.PadW,
		Origins: make([][2]int, len(origins)),
	}
	for i, o := range origins {
		gm.Origins[i] = [2]int{o.Y, o.X}
	}
	return gm
}

// Matches reports whether the manifest describes exactly grid g
func (gm GridManifest) Matches(g tiling.Grid) bool {
	if gm.Height != g.Height || gm.Width != g.Width ||
		gm.PatchH != g.PatchH || gm.PatchW != g.PatchW ||
		gm.VStride != g.VStride || gm.HStride != g.HStride ||
		gm.PadH != g.PadH || gm.PadW != g.PadW ||
		len(gm.Origins) != g.Count() {
		return false
	}
	for i, written := range gm.Origins {
		o, ok := g.Origin(i)
		if !ok || written != [2]int{o.Y, o.X} {
			return false
		}
	}
	return true
}

// SaveGridManifest writes gm as YAML
func SaveGridManifest(path string, gm GridManifest) error {
	data, err := yaml.Marshal(gm)
	if err != nil {
		return errors.Wrap(err, "marshaling grid manifest")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0644), "writing %s", path)
}

// LoadGridManifest reads a manifest written by SaveGridManifest
func LoadGridManifest(path string) (GridManifest, error) {
	var gm GridManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return gm, errors.Wrap(err, "reading grid manifest")
	}
	if err := yaml.Unmarshal(data, &gm); err != nil {
		return gm, errors.Wrapf(err, "parsing %s", path)
	}
	return gm, nil
}
