// Package dataset writes preprocessed crowd counting datasets to disk and
// reads them back as aligned samples.
//
// Patch files carry only their sequence index in the name. The writer and
// the reader both obtain that sequence from tiling.Grid, computed from the
// full image size, so the index always means the same footprint. A YAML grid
// manifest with the explicit patch origins is written alongside and checked
// on read.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Directories below the processed dataset root
const (
	FullImagesDir  = "full_images"
	PatchImagesDir = "patches/images"
	GTDir          = "patches/gt"
	GTBlurDir      = "patches/gt_blur"
	GridDir        = "patches/grid"
	PreviewDir     = "previews"
)

// Directories below a raw dataset root
const (
	RawImagesDir      = "images"
	RawGroundTruthDir = "ground-truth"
)

const (
	patchExt = ".jpg"
	mapExt   = ".npy"
	gridExt  = ".yaml"
)

// Layout resolves paths inside a processed dataset directory
type Layout struct {
	Root string
}

// PatchFileName is the name of patch idx of image base. Per-patch prediction
// files use the same scheme with their own extension.
func PatchFileName(base string, idx int, ext string) string {
	return fmt.Sprintf("%s_patch_%d%s", base, idx, ext)
}

// FullImagePath is where the original image file is copied to
func (l Layout) FullImagePath(fileName string) string {
	return filepath.Join(l.Root, FullImagesDir, fileName)
}

// PatchImagePath is the JPEG of patch idx of image base
func (l Layout) PatchImagePath(base string, idx int) string {
	return filepath.Join(l.Root, PatchImagesDir, PatchFileName(base, idx, patchExt))
}

// GTMapPath is the full resolution binary point map of image base
func (l Layout) GTMapPath(base string) string {
	return filepath.Join(l.Root, GTDir, base+mapExt)
}

// GTBlurMapPath is the full resolution blurred point map of image base
func (l Layout) GTBlurMapPath(base string) string {
	return filepath.Join(l.Root, GTBlurDir, base+mapExt)
}

// GridPath is the grid manifest of image base
func (l Layout) GridPath(base string) string {
	return filepath.Join(l.Root, GridDir, base+gridExt)
}

// PreviewPath is an inspection image of image base
func (l Layout) PreviewPath(base, kind string) string {
	return filepath.Join(l.Root, PreviewDir, base+"_"+kind+".png")
}

// Create makes every directory of the layout
func (l Layout) Create() error {
	for _, d := range []string{FullImagesDir, PatchImagesDir, GTDir, GTBlurDir, GridDir} {
		if err := os.MkdirAll(filepath.Join(l.Root, d), 0755); err != nil {
			return errors.Wrapf(err, "creating %s", d)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
